package strategies

import (
	"context"
	"fmt"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
	"tradecore/internal/risk"
	"tradecore/internal/strategy/indicators"
)

// MACrossoverID is the registry id of the moving average crossover strategy.
const MACrossoverID = "ma_crossover"

// MACrossoverConfig holds configuration for the MA Crossover strategy
type MACrossoverConfig struct {
	FastMAPeriod  int     // Fast MA period (e.g., 9)
	SlowMAPeriod  int     // Slow MA period (e.g., 21)
	ATRPeriod     int     // ATR period for the protective stop (e.g., 14)
	ATRMultiplier float64 // Stop distance in ATRs (e.g., 2)
	MAType        indicators.MovingAverageType

	// RSI filter: longs are skipped at or above RSIOverbought, shorts at or below RSIOversold.
	// A zero RSIPeriod disables the filter.
	RSIPeriod     int
	RSIOverbought float64
	RSIOversold   float64

	AllowShort bool

	// Take-profit ladder in multiples of the initial stop distance (R)
	FirstTargetR        float64
	FirstTargetFraction float64 // Share of the position closed at the first target
	SecondTargetR       float64
	CooldownBars        int

	// Optional higher timeframe filter: entries must agree with the slope of its slow MA
	TrendTimeframe string
}

// Keys read by MACrossoverConfigFrom.
const (
	KeyFastPeriod          = "fastPeriod"
	KeySlowPeriod          = "slowPeriod"
	KeyMAType              = "maType"
	KeyATRPeriod           = "atrPeriod"
	KeyATRMultiplier       = "atrMultiplier"
	KeyRSIPeriod           = "rsiPeriod"
	KeyRSIOverbought       = "rsiOverbought"
	KeyRSIOversold         = "rsiOversold"
	KeyAllowShort          = "allowShort"
	KeyFirstTargetR        = "firstTargetR"
	KeyFirstTargetFraction = "firstTargetFraction"
	KeySecondTargetR       = "secondTargetR"
	KeyCooldownBars        = "cooldownBars"
	KeyTrendTimeframe      = "trendTimeframe"
)

// MACrossoverConfigFrom reads the strategy parameters from a bot's config, with defaults.
func MACrossoverConfigFrom(cfg domain.StrategyConfig) MACrossoverConfig {
	return MACrossoverConfig{
		FastMAPeriod:        cfg.Int(KeyFastPeriod, 9),
		SlowMAPeriod:        cfg.Int(KeySlowPeriod, 21),
		MAType:              indicators.MovingAverageType(cfg.String(KeyMAType, string(indicators.ExponentialMovingAverage))),
		ATRPeriod:           cfg.Int(KeyATRPeriod, 14),
		ATRMultiplier:       cfg.Float(KeyATRMultiplier, 2),
		RSIPeriod:           cfg.Int(KeyRSIPeriod, 14),
		RSIOverbought:       cfg.Float(KeyRSIOverbought, 70),
		RSIOversold:         cfg.Float(KeyRSIOversold, 30),
		AllowShort:          cfg.Bool(KeyAllowShort, true),
		FirstTargetR:        cfg.Float(KeyFirstTargetR, 1),
		FirstTargetFraction: cfg.Float(KeyFirstTargetFraction, 0.5),
		SecondTargetR:       cfg.Float(KeySecondTargetR, 2),
		CooldownBars:        cfg.Int(KeyCooldownBars, 0),
		TrendTimeframe:      cfg.String(KeyTrendTimeframe, ""),
	}
}

// CrossoverMeta is attached to every enter intent and copied onto the position.
type CrossoverMeta struct {
	FastMA float64
	SlowMA float64
	ATR    float64
	RSI    float64
}

// MACrossover enters on a fast/slow moving average cross with an ATR stop and a two-step
// take-profit ladder, and exits explicitly on the adverse cross.
type MACrossover struct {
	*BaseStrategy
	config  MACrossoverConfig
	fastMA  *indicators.MovingAverage
	slowMA  *indicators.MovingAverage
	atr     *indicators.ATR
	rsi     *indicators.RSI
	trendMA *indicators.MovingAverage
}

// NewMACrossover creates a new MA Crossover strategy instance
func NewMACrossover(config MACrossoverConfig, logger ports.Logger) (*MACrossover, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for strategy", ports.ErrConfigurationError)
	}
	if config.FastMAPeriod <= 0 || config.SlowMAPeriod <= 0 || config.ATRPeriod <= 0 || config.RSIPeriod < 0 {
		return nil, fmt.Errorf("%w: strategy periods must be positive", ports.ErrConfigurationError)
	}
	if config.FastMAPeriod >= config.SlowMAPeriod {
		return nil, fmt.Errorf("%w: fast MA period must be less than slow MA period", ports.ErrConfigurationError)
	}
	if config.ATRMultiplier <= 0 {
		return nil, fmt.Errorf("%w: ATR multiplier must be positive", ports.ErrConfigurationError)
	}
	if config.FirstTargetR <= 0 || config.SecondTargetR <= config.FirstTargetR {
		return nil, fmt.Errorf("%w: targets must satisfy 0 < first < second", ports.ErrConfigurationError)
	}
	if config.FirstTargetFraction <= 0 || config.FirstTargetFraction >= 1 {
		return nil, fmt.Errorf("%w: first target fraction must be in (0,1)", ports.ErrConfigurationError)
	}
	if config.MAType == "" {
		config.MAType = indicators.ExponentialMovingAverage
	}
	maType, err := indicators.ParseMovingAverageType(string(config.MAType))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
	}
	config.MAType = maType

	m := &MACrossover{
		BaseStrategy: NewBaseStrategy(logger),
		config:       config,
		fastMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.FastMAPeriod},
			Type:            maType,
		}),
		slowMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.SlowMAPeriod},
			Type:            maType,
		}),
		atr: indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: config.ATRPeriod}}),
		trendMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.SlowMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
	}
	if config.RSIPeriod > 0 {
		m.rsi = indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.RSIPeriod},
			Overbought:      config.RSIOverbought,
			Oversold:        config.RSIOversold,
		})
	}
	return m, nil
}

// ID returns the registry id.
func (m *MACrossover) ID() string {
	return MACrossoverID
}

// RequiredDataPoints returns the minimum number of candles needed before the strategy trades.
func (m *MACrossover) RequiredDataPoints() int {
	n := max(m.config.SlowMAPeriod+1, m.atr.RequiredDataPoints())
	if m.rsi != nil {
		n = max(n, m.rsi.RequiredDataPoints())
	}
	return n
}

// Feature and label names carried in snapshots.
const (
	FeatureFastMA     = "fastMA"
	FeatureSlowMA     = "slowMA"
	FeaturePrevFastMA = "prevFastMA"
	FeaturePrevSlowMA = "prevSlowMA"
	FeatureATR        = "atr"
	FeatureRSI        = "rsi"
	LabelState        = "state"
	LabelCross        = "cross"
	LabelTrend        = "trend"
)

// BuildSnapshot computes the indicator values at the current bar.
func (m *MACrossover) BuildSnapshot(ctx context.Context, bot domain.BotDefinition, cfg domain.StrategyConfig, market domain.MarketView, position *domain.PositionState) (domain.Snapshot, error) {
	current := market.Current()
	snap := domain.Snapshot{
		Time:     current.Time,
		Price:    current.Close,
		Features: map[string]float64{},
		Labels:   map[string]string{LabelState: "ready"},
	}
	candles := market.Candles
	if len(candles) < m.RequiredDataPoints() {
		snap.Labels[LabelState] = "warmup"
		return snap, nil
	}

	fast, err := m.fastMA.Calculate(candles)
	if err != nil {
		return snap, fmt.Errorf("fast MA: %w", err)
	}
	slow, err := m.slowMA.Calculate(candles)
	if err != nil {
		return snap, fmt.Errorf("slow MA: %w", err)
	}
	prevFast, err := indicators.Previous(m.fastMA, candles)
	if err != nil {
		return snap, fmt.Errorf("previous fast MA: %w", err)
	}
	prevSlow, err := indicators.Previous(m.slowMA, candles)
	if err != nil {
		return snap, fmt.Errorf("previous slow MA: %w", err)
	}
	atr, err := m.atr.Calculate(candles)
	if err != nil {
		return snap, fmt.Errorf("ATR: %w", err)
	}
	snap.Features[FeatureFastMA] = fast
	snap.Features[FeatureSlowMA] = slow
	snap.Features[FeaturePrevFastMA] = prevFast
	snap.Features[FeaturePrevSlowMA] = prevSlow
	snap.Features[FeatureATR] = atr

	if m.rsi != nil {
		rsi, err := m.rsi.Calculate(candles)
		if err != nil {
			return snap, fmt.Errorf("RSI: %w", err)
		}
		snap.Features[FeatureRSI] = rsi
	}

	switch {
	case prevFast <= prevSlow && fast > slow:
		snap.Labels[LabelCross] = "up"
	case prevFast >= prevSlow && fast < slow:
		snap.Labels[LabelCross] = "down"
	default:
		snap.Labels[LabelCross] = "none"
	}
	snap.Labels[LabelTrend] = m.trend(ctx, market)
	return snap, nil
}

// trend classifies the higher timeframe as "up", "down" or "" when unavailable.
func (m *MACrossover) trend(ctx context.Context, market domain.MarketView) string {
	if m.config.TrendTimeframe == "" {
		return ""
	}
	series := market.Series[m.config.TrendTimeframe]
	if len(series) < m.trendMA.RequiredDataPoints()+1 {
		return ""
	}
	now, err := m.trendMA.Calculate(series)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate trend MA")
		return ""
	}
	prev, err := indicators.Previous(m.trendMA, series)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate previous trend MA")
		return ""
	}
	if now > prev {
		return "up"
	}
	if now < prev {
		return "down"
	}
	return ""
}

// Evaluate turns the snapshot into intents.
func (m *MACrossover) Evaluate(ctx context.Context, bot domain.BotDefinition, cfg domain.StrategyConfig, snapshot domain.Snapshot, market domain.MarketView, position *domain.PositionState) (domain.StrategyDecision, error) {
	if snapshot.Labels[LabelState] == "warmup" {
		return hold("warming up"), nil
	}

	var side domain.Side
	switch snapshot.Labels[LabelCross] {
	case "up":
		side = domain.SideLong
	case "down":
		side = domain.SideShort
	default:
		return hold("no cross"), nil
	}
	reason := fmt.Sprintf("%s cross: fast %.4f slow %.4f", side, snapshot.Features[FeatureFastMA], snapshot.Features[FeatureSlowMA])

	var intents []domain.TradingIntent
	if position.IsOpen() && position.Side != side {
		intents = append(intents, domain.CloseIntent{
			IntentCommon: domain.IntentCommon{Reasons: []string{"adverse " + reason}},
			Side:         position.Side,
		})
	}

	if ok, why := m.entryAllowed(side, snapshot); !ok {
		m.logger.Debug(ctx, "Entry filtered", map[string]interface{}{
			"botId":  bot.ID,
			"side":   string(side),
			"reason": why,
		})
		if len(intents) == 0 {
			return hold(why), nil
		}
	} else if !position.IsOpen() || position.Side != side {
		intents = append(intents, m.enterIntent(side, reason, snapshot))
	}
	if len(intents) == 0 {
		return hold("already " + string(side)), nil
	}

	return domain.StrategyDecision{
		SnapshotTime: snapshot.Time,
		Confidence:   confidence(snapshot),
		Reasons:      []string{reason},
		Intents:      intents,
		Diagnostics: map[string]any{
			"trend": snapshot.Labels[LabelTrend],
			"rsi":   snapshot.Features[FeatureRSI],
		},
	}, nil
}

func (m *MACrossover) entryAllowed(side domain.Side, snapshot domain.Snapshot) (bool, string) {
	if side == domain.SideShort && !m.config.AllowShort {
		return false, "shorts disabled"
	}
	if m.rsi != nil {
		rsi := snapshot.Features[FeatureRSI]
		if side == domain.SideLong && m.rsi.IsOverbought(rsi) {
			return false, fmt.Sprintf("RSI %.2f overbought", rsi)
		}
		if side == domain.SideShort && m.rsi.IsOversold(rsi) {
			return false, fmt.Sprintf("RSI %.2f oversold", rsi)
		}
	}
	switch trend := snapshot.Labels[LabelTrend]; {
	case side == domain.SideLong && trend == "down":
		return false, "higher timeframe trending down"
	case side == domain.SideShort && trend == "up":
		return false, "higher timeframe trending up"
	}
	return true, ""
}

func (m *MACrossover) enterIntent(side domain.Side, reason string, snapshot domain.Snapshot) domain.EnterIntent {
	entry := snapshot.Price
	atr := snapshot.Features[FeatureATR]
	isLong := side == domain.SideLong
	stop := entry - m.config.ATRMultiplier*atr
	if !isLong {
		stop = entry + m.config.ATRMultiplier*atr
	}

	return domain.EnterIntent{
		IntentCommon: domain.IntentCommon{
			Reasons:    []string{reason},
			Confidence: confidence(snapshot),
			Tags:       []string{MACrossoverID},
			Meta: CrossoverMeta{
				FastMA: snapshot.Features[FeatureFastMA],
				SlowMA: snapshot.Features[FeatureSlowMA],
				ATR:    atr,
				RSI:    snapshot.Features[FeatureRSI],
			},
		},
		Side:      side,
		EntryType: domain.EntryMarket,
		StopPrice: stop,
		Management: &domain.PositionManagementPlan{
			TakeProfits: []domain.TakeProfitInstruction{
				{
					ID:                  "tp1",
					Label:               fmt.Sprintf("%gR", m.config.FirstTargetR),
					Price:               risk.TargetFromR(entry, stop, m.config.FirstTargetR, isLong),
					SizeFraction:        m.config.FirstTargetFraction,
					MoveStopToBreakeven: true,
				},
				{
					ID:           "tp2",
					Label:        fmt.Sprintf("%gR", m.config.SecondTargetR),
					Price:        risk.TargetFromR(entry, stop, m.config.SecondTargetR, isLong),
					SizeFraction: 1 - m.config.FirstTargetFraction,
				},
			},
			CloseOnOppositeIntent: true,
			CooldownBars:          m.config.CooldownBars,
		},
	}
}

// confidence grows with the MA separation measured in ATRs, capped at 1.
func confidence(snapshot domain.Snapshot) float64 {
	atr := snapshot.Features[FeatureATR]
	if atr <= 0 {
		return 0
	}
	gap := snapshot.Features[FeatureFastMA] - snapshot.Features[FeatureSlowMA]
	if gap < 0 {
		gap = -gap
	}
	return min(gap/atr, 1)
}
