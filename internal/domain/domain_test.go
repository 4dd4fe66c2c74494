package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		input string
		want  Timeframe
		ok    bool
	}{
		{"1h", TF1h, true},
		{" H4 ", TF4h, true},
		{"m15", TF15m, true},
		{"day", TF1d, true},
		{"2w", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseTimeframe(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 4*time.Hour, TF4h.Duration())
	assert.Zero(t, Timeframe("2w").Duration())
}

func TestStrategyConfigGetters(t *testing.T) {
	cfg := StrategyConfig{
		"f":   1.5,
		"i":   7,
		"s":   "12",
		"b":   "true",
		"bad": "x",
		"n":   nil,
	}

	assert.Equal(t, 1.5, cfg.Float("f", 0))
	assert.Equal(t, 7.0, cfg.Float("i", 0))
	assert.Equal(t, 12.0, cfg.Float("s", 0))
	assert.Equal(t, 3.0, cfg.Float("bad", 3))
	assert.Equal(t, 1, cfg.Int("f", 0))
	assert.Equal(t, 12, cfg.Int("s", 0))
	assert.Equal(t, 4, cfg.Int("missing", 4))
	assert.True(t, cfg.Bool("b", false))
	assert.False(t, cfg.Bool("bad", false))
	assert.Equal(t, "7", cfg.String("i", ""))
	assert.Equal(t, "def", cfg.String("n", "def"))

	clone := cfg.Clone(map[string]float64{"i": 9})
	assert.Equal(t, 9, clone.Int("i", 0))
	assert.Equal(t, 7, cfg.Int("i", 0))
}

func TestBotDefinitionExitPriority(t *testing.T) {
	assert.Equal(t, StopFirst, BotDefinition{}.IntrabarExitPriority())
	bot := BotDefinition{Metadata: map[string]string{MetaIntrabarExitPriority: "target-first"}}
	assert.Equal(t, TargetFirst, bot.IntrabarExitPriority())
	assert.Equal(t, StopFirst, ParseExitPriority("whatever"))
}

func TestValidatePlan(t *testing.T) {
	assert.Nil(t, ValidatePlan(SideLong, 100, nil))

	plan := &PositionManagementPlan{TakeProfits: []TakeProfitInstruction{
		{ID: "tp1", Price: 110, SizeFraction: 0.5},
		{ID: "tp2", Price: 110, SizeFraction: 0.4},
		{ID: "tp3", Price: 90, SizeFraction: 0.3},
		{ID: "tp4", Price: 120, SizeFraction: 0},
	}}
	issues := ValidatePlan(SideLong, 100, plan)

	var problems []string
	for _, i := range issues {
		problems = append(problems, i.String())
	}
	assert.Equal(t, []string{
		`target "tp2" at 110: shares its price with target "tp1"`,
		`target "tp3" at 90: long target at or below entry`,
		`target "tp4" at 120: size fraction outside (0,1]`,
		`target "" at 0: size fractions sum to 1.2`,
	}, problems)

	short := &PositionManagementPlan{TakeProfits: []TakeProfitInstruction{{ID: "a", Price: 95, SizeFraction: 1}}}
	assert.Empty(t, ValidatePlan(SideShort, 100, short))
	assert.Len(t, ValidatePlan(SideShort, 90, short), 1)
}

func TestMarketDataViewAtHidesFutureBars(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var hourly, fourHourly []Candle
	for i := 0; i < 12; i++ {
		hourly = append(hourly, Candle{Time: start.Add(time.Duration(i) * time.Hour), Close: float64(i)})
	}
	for i := 0; i < 3; i++ {
		fourHourly = append(fourHourly, Candle{Time: start.Add(time.Duration(4*i) * time.Hour), Close: float64(100 + i)})
	}
	m := MarketData{Symbol: "BTCUSDT", Timeframe: TF1h, Candles: hourly, Series: map[string][]Candle{"4h": fourHourly}}

	// The first 4h bar closes at the end of hourly bar 3.
	assert.Empty(t, m.ViewAt(2).Series["4h"])
	v := m.ViewAt(3)
	require.Len(t, v.Series["4h"], 1)
	assert.Len(t, v.Candles, 4)
	assert.Equal(t, 3.0, v.Current().Close)
	assert.Len(t, m.ViewAt(8).Series["4h"], 2)

	// Appending to the view must not overwrite the next bar.
	_ = append(v.Candles, Candle{Close: -1})
	assert.Equal(t, 4.0, hourly[4].Close)
}

func TestDecisionLookups(t *testing.T) {
	d := StrategyDecision{Intents: []TradingIntent{
		HoldIntent{},
		CloseIntent{Side: SideShort, Price: 90},
		EnterIntent{Side: SideLong, StopPrice: 95},
		CloseIntent{Side: SideLong},
	}}

	e, ok := d.FirstEnter()
	require.True(t, ok)
	assert.Equal(t, 95.0, e.StopPrice)

	c, ok := d.FirstClose(SideShort)
	require.True(t, ok)
	assert.Equal(t, 90.0, c.Price)

	_, ok = StrategyDecision{}.FirstEnter()
	assert.False(t, ok)
	assert.Equal(t, IntentClose, d.Intents[1].Kind())
}

func TestPositionStateClone(t *testing.T) {
	p := &PositionState{
		PositionID: "p1",
		Status:     StatusOpen,
		StrategyContext: &StrategyContext{
			Management: &PositionManagementPlan{TakeProfits: []TakeProfitInstruction{{ID: "tp", Price: 110, SizeFraction: 1}}},
			Reasons:    []string{"cross"},
		},
	}
	c := p.Clone()
	c.StrategyContext.Management.TakeProfits[0].Price = 1
	c.StrategyContext.Reasons[0] = "changed"

	assert.Equal(t, 110.0, p.Plan().TakeProfits[0].Price)
	assert.Equal(t, "cross", p.StrategyContext.Reasons[0])
	assert.Nil(t, (*PositionState)(nil).Clone())
	assert.Nil(t, (*PositionState)(nil).Plan())
}

func TestEntryReference(t *testing.T) {
	pos := &PositionState{AvgEntryPrice: 100.5}
	assert.Equal(t, 100.5, pos.EntryReference())

	pos.StrategyContext = &StrategyContext{EntryReference: 100}
	assert.Equal(t, 100.0, pos.EntryReference())

	var absent *PositionState
	assert.Zero(t, absent.EntryReference())
}

func TestStrategyDecision_HasEnter(t *testing.T) {
	d := StrategyDecision{Intents: []TradingIntent{
		EnterIntent{Side: SideLong},
		EnterIntent{Side: SideShort},
	}}
	assert.True(t, d.HasEnter(SideShort))
	assert.True(t, d.HasEnter(SideLong))
	assert.False(t, StrategyDecision{Intents: []TradingIntent{HoldIntent{}}}.HasEnter(SideShort))
}
