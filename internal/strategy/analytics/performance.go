// Package analytics derives trade-level statistics from a completed backtest.
package analytics

import (
	"math"
	"sort"
	"time"

	"tradecore/internal/domain"
)

// PerformanceMetrics holds the run summary plus trade and curve statistics.
type PerformanceMetrics struct {
	domain.Metrics

	// Trade statistics
	TotalFees          float64
	AverageWin         float64
	AverageLoss        float64 // Negative or zero
	ProfitFactor       float64
	Expectancy         float64
	RiskRewardRatio    float64
	ReturnOnInvestment float64

	// Streaks and holding time
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration

	// Curve statistics
	SharpeRatio    float64
	RecoveryFactor float64
	Drawdowns      []Drawdown

	ExitReasons    map[domain.FillReason]int
	MonthlyReturns map[string]float64
	Trades         []Trade
}

// Trade is one closed position flattened for reporting.
type Trade struct {
	PositionID string
	Side       domain.Side
	EntryPrice float64
	ExitPrice  float64 // Quantity-weighted over all exit fills
	Quantity   float64
	NetPnl     float64
	Fees       float64
	OpenedAt   time.Time
	ClosedAt   time.Time
	ExitReason domain.FillReason // Reason of the final exit fill
}

// Duration is the holding time of the trade.
func (t Trade) Duration() time.Duration { return t.ClosedAt.Sub(t.OpenedAt) }

// Drawdown represents a drawdown period on the equity curve.
type Drawdown struct {
	StartTime time.Time
	EndTime   time.Time
	Peak      float64
	Trough    float64
	Depth     float64 // Fraction of Peak
	Duration  time.Duration
	Recovered bool
}

// MonthlyReturn represents a monthly net PnL value.
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// AnalyzePerformance computes PerformanceMetrics for a backtest result.
func AnalyzePerformance(result *domain.BacktestResult, initialEquity float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		ExitReasons:    make(map[domain.FillReason]int),
		MonthlyReturns: make(map[string]float64),
	}
	if result == nil {
		metrics.EndingEquity = initialEquity
		return metrics
	}
	metrics.Metrics = result.Metrics
	metrics.Trades = buildTrades(result.Positions, result.Fills)

	for _, f := range result.Fills {
		metrics.TotalFees += f.Fee
	}

	var consecutiveWins, consecutiveLosses int
	var totalDuration time.Duration
	var wins, losses int
	for _, trade := range metrics.Trades {
		metrics.ExitReasons[trade.ExitReason]++
		metrics.MonthlyReturns[trade.ClosedAt.Format("2006-01")] += trade.NetPnl
		totalDuration += trade.Duration()

		switch {
		case trade.NetPnl > 0:
			wins++
			metrics.AverageWin += trade.NetPnl
			consecutiveWins++
			consecutiveLosses = 0
		case trade.NetPnl < 0:
			losses++
			metrics.AverageLoss += trade.NetPnl
			consecutiveLosses++
			consecutiveWins = 0
		default:
			consecutiveWins, consecutiveLosses = 0, 0
		}
		metrics.MaxConsecutiveWins = max(metrics.MaxConsecutiveWins, consecutiveWins)
		metrics.MaxConsecutiveLosses = max(metrics.MaxConsecutiveLosses, consecutiveLosses)
	}

	if n := len(metrics.Trades); n > 0 {
		metrics.AverageTradeDuration = totalDuration / time.Duration(n)
	}
	if wins > 0 {
		metrics.AverageWin /= float64(wins)
	}
	if losses > 0 {
		metrics.AverageLoss /= float64(losses)
	}
	if metrics.GrossLoss != 0 {
		metrics.ProfitFactor = metrics.GrossProfit / -metrics.GrossLoss
	}
	if metrics.AverageLoss != 0 {
		metrics.RiskRewardRatio = metrics.AverageWin / -metrics.AverageLoss
	}
	metrics.Expectancy = metrics.WinRate*metrics.AverageWin + (1-metrics.WinRate)*metrics.AverageLoss

	if initialEquity > 0 {
		metrics.ReturnOnInvestment = (metrics.EndingEquity - initialEquity) / initialEquity
	}
	if metrics.MaxDrawdownPct > 0 && initialEquity > 0 {
		metrics.RecoveryFactor = metrics.NetPnl / (initialEquity * metrics.MaxDrawdownPct)
	}

	metrics.SharpeRatio = calculateSharpeRatio(curveReturns(result.EquityCurve))
	metrics.Drawdowns = drawdownPeriods(result.EquityCurve)
	return metrics
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{Month: date, Return: profit})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

func buildTrades(positions []domain.PositionState, fills []domain.Fill) []Trade {
	byPosition := make(map[string][]domain.Fill)
	for _, f := range fills {
		byPosition[f.PositionID] = append(byPosition[f.PositionID], f)
	}

	trades := make([]Trade, 0, len(positions))
	for _, p := range positions {
		if p.Status != domain.StatusClosed {
			continue
		}
		trade := Trade{
			PositionID: p.PositionID,
			Side:       p.Side,
			EntryPrice: p.AvgEntryPrice,
			Quantity:   p.Quantity,
			OpenedAt:   time.UnixMilli(p.OpenedAtMs).UTC(),
			ClosedAt:   time.UnixMilli(p.ClosedAtMs).UTC(),
		}
		var exitQty, exitNotional float64
		for _, f := range byPosition[p.PositionID] {
			trade.NetPnl += f.NetPnl
			trade.Fees += f.Fee
			if f.Reason == domain.FillReasonEntry {
				continue
			}
			exitQty += f.Quantity
			exitNotional += f.Price * f.Quantity
			trade.ExitReason = f.Reason
		}
		if exitQty > 0 {
			trade.ExitPrice = exitNotional / exitQty
		}
		trades = append(trades, trade)
	}
	return trades
}

// curveReturns converts the equity curve into per-bar simple returns.
func curveReturns(curve []domain.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	return returns
}

// calculateSharpeRatio returns mean over sample standard deviation, with a zero risk-free rate.
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}

// drawdownPeriods splits the curve into peak-to-recovery periods. A period still
// open at the end of the curve is reported with Recovered false.
func drawdownPeriods(curve []domain.EquityPoint) []Drawdown {
	var periods []Drawdown
	var current *Drawdown
	var peak float64
	var peakAt int64

	for i, pt := range curve {
		if i == 0 || pt.Equity >= peak {
			if current != nil {
				current.EndTime = time.UnixMilli(pt.TimeMs).UTC()
				current.Duration = current.EndTime.Sub(current.StartTime)
				current.Recovered = true
				periods = append(periods, *current)
				current = nil
			}
			peak, peakAt = pt.Equity, pt.TimeMs
			continue
		}
		if peak <= 0 {
			continue
		}
		if current == nil {
			current = &Drawdown{
				StartTime: time.UnixMilli(peakAt).UTC(),
				Peak:      peak,
				Trough:    pt.Equity,
			}
		}
		current.Trough = min(current.Trough, pt.Equity)
		current.Depth = (current.Peak - current.Trough) / current.Peak
	}

	if current != nil {
		current.EndTime = time.UnixMilli(curve[len(curve)-1].TimeMs).UTC()
		current.Duration = current.EndTime.Sub(current.StartTime)
		periods = append(periods, *current)
	}
	return periods
}
