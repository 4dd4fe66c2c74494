package backtest

import "tradecore/internal/domain"

// ComputeMetrics reduces closed positions and the equity curve into summary statistics.
// A position's result is its realized PnL net of the fees paid on its entry fills.
func ComputeMetrics(positions []domain.PositionState, fills []domain.Fill, curve []domain.EquityPoint, initialEquity float64) domain.Metrics {
	entryFees := make(map[string]float64)
	for _, f := range fills {
		if f.Reason == domain.FillReasonEntry {
			entryFees[f.PositionID] = add(entryFees[f.PositionID], f.Fee)
		}
	}

	var m domain.Metrics
	for _, p := range positions {
		if p.Status != domain.StatusClosed {
			continue
		}
		m.TotalTrades++
		net := sub(p.RealizedPnl, entryFees[p.PositionID])
		m.NetPnl = add(m.NetPnl, net)
		switch {
		case net > 0:
			m.Wins++
			m.GrossProfit = add(m.GrossProfit, net)
		case net < 0:
			m.Losses++
			m.GrossLoss = add(m.GrossLoss, net)
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.TotalTrades)
	}

	m.MaxDrawdownPct = MaxDrawdown(curve)
	m.EndingEquity = initialEquity
	if n := len(curve); n > 0 {
		m.EndingEquity = curve[n-1].Equity
	}
	return m
}

// MaxDrawdown returns the largest peak-to-trough decline of the curve as a fraction of the
// peak, in [0,1]. Non-positive peaks are skipped.
func MaxDrawdown(curve []domain.EquityPoint) float64 {
	var peak, maxDD float64
	for i, pt := range curve {
		if i == 0 || pt.Equity > peak {
			peak = pt.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - pt.Equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return min(maxDD, 1)
}
