package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/domain"
)

func curveOf(values ...float64) []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		out[i] = domain.EquityPoint{Index: i, Equity: v}
	}
	return out
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name  string
		curve []domain.EquityPoint
		want  float64
	}{
		{"empty", nil, 0},
		{"monotonic", curveOf(100, 110, 120), 0},
		{"single dip", curveOf(100, 80, 120), 0.2},
		{"deeper later dip", curveOf(100, 90, 200, 150, 210), 0.25},
		{"non-positive peak skipped", curveOf(0, -10, -5), 0},
		{"negative equity clamps", curveOf(100, -50), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.curve), 1e-12)
		})
	}
}

func TestComputeMetrics(t *testing.T) {
	positions := []domain.PositionState{
		{PositionID: "p1", Status: domain.StatusClosed, RealizedPnl: 10},
		{PositionID: "p2", Status: domain.StatusClosed, RealizedPnl: -4},
		{PositionID: "p3", Status: domain.StatusClosed, RealizedPnl: 0.5},
		{PositionID: "p4", Status: domain.StatusOpen, RealizedPnl: 100},
	}
	fills := []domain.Fill{
		{PositionID: "p1", Reason: domain.FillReasonEntry, Fee: 1},
		{PositionID: "p1", Reason: domain.FillReasonTP, Fee: 1},
		{PositionID: "p3", Reason: domain.FillReasonEntry, Fee: 0.5},
	}

	m := ComputeMetrics(positions, fills, curveOf(1000, 1009, 1005), 1000)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 1, m.Wins)
	assert.Equal(t, 1, m.Losses)
	assert.InDelta(t, 1.0/3.0, m.WinRate, 1e-12)
	assert.Equal(t, 5.0, m.NetPnl)
	assert.Equal(t, 9.0, m.GrossProfit)
	assert.Equal(t, -4.0, m.GrossLoss)
	assert.Equal(t, 1005.0, m.EndingEquity)
	assert.InDelta(t, 4.0/1009.0, m.MaxDrawdownPct, 1e-12)
}

func TestComputeMetrics_NoTrades(t *testing.T) {
	m := ComputeMetrics(nil, nil, nil, 500)
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.WinRate)
	assert.Equal(t, 500.0, m.EndingEquity)
}
