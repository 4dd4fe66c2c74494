package risk

import (
	"context"
	"errors"
	"math"
	"testing"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
)

func sizingInput(side domain.Side, close, stop, equity float64) ports.SizingInput {
	return ports.SizingInput{
		Intent: domain.EnterIntent{Side: side, EntryType: domain.EntryMarket, StopPrice: stop},
		Candle: domain.Candle{Close: close},
		Equity: equity,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRiskSizer(t *testing.T) {
	sizer, err := NewRiskSizer(RiskConfig{RiskPerTrade: 0.01, MaxLeverage: 5, MinQuantity: 0.001})
	if err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	// 1% of 10000 over a 5 point stop
	res, err := sizer.Size(context.Background(), sizingInput(domain.SideLong, 100, 95, 10000))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !almostEqual(res.Quantity, 20) {
		t.Errorf("Expected quantity 20, got %f", res.Quantity)
	}
	if res.RiskAmount != 100 || res.StopDistance != 5 {
		t.Errorf("Unexpected risk fields %+v", res)
	}
	if !almostEqual(res.EstimatedLossAtStop, 100) || !almostEqual(res.Notional, 2000) {
		t.Errorf("Unexpected loss or notional %+v", res)
	}
	if res.UsedNotionalCap {
		t.Error("Expected notional cap not to bind")
	}

	// Tight stop hits the leverage cap: 10000*5/100 = 500
	res, err = sizer.Size(context.Background(), sizingInput(domain.SideShort, 100, 100.1, 10000))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !almostEqual(res.Quantity, 500) || !res.UsedNotionalCap {
		t.Errorf("Expected capped quantity 500, got %f (capped=%v)", res.Quantity, res.UsedNotionalCap)
	}
}

func TestRiskSizerRejects(t *testing.T) {
	sizer, _ := NewRiskSizer(RiskConfig{RiskPerTrade: 0.01, MinQuantity: 1})

	tests := []struct {
		name string
		in   ports.SizingInput
	}{
		{"no stop", sizingInput(domain.SideLong, 100, 0, 10000)},
		{"stop at entry", sizingInput(domain.SideLong, 100, 100, 10000)},
		{"below minimum quantity", sizingInput(domain.SideLong, 100, 50, 1000)},
		{"no equity", sizingInput(domain.SideLong, 100, 95, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := sizer.Size(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if res.Quantity != 0 {
				t.Errorf("Expected quantity 0, got %f", res.Quantity)
			}
		})
	}

	_, err := sizer.Size(context.Background(), sizingInput(domain.SideLong, 0, 95, 1000))
	if !errors.Is(err, ports.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for zero price, got %v", err)
	}
}

func TestRiskSizerDefaultStop(t *testing.T) {
	sizer, _ := NewRiskSizer(RiskConfig{RiskPerTrade: 0.02, DefaultStopPercent: 0.02})

	res, _ := sizer.Size(context.Background(), sizingInput(domain.SideLong, 50, 0, 1000))
	if !almostEqual(res.StopDistance, 1) || !almostEqual(res.Quantity, 20) {
		t.Errorf("Expected 1 point stop and quantity 20, got %+v", res)
	}
}

func TestRiskConfigValidate(t *testing.T) {
	if _, err := NewRiskSizer(RiskConfig{RiskPerTrade: 0}); !errors.Is(err, ports.ErrConfigurationError) {
		t.Errorf("Expected configuration error, got %v", err)
	}
	if _, err := NewRiskSizer(RiskConfig{RiskPerTrade: 0.01, MaxLeverage: -1}); err == nil {
		t.Error("Expected error for negative leverage")
	}
}

func TestFixedSizer(t *testing.T) {
	in := sizingInput(domain.SideLong, 100, 90, 1000)
	in.Intent.EntryType = domain.EntryLimit
	in.Intent.LimitPrice = 98

	res, err := FixedSizer{Quantity: 2}.Size(context.Background(), in)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.Quantity != 2 || res.Notional != 196 || res.StopDistance != 8 || res.EstimatedLossAtStop != 16 {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestPriceHelpers(t *testing.T) {
	if got := StopFromPercent(50000, 0.02, true); got != 50000*(1-0.02) {
		t.Errorf("Expected long stop %f, got %f", 50000*(1-0.02), got)
	}
	if got := StopFromPercent(100, 0.05, false); !almostEqual(got, 105) {
		t.Errorf("Expected short stop 105, got %f", got)
	}
	if got := TargetFromR(100, 95, 2, true); got != 110 {
		t.Errorf("Expected 2R long target 110, got %f", got)
	}
	if got := TargetFromR(100, 104, 1, false); got != 96 {
		t.Errorf("Expected 1R short target 96, got %f", got)
	}
}
