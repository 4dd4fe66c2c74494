package indicators

import (
	"errors"
	"math"
	"testing"

	"tradecore/internal/domain"
)

func TestATR_Calculate(t *testing.T) {
	candles := []domain.Candle{
		{High: 11, Low: 9, Close: 10},  // TR 2
		{High: 12, Low: 10, Close: 11}, // TR 2
		{High: 15, Low: 11, Close: 14}, // TR 4
		{High: 14, Low: 8, Close: 9},   // TR 6
	}
	atr := NewATR(ATRConfig{IndicatorConfig{Period: 2}})

	// seed (2+2)/2 = 2, then (2+4)/2 = 3, then (3+6)/2 = 4.5
	value, err := atr.Calculate(candles)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(value-4.5) > 1e-9 {
		t.Errorf("Expected ATR 4.5, got %f", value)
	}

	if _, err := atr.Calculate(candles[:2]); !errors.Is(err, ErrNotEnoughData) {
		t.Errorf("Expected ErrNotEnoughData, got %v", err)
	}
	if atr.RequiredDataPoints() != 3 || atr.Name() != "ATR(2)" {
		t.Errorf("Unexpected metadata %d %s", atr.RequiredDataPoints(), atr.Name())
	}
}

func TestATR_GapUsesPreviousClose(t *testing.T) {
	candles := []domain.Candle{
		{High: 10, Low: 10, Close: 10},
		{High: 21, Low: 20, Close: 20}, // gap: |21-10| = 11
	}
	value, err := NewATR(ATRConfig{IndicatorConfig{Period: 1}}).Calculate(candles)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if value != 11 {
		t.Errorf("Expected ATR 11, got %f", value)
	}
}
