// Package indicators computes technical indicators over candle windows. Every indicator is a
// pure function of the candles it is given and only ever looks at the tail of the slice.
package indicators

import (
	"errors"

	"tradecore/internal/domain"
)

// ErrNotEnoughData is returned when the window is shorter than the indicator needs.
var ErrNotEnoughData = errors.New("not enough data points")

// Indicator represents a technical indicator that can be calculated from price data
type Indicator interface {
	// Calculate computes the indicator value at the last candle of the window
	Calculate(candles []domain.Candle) (float64, error)

	// RequiredDataPoints returns the minimum number of candles needed for calculation
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of candles needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

// Previous evaluates ind one bar earlier than the end of candles.
func Previous(ind Indicator, candles []domain.Candle) (float64, error) {
	if len(candles) == 0 {
		return 0, ErrNotEnoughData
	}
	return ind.Calculate(candles[:len(candles)-1])
}
