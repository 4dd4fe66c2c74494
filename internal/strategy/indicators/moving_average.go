package indicators

import (
	"fmt"
	"strings"

	"tradecore/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// ParseMovingAverageType accepts "sma" or "ema" in any case.
func ParseMovingAverageType(s string) (MovingAverageType, error) {
	switch t := MovingAverageType(strings.ToUpper(s)); t {
	case SimpleMovingAverage, ExponentialMovingAverage:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported moving average type: %s", s)
	}
}

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s(%d)", m.config.Type, m.Config.Period)
}

// Calculate computes the moving average value based on the configured type
func (m *MovingAverage) Calculate(candles []domain.Candle) (float64, error) {
	switch m.config.Type {
	case SimpleMovingAverage:
		return m.calculateSMA(candles)
	case ExponentialMovingAverage:
		return m.calculateEMA(candles)
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

func (m *MovingAverage) calculateSMA(candles []domain.Candle) (float64, error) {
	period := m.Config.Period
	if period <= 0 || len(candles) < period {
		return 0, fmt.Errorf("%w: SMA(%d) over %d candles", ErrNotEnoughData, period, len(candles))
	}

	total := 0.0
	for _, c := range candles[len(candles)-period:] {
		total += c.Close
	}
	return total / float64(period), nil
}

// calculateEMA seeds with the SMA of the first period candles and smooths forward.
func (m *MovingAverage) calculateEMA(candles []domain.Candle) (float64, error) {
	period := m.Config.Period
	if period <= 0 || len(candles) < period {
		return 0, fmt.Errorf("%w: EMA(%d) over %d candles", ErrNotEnoughData, period, len(candles))
	}

	multiplier := 2.0 / float64(period+1)
	ema, err := m.calculateSMA(candles[:period])
	if err != nil {
		return 0, fmt.Errorf("failed to calculate initial SMA for EMA: %w", err)
	}
	for _, c := range candles[period:] {
		ema = (c.Close-ema)*multiplier + ema
	}
	return ema, nil
}
