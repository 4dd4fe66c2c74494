package risk

import (
	"context"
	"fmt"
	"math"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
)

// RiskConfig holds configuration for risk-based position sizing
type RiskConfig struct {
	RiskPerTrade       float64 // Fraction of equity lost if the stop is hit
	MaxLeverage        float64 // Notional cap as a multiple of equity; 0 disables the cap
	MinQuantity        float64 // Sizes below this are rejected (quantity 0)
	DefaultStopPercent float64 // Stop distance used when the intent carries no stop
}

// Validate checks the configuration.
func (c RiskConfig) Validate() error {
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 1 {
		return fmt.Errorf("%w: risk per trade must be in (0,1], got %v", ports.ErrConfigurationError, c.RiskPerTrade)
	}
	if c.MaxLeverage < 0 || c.MinQuantity < 0 || c.DefaultStopPercent < 0 {
		return fmt.Errorf("%w: negative risk limit", ports.ErrConfigurationError)
	}
	return nil
}

// RiskSizer sizes positions so that a stop-out loses RiskPerTrade of current equity.
type RiskSizer struct {
	config RiskConfig
}

// NewRiskSizer creates a new risk sizer instance
func NewRiskSizer(config RiskConfig) (*RiskSizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RiskSizer{config: config}, nil
}

// Size implements ports.PositionSizer.
func (r *RiskSizer) Size(ctx context.Context, in ports.SizingInput) (ports.SizingResult, error) {
	if in.Equity <= 0 {
		return ports.SizingResult{}, nil
	}
	entry := EntryPrice(in)
	if entry <= 0 {
		return ports.SizingResult{}, fmt.Errorf("%w: entry price %v", ports.ErrInvalidRequest, entry)
	}

	stop := in.Intent.StopPrice
	if stop <= 0 && r.config.DefaultStopPercent > 0 {
		stop = StopFromPercent(entry, r.config.DefaultStopPercent, in.Intent.Side == domain.SideLong)
	}
	distance := math.Abs(entry - stop)
	if stop <= 0 || distance == 0 {
		return ports.SizingResult{}, nil
	}

	riskAmount := in.Equity * r.config.RiskPerTrade
	qty := riskAmount / distance
	capped := false
	if r.config.MaxLeverage > 0 {
		maxQty := in.Equity * r.config.MaxLeverage / entry
		if qty > maxQty {
			qty = maxQty
			capped = true
		}
	}
	if qty < r.config.MinQuantity {
		qty = 0
	}

	return ports.SizingResult{
		Quantity:            qty,
		RiskAmount:          riskAmount,
		StopDistance:        distance,
		Notional:            qty * entry,
		EstimatedLossAtStop: qty * distance,
		UsedNotionalCap:     capped,
	}, nil
}

// FixedSizer always returns the same quantity.
type FixedSizer struct {
	Quantity float64
}

// Size implements ports.PositionSizer.
func (f FixedSizer) Size(ctx context.Context, in ports.SizingInput) (ports.SizingResult, error) {
	entry := EntryPrice(in)
	res := ports.SizingResult{Quantity: f.Quantity, Notional: f.Quantity * entry}
	if stop := in.Intent.StopPrice; stop > 0 {
		res.StopDistance = math.Abs(entry - stop)
		res.EstimatedLossAtStop = f.Quantity * res.StopDistance
		res.RiskAmount = res.EstimatedLossAtStop
	}
	return res, nil
}

// EntryPrice is the price an enter intent is expected to fill at: the limit price for limit
// entries, otherwise the bar close.
func EntryPrice(in ports.SizingInput) float64 {
	if in.Intent.EntryType == domain.EntryLimit && in.Intent.LimitPrice > 0 {
		return in.Intent.LimitPrice
	}
	return in.Candle.Close
}

// StopFromPercent calculates the stop loss price for a position
func StopFromPercent(entryPrice, percent float64, isLong bool) float64 {
	if isLong {
		return entryPrice * (1 - percent)
	}
	return entryPrice * (1 + percent)
}

// TargetFromR returns the price r multiples of the stop distance away from entry, on the
// profitable side.
func TargetFromR(entryPrice, stopPrice, r float64, isLong bool) float64 {
	distance := math.Abs(entryPrice - stopPrice)
	if isLong {
		return entryPrice + r*distance
	}
	return entryPrice - r*distance
}
