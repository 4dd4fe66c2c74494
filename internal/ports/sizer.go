package ports

import (
	"context"

	"tradecore/internal/domain"
)

// SizingInput carries everything a sizer may look at.
type SizingInput struct {
	Bot      domain.BotDefinition
	Config   domain.StrategyConfig
	Snapshot domain.Snapshot
	Decision domain.StrategyDecision
	Intent   domain.EnterIntent
	Candle   domain.Candle
	Equity   float64
}

// SizingResult is the sizer's answer. A Quantity <= 0 means "do not open".
type SizingResult struct {
	Quantity            float64
	RiskAmount          float64
	StopDistance        float64
	Notional            float64
	EstimatedLossAtStop float64
	UsedNotionalCap     bool
}

// PositionSizer converts an enter intent plus account equity into a concrete quantity.
type PositionSizer interface {
	Size(ctx context.Context, in SizingInput) (SizingResult, error)
}

// SizerFunc adapts a plain function to PositionSizer.
type SizerFunc func(ctx context.Context, in SizingInput) (SizingResult, error)

// Size calls f.
func (f SizerFunc) Size(ctx context.Context, in SizingInput) (SizingResult, error) {
	return f(ctx, in)
}
