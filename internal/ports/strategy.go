package ports

import (
	"context"

	"tradecore/internal/domain"
)

// Strategy is the pluggable decision function. Implementations must be deterministic:
// identical inputs always produce identical snapshots and decisions.
type Strategy interface {
	// ID returns the strategy identifier recorded in results.
	ID() string

	// BuildSnapshot computes the strategy's view of the current bar.
	// position is nil when no position is open.
	BuildSnapshot(ctx context.Context, bot domain.BotDefinition, cfg domain.StrategyConfig, market domain.MarketView, position *domain.PositionState) (domain.Snapshot, error)

	// Evaluate turns a snapshot into a decision.
	Evaluate(ctx context.Context, bot domain.BotDefinition, cfg domain.StrategyConfig, snapshot domain.Snapshot, market domain.MarketView, position *domain.PositionState) (domain.StrategyDecision, error)
}
