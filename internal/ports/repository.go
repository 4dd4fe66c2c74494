package ports

import (
	"context"
	"time"

	"tradecore/internal/domain"
)

// RunRecord is a completed backtest together with the inputs needed to identify it.
type RunRecord struct {
	ID            string // Assigned by the store when empty
	Symbol        string
	Timeframe     domain.Timeframe
	InitialEquity float64
	Params        map[string]any
	CreatedAt     time.Time
	Result        *domain.BacktestResult
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID         string
	BotID      string
	StrategyID string
	Symbol     string
	Timeframe  domain.Timeframe
	Metrics    domain.Metrics
	CreatedAt  time.Time
}

// RunRepository stores backtest results.
type RunRepository interface {
	// SaveRun persists a run and returns its ID.
	SaveRun(ctx context.Context, run *RunRecord) (string, error)
	// GetRun loads a run. Returns nil, nil if not found.
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	// ListRuns returns the newest runs first. An empty botID lists all bots.
	ListRuns(ctx context.Context, botID string, limit int) ([]RunSummary, error)
}

// PositionStore persists live position state.
type PositionStore interface {
	// SavePosition inserts or replaces the record keyed by bot and position ID.
	SavePosition(ctx context.Context, pos *domain.PositionState) error
	// FindPosition returns nil, nil if not found.
	FindPosition(ctx context.Context, botID, positionID string) (*domain.PositionState, error)
	// FindActiveByBot returns every non-closed position of a bot.
	FindActiveByBot(ctx context.Context, botID string) ([]*domain.PositionState, error)
}
