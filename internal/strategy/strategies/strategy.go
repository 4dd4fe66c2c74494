package strategies

import (
	"fmt"
	"sort"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
)

// Factory builds a strategy from a bot's strategy config.
type Factory func(cfg domain.StrategyConfig, logger ports.Logger) (ports.Strategy, error)

var registry = map[string]Factory{
	MACrossoverID: func(cfg domain.StrategyConfig, logger ports.Logger) (ports.Strategy, error) {
		return NewMACrossover(MACrossoverConfigFrom(cfg), logger)
	},
}

// New creates the strategy registered under id.
func New(id string, cfg domain.StrategyConfig, logger ports.Logger) (ports.Strategy, error) {
	factory, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (available: %v)", ports.ErrConfigurationError, id, IDs())
	}
	return factory(cfg, logger)
}

// IDs returns the registered strategy ids in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BaseStrategy provides common functionality for strategies
type BaseStrategy struct {
	logger ports.Logger
}

// NewBaseStrategy creates a new base strategy instance
func NewBaseStrategy(logger ports.Logger) *BaseStrategy {
	return &BaseStrategy{
		logger: logger,
	}
}

func hold(reasons ...string) domain.StrategyDecision {
	return domain.StrategyDecision{
		Reasons: reasons,
		Intents: []domain.TradingIntent{domain.HoldIntent{IntentCommon: domain.IntentCommon{Reasons: reasons}}},
	}
}
