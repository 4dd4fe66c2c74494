package domain

import (
	"fmt"
	"strconv"
)

// MetaIntrabarExitPriority is the BotDefinition metadata key selecting the intrabar exit order.
const MetaIntrabarExitPriority = "intrabarExitPriority"

// BotDefinition is the read-only bot configuration supplied by the configuration source.
type BotDefinition struct {
	ID                 string
	Name               string
	Symbol             string
	StrategyID         string
	ExecutionTimeframe Timeframe
	RiskProfileID      string
	StrategyConfig     StrategyConfig
	Metadata           map[string]string
}

// IntrabarExitPriority returns the configured exit order, stop-first unless the metadata says otherwise.
func (b BotDefinition) IntrabarExitPriority() ExitPriority {
	return ParseExitPriority(b.Metadata[MetaIntrabarExitPriority])
}

// StrategyConfig is the strategy-specific parameter bag of a bot.
type StrategyConfig map[string]any

// Float returns the value for key as float64, or def when missing or not numeric.
func (c StrategyConfig) Float(key string, def float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns the value for key as int, or def when missing or not numeric.
func (c StrategyConfig) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// Bool returns the value for key as bool, or def when missing.
func (c StrategyConfig) Bool(key string, def bool) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// String returns the value for key formatted as a string, or def when missing.
func (c StrategyConfig) String(key string, def string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy with the given overrides applied.
func (c StrategyConfig) Clone(overrides map[string]float64) StrategyConfig {
	out := make(StrategyConfig, len(c)+len(overrides))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
