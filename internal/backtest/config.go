package backtest

import (
	"fmt"
	"time"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
)

// SlippageModel selects how raw prices are worsened on execution.
type SlippageModel string

const (
	SlippageNone     SlippageModel = "none"
	SlippageFixedBps SlippageModel = "fixed-bps"
)

// ParseSlippageModel returns the model named by s. The empty string maps to SlippageNone.
func ParseSlippageModel(s string) (SlippageModel, error) {
	switch SlippageModel(s) {
	case "", SlippageNone:
		return SlippageNone, nil
	case SlippageFixedBps:
		return SlippageFixedBps, nil
	default:
		return "", fmt.Errorf("%w: slippage model %q", ports.ErrUnknownModel, s)
	}
}

// SlippageConfig holds the slippage model and its parameter.
type SlippageConfig struct {
	Model SlippageModel
	Bps   float64 // basis points of price, fixed-bps only
}

// FeeConfig is a flat fee rate applied to the notional of every fill.
type FeeConfig struct {
	Rate float64
}

// Config holds the execution assumptions of a run.
type Config struct {
	InitialEquity float64
	Fee           FeeConfig
	Slippage      SlippageConfig
	// DefaultExitPriority applies to bots whose metadata does not set intrabarExitPriority.
	DefaultExitPriority domain.ExitPriority
}

// DefaultConfig returns a frictionless configuration with 1000 units of equity.
func DefaultConfig() Config {
	return Config{
		InitialEquity:       1000,
		Slippage:            SlippageConfig{Model: SlippageNone},
		DefaultExitPriority: domain.StopFirst,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.InitialEquity <= 0 {
		return fmt.Errorf("%w: initial equity must be positive, got %v", ports.ErrInvalidRequest, c.InitialEquity)
	}
	if c.Fee.Rate < 0 {
		return fmt.Errorf("%w: fee rate must not be negative, got %v", ports.ErrInvalidRequest, c.Fee.Rate)
	}
	if _, err := ParseSlippageModel(string(c.Slippage.Model)); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}
	if c.Slippage.Bps < 0 {
		return fmt.Errorf("%w: slippage bps must not be negative, got %v", ports.ErrInvalidRequest, c.Slippage.Bps)
	}
	return nil
}

// Request bounds the simulated window. Candles before From still reach the strategy as
// history, but no bar before From is simulated. Zero times leave that side open.
type Request struct {
	From time.Time
	To   time.Time
}

// window returns the half-open range [start, end) of candle indexes to simulate.
func (r Request) window(candles []domain.Candle) (int, int) {
	start, end := 0, len(candles)
	if !r.From.IsZero() {
		for start < end && candles[start].Time.Before(r.From) {
			start++
		}
	}
	if !r.To.IsZero() {
		for end > start && candles[end-1].Time.After(r.To) {
			end--
		}
	}
	return start, end
}
