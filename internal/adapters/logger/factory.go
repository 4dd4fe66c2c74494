package logger

import (
	"fmt"

	"tradecore/internal/ports"
)

// Output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns the logger for format together with a flush function to call before exit.
func New(format string, level LogLevel) (ports.Logger, func() error, error) {
	switch format {
	case "", FormatText:
		return NewStdLogger(level), func() error { return nil }, nil
	case FormatJSON:
		zl, err := NewProductionZapLogger(level)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: building zap logger: %w", ports.ErrConfigurationError, err)
		}
		return zl, zl.Sync, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown log format %q", ports.ErrConfigurationError, format)
	}
}
