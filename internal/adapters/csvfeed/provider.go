// Package csvfeed serves candles from CSV files laid out as <dir>/<SYMBOL>_<TF>.csv.
package csvfeed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
	"tradecore/internal/utils"
)

// Provider implements ports.MarketDataProvider over a directory of candle files.
type Provider struct {
	dir    string
	logger ports.Logger
}

var _ ports.MarketDataProvider = (*Provider)(nil)

// NewProvider creates a provider rooted at dir.
func NewProvider(dir string, logger ports.Logger) (*Provider, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: data directory is required", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for CSV provider", ports.ErrConfigurationError)
	}
	return &Provider{dir: dir, logger: logger}, nil
}

// Path returns the file the provider reads for symbol and tf.
func (p *Provider) Path(symbol string, tf domain.Timeframe) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), tf))
}

// LoadCandles returns the candles of the file whose open time lies in [from, to], sorted
// ascending with duplicate timestamps dropped.
func (p *Provider) LoadCandles(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	if symbol == "" || tf == "" {
		return nil, fmt.Errorf("%w: symbol and timeframe are required", ports.ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := p.Path(symbol, tf)
	all, err := utils.ReadCandlesFromCSV(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ports.ErrNoMarketData, path)
		}
		return nil, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })

	candles := make([]domain.Candle, 0, len(all))
	for _, c := range all {
		if !from.IsZero() && c.Time.Before(from) {
			continue
		}
		if !to.IsZero() && c.Time.After(to) {
			continue
		}
		if n := len(candles); n > 0 && c.Time.Equal(candles[n-1].Time) {
			continue
		}
		candles = append(candles, c)
	}

	p.logger.Debug(ctx, "Candles loaded from CSV", map[string]interface{}{
		"path":  path,
		"read":  len(all),
		"count": len(candles),
	})
	return candles, nil
}
