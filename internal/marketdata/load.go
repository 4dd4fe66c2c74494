// Package marketdata assembles the execution series and auxiliary timeframes of a run.
package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
)

// Load fetches the execution series and every auxiliary timeframe concurrently. Auxiliary
// series start one of their own bars before from, so the first execution bar already sees
// a closed higher-timeframe candle. Duplicate or execution-equal aux timeframes are ignored.
func Load(ctx context.Context, provider ports.MarketDataProvider, symbol string, execTF domain.Timeframe, auxTFs []domain.Timeframe, from, to time.Time) (domain.MarketData, error) {
	if provider == nil {
		return domain.MarketData{}, fmt.Errorf("%w: market data provider is required", ports.ErrConfigurationError)
	}
	if execTF.Duration() <= 0 {
		return domain.MarketData{}, fmt.Errorf("%w: unknown execution timeframe %q", ports.ErrInvalidRequest, execTF)
	}

	data := domain.MarketData{Symbol: symbol, Timeframe: execTF}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		candles, err := provider.LoadCandles(gctx, symbol, execTF, from, to)
		if err != nil {
			return fmt.Errorf("loading %s %s: %w", symbol, execTF, err)
		}
		if len(candles) == 0 {
			return fmt.Errorf("%w: %s %s", ports.ErrNoMarketData, symbol, execTF)
		}
		data.Candles = candles
		return nil
	})

	seen := map[domain.Timeframe]bool{execTF: true}
	for _, tf := range auxTFs {
		if seen[tf] {
			continue
		}
		seen[tf] = true
		if tf.Duration() <= 0 {
			return domain.MarketData{}, fmt.Errorf("%w: unknown auxiliary timeframe %q", ports.ErrInvalidRequest, tf)
		}

		auxFrom := from
		if !auxFrom.IsZero() {
			auxFrom = auxFrom.Add(-tf.Duration())
		}
		tf := tf
		g.Go(func() error {
			candles, err := provider.LoadCandles(gctx, symbol, tf, auxFrom, to)
			if err != nil {
				return fmt.Errorf("loading %s %s: %w", symbol, tf, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if data.Series == nil {
				data.Series = make(map[string][]domain.Candle)
			}
			data.Series[string(tf)] = candles
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.MarketData{}, err
	}
	return data, nil
}
