package ports

import (
	"context"
	"time"

	"tradecore/internal/domain"
)

// MarketDataProvider supplies ascending candle series.
type MarketDataProvider interface {
	// LoadCandles returns candles for symbol/timeframe whose open time lies in [from, to].
	// A zero from or to leaves that side unbounded.
	LoadCandles(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error)
}
