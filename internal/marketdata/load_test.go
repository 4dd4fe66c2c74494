package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
)

type call struct {
	tf   domain.Timeframe
	from time.Time
}

// stubProvider returns one candle per requested timeframe and records calls.
type stubProvider struct {
	mu    sync.Mutex
	calls []call
	fail  domain.Timeframe
	empty bool
}

func (s *stubProvider) LoadCandles(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{tf: tf, from: from})
	s.mu.Unlock()

	if tf == s.fail {
		return nil, errors.New("boom")
	}
	if s.empty {
		return nil, nil
	}
	return []domain.Candle{{Time: from, Close: float64(tf.Duration() / time.Minute)}}, nil
}

func TestLoad(t *testing.T) {
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)
	p := &stubProvider{}

	data, err := Load(context.Background(), p, "ETHUSDT", domain.TF1h, []domain.Timeframe{domain.TF4h, domain.TF1h, domain.TF4h, domain.TF1d}, from, to)
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", data.Symbol)
	assert.Equal(t, domain.TF1h, data.Timeframe)
	require.Len(t, data.Candles, 1)
	assert.Equal(t, 60.0, data.Candles[0].Close)

	require.Len(t, data.Series, 2)
	assert.Equal(t, 240.0, data.Series["4h"][0].Close)
	assert.Equal(t, 1440.0, data.Series["1d"][0].Close)
	assert.Len(t, p.calls, 3)

	for _, c := range p.calls {
		switch c.tf {
		case domain.TF1h:
			assert.True(t, c.from.Equal(from))
		case domain.TF4h:
			assert.True(t, c.from.Equal(from.Add(-4*time.Hour)))
		case domain.TF1d:
			assert.True(t, c.from.Equal(from.Add(-24*time.Hour)))
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Load(ctx, nil, "ETHUSDT", domain.TF1h, nil, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = Load(ctx, &stubProvider{}, "ETHUSDT", domain.Timeframe("2w"), nil, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = Load(ctx, &stubProvider{}, "ETHUSDT", domain.TF1h, []domain.Timeframe{"2w"}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = Load(ctx, &stubProvider{empty: true}, "ETHUSDT", domain.TF1h, nil, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ports.ErrNoMarketData)

	_, err = Load(ctx, &stubProvider{fail: domain.TF4h}, "ETHUSDT", domain.TF1h, []domain.Timeframe{domain.TF4h}, time.Time{}, time.Time{})
	assert.ErrorContains(t, err, "loading ETHUSDT 4h: boom")
}
