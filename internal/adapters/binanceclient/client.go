// Package binanceclient loads historical candles from Binance USD-M futures.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	maxPageLimit = 1500
)

// Client implements ports.MarketDataProvider using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	retryDelay    time.Duration
	maxRetries    int
	pageLimit     int
}

var _ ports.MarketDataProvider = (*Client)(nil)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // Overrides the production/testnet URL when set
	Logger     ports.Logger
	RetryDelay time.Duration // Initial delay before retrying a rate-limited request
	MaxRetries int
	PageLimit  int // Candles per request, capped at 1500
}

// New creates a new Binance client adapter. Keys are optional; candle endpoints are public.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for Binance client", ports.ErrConfigurationError)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 || pageLimit > maxPageLimit {
		pageLimit = maxPageLimit
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		retryDelay:    retryDelay,
		maxRetries:    maxRetries,
		pageLimit:     pageLimit,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015:
			mappedErr = ports.ErrInvalidAPIKeys
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1121, -1130:
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks connectivity to the REST API.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, "Ping")
	}
	return nil
}

// GetServerTime returns the exchange clock.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	ms, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, "GetServerTime")
	}
	return time.UnixMilli(ms).UTC(), nil
}

// LoadCandles pages through the klines endpoint and returns every candle whose open time lies
// in [from, to]. A zero to means now. Rate-limited requests are retried with backoff.
func (c *Client) LoadCandles(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	const op = "LoadCandles"
	if symbol == "" || tf.Duration() <= 0 {
		return nil, fmt.Errorf("%w: symbol %q timeframe %q", ports.ErrInvalidRequest, symbol, tf)
	}
	if to.IsZero() {
		to = time.Now()
	}
	if !from.IsZero() && to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s before start %s", ports.ErrInvalidRequest, to, from)
	}

	var candles []domain.Candle
	cursor := from
	for {
		page, err := c.fetchPage(ctx, symbol, tf, cursor, to)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		for _, bk := range page {
			candle, err := translateBinanceKline(bk)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
			}
			if n := len(candles); n > 0 && !candle.Time.After(candles[n-1].Time) {
				continue
			}
			candles = append(candles, candle)
		}
		if len(page) < c.pageLimit {
			break
		}
		cursor = time.UnixMilli(page[len(page)-1].OpenTime + 1)
		if cursor.After(to) {
			break
		}
	}

	c.logger.Debug(ctx, "Candles loaded", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": string(tf),
		"count":     len(candles),
	})
	return candles, nil
}

func (c *Client) fetchPage(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]*futures.Kline, error) {
	b := &backoff.Backoff{Min: c.retryDelay, Max: 30 * time.Second, Factor: 2, Jitter: true}
	for {
		svc := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(string(tf)).
			EndTime(to.UnixMilli()).
			Limit(c.pageLimit)
		if !from.IsZero() {
			svc = svc.StartTime(from.UnixMilli())
		}

		page, err := svc.Do(ctx)
		if err == nil {
			return page, nil
		}
		if !isRateLimited(err) || int(b.Attempt()) >= c.maxRetries {
			return nil, err
		}

		delay := b.Duration()
		c.logger.Warn(ctx, "Rate limited, retrying", map[string]interface{}{
			"symbol":  symbol,
			"attempt": int(b.Attempt()),
			"delay":   delay.String(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func isRateLimited(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && (apiErr.Code == -1003 || apiErr.Code == -1015)
}

func translateBinanceKline(bk *futures.Kline) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Candle{
		Time:   time.UnixMilli(bk.OpenTime).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  cls,
		Volume: vol,
	}, nil
}
