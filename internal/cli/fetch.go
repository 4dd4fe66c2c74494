package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"tradecore/internal/adapters/binanceclient"
	"tradecore/internal/adapters/csvfeed"
	"tradecore/internal/domain"
	"tradecore/internal/ports"
	"tradecore/internal/utils"
)

type fetchOptions struct {
	timeframes []string
	from       string
	to         string
	days       int
}

// NewFetchKlinesCmd creates the fetch_klines root command
func NewFetchKlinesCmd() *cobra.Command {
	s := &session{}
	opts := fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch_klines",
		Short: "Download Binance futures candles into DATA_DIR",
		Long: `fetch_klines downloads historical candles from Binance USD-M futures and writes one
CSV file per timeframe to DATA_DIR as <SYMBOL>_<TF>.csv, the layout backtest_runner reads.
Example: fetch_klines --symbol ETHUSDT --timeframes 1h,4h --days 180`,
		Args:               cobra.NoArgs,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  s.setup,
		PersistentPostRunE: s.teardown,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.fetchKlines(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	s.addPersistentFlags(cmd)

	cmd.Flags().StringSliceVar(&opts.timeframes, "timeframes", nil, "Timeframes to download (defaults to TIMEFRAME)")
	cmd.Flags().StringVar(&opts.from, "from", "", "Start date (YYYY-MM-DD); overrides --days")
	cmd.Flags().StringVar(&opts.to, "to", "", "End date (YYYY-MM-DD), now when empty")
	cmd.Flags().IntVar(&opts.days, "days", 90, "Days of history to download when --from is not set")

	return cmd
}

func (s *session) fetchKlines(ctx context.Context, out io.Writer, opts fetchOptions) error {
	from, to, err := parseRange(opts.from, opts.to)
	if err != nil {
		return err
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		if opts.days <= 0 {
			return fmt.Errorf("%w: --days must be positive", ports.ErrInvalidRequest)
		}
		from = to.AddDate(0, 0, -opts.days)
	}

	timeframes := []domain.Timeframe{s.cfg.Timeframe}
	if len(opts.timeframes) > 0 {
		timeframes = timeframes[:0]
		for _, name := range opts.timeframes {
			tf, ok := domain.ParseTimeframe(name)
			if !ok {
				return fmt.Errorf("%w: unknown timeframe %q", ports.ErrInvalidRequest, name)
			}
			timeframes = append(timeframes, tf)
		}
	}

	client, err := binanceclient.New(binanceclient.Config{
		APIKey:     s.cfg.APIKey,
		SecretKey:  s.cfg.SecretKey,
		UseTestnet: s.cfg.IsTestnet,
		BaseURL:    s.cfg.APIBaseURL,
		Logger:     s.logger,
		RetryDelay: s.cfg.ReconnectDelay,
	})
	if err != nil {
		return err
	}
	feed, err := csvfeed.NewProvider(s.cfg.DataDir, s.logger)
	if err != nil {
		return err
	}

	for _, tf := range timeframes {
		fmt.Fprintf(out, "Fetching %s %s from %s to %s...\n", s.cfg.Symbol, tf, from.Format(time.RFC3339), to.Format(time.RFC3339))
		candles, err := client.LoadCandles(ctx, s.cfg.Symbol, tf, from, to)
		if err != nil {
			return err
		}
		if len(candles) == 0 {
			s.logger.Warn(ctx, "No candles returned", map[string]interface{}{"symbol": s.cfg.Symbol, "timeframe": string(tf)})
			continue
		}

		filename := feed.Path(s.cfg.Symbol, tf)
		if err := utils.WriteCandlesToCSV(candles, filename); err != nil {
			return fmt.Errorf("writing %s: %w", filename, err)
		}
		s.logger.Info(ctx, "Saved candles", map[string]interface{}{"filename": filename, "count": len(candles)})
		fmt.Fprintf(out, "Saved %d candles to %s\n", len(candles), filename)
	}
	return nil
}
