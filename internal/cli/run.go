package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"tradecore/internal/adapters/csvfeed"
	"tradecore/internal/backtest"
	"tradecore/internal/domain"
	"tradecore/internal/marketdata"
	"tradecore/internal/ports"
	"tradecore/internal/risk"
	"tradecore/internal/strategy/analytics"
	"tradecore/internal/strategy/strategies"
	"tradecore/internal/utils"
)

type runOptions struct {
	from      string
	to        string
	noSave    bool
	exportDir string
	trades    int
}

func newRunCmd(s *session) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest the configured bot",
		Long: `Backtest the configured bot over the candles stored in DATA_DIR.
Example: backtest_runner run --symbol ETHUSDT --timeframe 1h --from 2024-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runBacktest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", "", "First simulated bar (YYYY-MM-DD); earlier candles serve as history")
	cmd.Flags().StringVar(&opts.to, "to", "", "Last simulated bar (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not store the run in the database")
	cmd.Flags().StringVar(&opts.exportDir, "export", "", "Directory to write fills and equity curve CSV files to")
	cmd.Flags().IntVar(&opts.trades, "trades", 10, "Number of trades to list in the summary")

	return cmd
}

// prepareInput loads candles and builds the strategy and sizer for the configured bot.
func (s *session) prepareInput(ctx context.Context, from, to time.Time) (backtest.Input, error) {
	bot := s.cfg.BotDefinition()

	var auxTFs []domain.Timeframe
	if name := bot.StrategyConfig.String(strategies.KeyTrendTimeframe, ""); name != "" {
		tf, ok := domain.ParseTimeframe(name)
		if !ok {
			return backtest.Input{}, fmt.Errorf("%w: unknown trend timeframe %q", ports.ErrConfigurationError, name)
		}
		auxTFs = append(auxTFs, tf)
	}

	provider, err := csvfeed.NewProvider(s.cfg.DataDir, s.logger)
	if err != nil {
		return backtest.Input{}, err
	}
	// Everything before from is kept as strategy history.
	market, err := marketdata.Load(ctx, provider, bot.Symbol, bot.ExecutionTimeframe, auxTFs, time.Time{}, to)
	if err != nil {
		return backtest.Input{}, err
	}

	strategy, err := strategies.New(bot.StrategyID, bot.StrategyConfig, s.logger)
	if err != nil {
		return backtest.Input{}, err
	}
	sizer, err := risk.NewRiskSizer(s.cfg.RiskConfig())
	if err != nil {
		return backtest.Input{}, err
	}

	return backtest.Input{
		Request:  backtest.Request{From: from, To: to},
		Bot:      bot,
		Config:   s.cfg.EngineConfig(),
		Strategy: strategy,
		Market:   market,
		Sizer:    sizer,
	}, nil
}

func (s *session) runBacktest(ctx context.Context, out io.Writer, opts runOptions) error {
	from, to, err := parseRange(opts.from, opts.to)
	if err != nil {
		return err
	}
	in, err := s.prepareInput(ctx, from, to)
	if err != nil {
		return err
	}

	result, err := backtest.NewEngine(s.logger).Run(ctx, in)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}
	metrics := analytics.AnalyzePerformance(result, in.Config.InitialEquity)

	title := fmt.Sprintf("%s %s %s", in.Bot.Symbol, in.Bot.ExecutionTimeframe, in.Bot.StrategyID)
	fmt.Fprintln(out, renderSummary(title, metrics))
	if opts.trades > 0 && len(metrics.Trades) > 0 {
		fmt.Fprintln(out, renderTrades(metrics.Trades, opts.trades))
	}

	runID := ""
	if !opts.noSave {
		runID, err = s.saveRun(ctx, in, result)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved run %s\n", runID)
	}

	if opts.exportDir != "" {
		prefix := runID
		if prefix == "" {
			prefix = fmt.Sprintf("%s_%s_%d", in.Bot.Symbol, in.Bot.ExecutionTimeframe, time.Now().Unix())
		}
		if err := exportResult(opts.exportDir, prefix, result); err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported fills and equity curve to %s\n", opts.exportDir)
	}
	return nil
}

func (s *session) saveRun(ctx context.Context, in backtest.Input, result *domain.BacktestResult) (string, error) {
	repo, err := s.openRepository()
	if err != nil {
		return "", err
	}
	defer repo.Close()

	return repo.SaveRun(ctx, &ports.RunRecord{
		Symbol:        in.Bot.Symbol,
		Timeframe:     in.Bot.ExecutionTimeframe,
		InitialEquity: in.Config.InitialEquity,
		Params:        map[string]any(in.Bot.StrategyConfig),
		Result:        result,
	})
}

func exportResult(dir, prefix string, result *domain.BacktestResult) error {
	if err := utils.WriteFillsToCSV(result.Fills, filepath.Join(dir, prefix+"_fills.csv")); err != nil {
		return fmt.Errorf("exporting fills: %w", err)
	}
	if err := utils.WriteEquityToCSV(result.EquityCurve, filepath.Join(dir, prefix+"_equity.csv")); err != nil {
		return fmt.Errorf("exporting equity curve: %w", err)
	}
	return nil
}
