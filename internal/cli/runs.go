package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tradecore/internal/ports"
	"tradecore/internal/strategy/analytics"
)

func newListCmd(s *session) *cobra.Command {
	var botID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.listRuns(cmd.Context(), cmd.OutOrStdout(), botID, limit)
		},
	}
	cmd.Flags().StringVar(&botID, "bot", "", "Only list runs of this bot")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	return cmd
}

func newShowCmd(s *session) *cobra.Command {
	var trades int
	cmd := &cobra.Command{
		Use:   "show [RUN_ID]",
		Short: "Show the performance report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.showRun(cmd.Context(), cmd.OutOrStdout(), args[0], trades)
		},
	}
	cmd.Flags().IntVar(&trades, "trades", 20, "Number of trades to list")
	return cmd
}

func (s *session) listRuns(ctx context.Context, out io.Writer, botID string, limit int) error {
	repo, err := s.openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	runs, err := repo.ListRuns(ctx, botID, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs stored yet.")
		return nil
	}
	fmt.Fprintln(out, renderRuns(runs))
	return nil
}

func (s *session) showRun(ctx context.Context, out io.Writer, id string, trades int) error {
	repo, err := s.openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	run, err := repo.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: run %s", ports.ErrNotFound, id)
	}

	metrics := analytics.AnalyzePerformance(run.Result, run.InitialEquity)
	title := fmt.Sprintf("Run %s  %s %s %s", run.ID, run.Symbol, run.Timeframe, run.Result.StrategyID)
	fmt.Fprintln(out, renderSummary(title, metrics))
	if trades > 0 && len(metrics.Trades) > 0 {
		fmt.Fprintln(out, renderTrades(metrics.Trades, trades))
	}
	if months := metrics.GetMonthlyReturns(); len(months) > 0 {
		fmt.Fprintln(out, renderMonthly(months))
	}
	return nil
}
