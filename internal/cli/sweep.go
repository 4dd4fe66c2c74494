package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tradecore/internal/backtest"
	"tradecore/internal/ports"
	"tradecore/internal/strategy/optimization"
)

type sweepOptions struct {
	from        string
	to          string
	params      []string
	concurrency int
	top         int
	saveBest    bool
}

func newSweepCmd(s *session) *cobra.Command {
	opts := sweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Backtest a grid of strategy parameters",
		Long: `Backtest every combination of the given parameter ranges and rank them by score.
Example: backtest_runner sweep --param fastPeriod=5:15:5 --param slowPeriod=20:40:10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runSweep(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", "", "First simulated bar (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Last simulated bar (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&opts.params, "param", nil, "Parameter range as name=min:max:step (repeatable)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Parallel backtests (defaults to the number of CPUs)")
	cmd.Flags().IntVar(&opts.top, "top", 10, "Number of results to show")
	cmd.Flags().BoolVar(&opts.saveBest, "save-best", false, "Store the best run in the database")
	_ = cmd.MarkFlagRequired("param")

	return cmd
}

func (s *session) runSweep(ctx context.Context, out io.Writer, opts sweepOptions) error {
	ranges := make([]optimization.ParameterRange, 0, len(opts.params))
	for _, p := range opts.params {
		r, err := parseParamRange(p)
		if err != nil {
			return err
		}
		ranges = append(ranges, r)
	}

	from, to, err := parseRange(opts.from, opts.to)
	if err != nil {
		return err
	}
	in, err := s.prepareInput(ctx, from, to)
	if err != nil {
		return err
	}

	optimizer, err := optimization.NewOptimizer(optimization.OptimizerConfig{
		ParameterRanges: ranges,
		MaxConcurrency:  opts.concurrency,
	}, backtest.NewEngine(s.logger), s.logger)
	if err != nil {
		return err
	}

	results, err := optimizer.Optimize(ctx, in)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: no parameter combination produced a run", ports.ErrStrategyFailed)
	}

	fmt.Fprintln(out, renderSweep(results, opts.top))

	if opts.saveBest {
		best := results[0]
		bestIn := in
		bestIn.Bot.StrategyConfig = in.Bot.StrategyConfig.Clone(best.Parameters)
		runID, err := s.saveRun(ctx, bestIn, best.Result)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved best run %s (%s)\n", runID, best.Key)
	}
	return nil
}

// parseParamRange parses name=min:max:step. The range is integral when all three numbers are.
func parseParamRange(s string) (optimization.ParameterRange, error) {
	name, bounds, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return optimization.ParameterRange{}, fmt.Errorf("%w: parameter range %q, want name=min:max:step", ports.ErrInvalidRequest, s)
	}

	parts := strings.Split(bounds, ":")
	if len(parts) != 3 {
		return optimization.ParameterRange{}, fmt.Errorf("%w: parameter range %q, want name=min:max:step", ports.ErrInvalidRequest, s)
	}
	var nums [3]float64
	isInt := true
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return optimization.ParameterRange{}, fmt.Errorf("%w: parameter range %q: %w", ports.ErrInvalidRequest, s, err)
		}
		nums[i] = v
		if v != math.Trunc(v) {
			isInt = false
		}
	}

	return optimization.ParameterRange{Name: name, Min: nums[0], Max: nums[1], Step: nums[2], IsInt: isInt}, nil
}
