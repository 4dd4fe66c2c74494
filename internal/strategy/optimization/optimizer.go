// Package optimization sweeps strategy parameters over a fixed backtest input.
package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"tradecore/internal/backtest"
	"tradecore/internal/domain"
	"tradecore/internal/ports"
	"tradecore/internal/strategy/analytics"
	"tradecore/internal/strategy/strategies"
)

// ParameterRange defines a range for a parameter to optimize
type ParameterRange struct {
	Name  string
	Min   float64
	Max   float64
	Step  float64
	IsInt bool
}

// ScoreFunction ranks a finished run. Higher is better.
type ScoreFunction func(*analytics.PerformanceMetrics) float64

// OptimizationResult holds the outcome of one parameter combination.
type OptimizationResult struct {
	Parameters map[string]float64
	Key        string
	Result     *domain.BacktestResult
	Metrics    *analytics.PerformanceMetrics
	Score      float64
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	ParameterRanges []ParameterRange
	ScoreFunction   ScoreFunction // DefaultScoreFunction when nil
	MaxConcurrency  int           // runtime.NumCPU() when <= 0
}

// Validate checks the ranges for a finite, non-empty grid.
func (c OptimizerConfig) Validate() error {
	if len(c.ParameterRanges) == 0 {
		return fmt.Errorf("%w: no parameter ranges", ports.ErrConfigurationError)
	}
	seen := make(map[string]bool, len(c.ParameterRanges))
	for _, r := range c.ParameterRanges {
		switch {
		case r.Name == "":
			return fmt.Errorf("%w: parameter range without a name", ports.ErrConfigurationError)
		case seen[r.Name]:
			return fmt.Errorf("%w: duplicate parameter %q", ports.ErrConfigurationError, r.Name)
		case r.Step <= 0:
			return fmt.Errorf("%w: parameter %q needs a positive step", ports.ErrConfigurationError, r.Name)
		case r.Max < r.Min:
			return fmt.Errorf("%w: parameter %q has max below min", ports.ErrConfigurationError, r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// Optimizer runs one backtest per parameter combination.
type Optimizer struct {
	config OptimizerConfig
	engine *backtest.Engine
	logger ports.Logger
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(config OptimizerConfig, engine *backtest.Engine, logger ports.Logger) (*Optimizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: backtest engine is required", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for optimizer", ports.ErrConfigurationError)
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = runtime.NumCPU()
	}
	return &Optimizer{config: config, engine: engine, logger: logger}, nil
}

// Optimize backtests every combination against base and returns the results sorted by
// score, best first, ties broken by parameter key. The strategy named by base.Bot.StrategyID
// is rebuilt per combination from the bot's config with the combination applied on top.
// Combinations the strategy rejects, or whose run fails, are logged and left out.
func (o *Optimizer) Optimize(ctx context.Context, base backtest.Input) ([]OptimizationResult, error) {
	combinations := o.generateParameterCombinations()
	slots := make([]*OptimizationResult, len(combinations))

	o.logger.Info(ctx, "Optimization started", map[string]interface{}{
		"botId":        base.Bot.ID,
		"strategyId":   base.Bot.StrategyID,
		"combinations": len(combinations),
		"concurrency":  o.config.MaxConcurrency,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxConcurrency)
	for i, params := range combinations {
		i, params := i, params
		g.Go(func() error {
			res, err := o.evaluate(gctx, base, params)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				o.logger.Warn(gctx, "Combination skipped", map[string]interface{}{
					"params": parameterKey(params),
					"error":  err.Error(),
				})
				return nil
			}
			slots[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}

	results := make([]OptimizationResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	sortResultsByScore(results)

	o.logger.Info(ctx, "Optimization finished", map[string]interface{}{
		"botId":     base.Bot.ID,
		"evaluated": len(results),
		"skipped":   len(combinations) - len(results),
	})
	return results, nil
}

func (o *Optimizer) evaluate(ctx context.Context, base backtest.Input, params map[string]float64) (*OptimizationResult, error) {
	in := base
	in.Bot.StrategyConfig = base.Bot.StrategyConfig.Clone(params)

	strategy, err := strategies.New(in.Bot.StrategyID, in.Bot.StrategyConfig, o.logger)
	if err != nil {
		return nil, err
	}
	in.Strategy = strategy

	result, err := o.engine.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	metrics := analytics.AnalyzePerformance(result, in.Config.InitialEquity)
	return &OptimizationResult{
		Parameters: params,
		Key:        parameterKey(params),
		Result:     result,
		Metrics:    metrics,
		Score:      o.config.ScoreFunction(metrics),
	}, nil
}

// generateParameterCombinations generates all possible parameter combinations
func (o *Optimizer) generateParameterCombinations() []map[string]float64 {
	var combinations []map[string]float64
	current := make(map[string]float64, len(o.config.ParameterRanges))

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combination := make(map[string]float64, len(current))
			for k, v := range current {
				combination[k] = v
			}
			combinations = append(combinations, combination)
			return
		}

		param := o.config.ParameterRanges[paramIndex]
		// Stepping by index keeps accumulated float error out of the grid.
		steps := int(math.Floor((param.Max-param.Min)/param.Step + 1e-9))
		for n := 0; n <= steps; n++ {
			value := param.Min + float64(n)*param.Step
			if param.IsInt {
				value = math.Round(value)
			} else {
				value = math.Round(value*1e9) / 1e9
			}
			current[param.Name] = value
			generate(paramIndex + 1)
		}
	}

	generate(0)
	return combinations
}

// parameterKey renders a combination as sorted name=value pairs.
func parameterKey(params map[string]float64) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + strconv.FormatFloat(params[name], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// sortResultsByScore sorts optimization results by score in descending order
func sortResultsByScore(results []OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key < results[j].Key
	})
}

// DefaultScoreFunction provides a default scoring function for optimization
func DefaultScoreFunction(metrics *analytics.PerformanceMetrics) float64 {
	score := 0.0

	score += metrics.WinRate * 0.3
	score += math.Min(metrics.ProfitFactor, 10) * 0.2
	score += (1 - metrics.MaxDrawdownPct) * 0.2
	score += metrics.ReturnOnInvestment * 0.2
	score += math.Min(metrics.RiskRewardRatio, 10) * 0.1

	return score
}
