// Package cli implements the backtest_runner and fetch_klines commands.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tradecore/config"
	"tradecore/internal/adapters/logger"
	"tradecore/internal/adapters/sqlite"
	"tradecore/internal/domain"
	"tradecore/internal/ports"
)

// session carries what every subcommand needs once the root command has run its setup.
type session struct {
	cfg    *config.Config
	logger ports.Logger
	flush  func() error

	// Flag overrides applied on top of the environment
	symbol    string
	timeframe string
	dataDir   string
	dbPath    string
}

// setup loads configuration and builds the logger.
func (s *session) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if s.symbol != "" {
		cfg.Symbol = strings.ToUpper(s.symbol)
	}
	if s.timeframe != "" {
		tf, ok := domain.ParseTimeframe(s.timeframe)
		if !ok {
			return fmt.Errorf("%w: unknown timeframe %q", ports.ErrInvalidRequest, s.timeframe)
		}
		cfg.Timeframe = tf
	}
	if s.dataDir != "" {
		cfg.DataDir = s.dataDir
	}
	if s.dbPath != "" {
		cfg.DBPath = s.dbPath
	}

	appLogger, flush, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	s.cfg, s.logger, s.flush = cfg, appLogger, flush
	s.logger.Debug(cmd.Context(), "Configuration loaded", map[string]interface{}{
		"symbol":    cfg.Symbol,
		"timeframe": string(cfg.Timeframe),
		"strategy":  cfg.StrategyID,
	})
	return nil
}

func (s *session) teardown(cmd *cobra.Command, args []string) error {
	if s.flush != nil {
		// Syncing a zap logger on a terminal stderr fails harmlessly on some platforms.
		_ = s.flush()
	}
	return nil
}

func (s *session) openRepository() (*sqlite.Repository, error) {
	return sqlite.NewRepository(sqlite.Config{DBPath: s.cfg.DBPath, Logger: s.logger})
}

func (s *session) addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&s.symbol, "symbol", "", "Trading symbol (overrides SYMBOL)")
	cmd.PersistentFlags().StringVar(&s.timeframe, "timeframe", "", "Execution timeframe (overrides TIMEFRAME)")
	cmd.PersistentFlags().StringVar(&s.dataDir, "data-dir", "", "Candle CSV directory (overrides DATA_DIR)")
	cmd.PersistentFlags().StringVar(&s.dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
}

// NewRootCmd creates the backtest_runner root command
func NewRootCmd() *cobra.Command {
	s := &session{}

	rootCmd := &cobra.Command{
		Use:   "backtest_runner",
		Short: "Bar-by-bar backtests over stored candles",
		Long: `backtest_runner replays stored candles through a strategy, simulating fills,
fees and slippage bar by bar, and stores every run in a local SQLite database.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  s.setup,
		PersistentPostRunE: s.teardown,
	}
	s.addPersistentFlags(rootCmd)

	rootCmd.AddCommand(newRunCmd(s))
	rootCmd.AddCommand(newSweepCmd(s))
	rootCmd.AddCommand(newListCmd(s))
	rootCmd.AddCommand(newShowCmd(s))

	return rootCmd
}

// parseDate accepts YYYY-MM-DD or RFC3339. The empty string is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, use YYYY-MM-DD or RFC3339", ports.ErrInvalidRequest, s)
	}
	return t.UTC(), nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := parseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: --to is before --from", ports.ErrInvalidRequest)
	}
	return start, end, nil
}
