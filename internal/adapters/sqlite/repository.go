// Package sqlite stores backtest runs and live position state in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"tradecore/internal/ports"
)

// Repository implements ports.RunRepository and ports.PositionStore using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

var (
	_ ports.RunRepository = (*Repository)(nil)
	_ ports.PositionStore = (*Repository)(nil)
)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (creating if needed) the database and applies the schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for SQLite repository", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradecore.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// One writer; the driver serializes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		initial_equity REAL NOT NULL,
		params TEXT NOT NULL,
		total_trades INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		losses INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		net_pnl REAL NOT NULL,
		gross_profit REAL NOT NULL,
		gross_loss REAL NOT NULL,
		max_drawdown_pct REAL NOT NULL,
		ending_equity REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_positions (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		state TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS run_orders (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		order_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		side TEXT NOT NULL,
		purpose TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_price REAL NOT NULL,
		executed_price REAL NOT NULL,
		requested_quantity REAL NOT NULL,
		executed_quantity REAL NOT NULL,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS run_fills (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		fill_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		label TEXT NOT NULL,
		side TEXT NOT NULL,
		time_ms INTEGER NOT NULL,
		price REAL NOT NULL,
		quantity REAL NOT NULL,
		gross_pnl REAL NOT NULL,
		fee REAL NOT NULL,
		net_pnl REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS run_equity (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		bar_index INTEGER NOT NULL,
		time_ms INTEGER NOT NULL,
		equity REAL NOT NULL,
		PRIMARY KEY (run_id, bar_index)
	);

	CREATE TABLE IF NOT EXISTS run_timeline (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		bar_index INTEGER NOT NULL,
		time_ms INTEGER NOT NULL,
		type TEXT NOT NULL,
		position_id TEXT NOT NULL,
		details TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS positions (
		bot_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		status TEXT NOT NULL,
		quantity REAL NOT NULL,
		remaining_quantity REAL NOT NULL,
		avg_entry_price REAL NOT NULL,
		stop_price REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		unrealized_pnl REAL NOT NULL,
		opened_at_ms INTEGER NOT NULL,
		closed_at_ms INTEGER NOT NULL,
		strategy_context TEXT,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (bot_id, position_id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_bot_created ON runs (bot_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_positions_bot_status ON positions (bot_id, status);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}
