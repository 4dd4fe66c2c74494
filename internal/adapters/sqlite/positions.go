package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
)

const positionColumns = `
	bot_id, position_id, symbol, side, status, quantity, remaining_quantity, avg_entry_price,
	stop_price, realized_pnl, unrealized_pnl, opened_at_ms, closed_at_ms, strategy_context`

// SavePosition inserts or replaces the record keyed by bot and position ID.
func (r *Repository) SavePosition(ctx context.Context, pos *domain.PositionState) error {
	if pos == nil || pos.BotID == "" || pos.PositionID == "" {
		return fmt.Errorf("%w: position needs bot and position ids", ports.ErrInvalidRequest)
	}

	var strategyContext sql.NullString
	if pos.StrategyContext != nil {
		raw, err := json.Marshal(pos.StrategyContext)
		if err != nil {
			return fmt.Errorf("failed to encode strategy context of position %s: %w", pos.PositionID, err)
		}
		strategyContext = sql.NullString{String: string(raw), Valid: true}
	}

	const query = `
	INSERT INTO positions (` + positionColumns + `, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (bot_id, position_id) DO UPDATE SET
		symbol = excluded.symbol,
		side = excluded.side,
		status = excluded.status,
		quantity = excluded.quantity,
		remaining_quantity = excluded.remaining_quantity,
		avg_entry_price = excluded.avg_entry_price,
		stop_price = excluded.stop_price,
		realized_pnl = excluded.realized_pnl,
		unrealized_pnl = excluded.unrealized_pnl,
		opened_at_ms = excluded.opened_at_ms,
		closed_at_ms = excluded.closed_at_ms,
		strategy_context = excluded.strategy_context,
		updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query,
		pos.BotID, pos.PositionID, pos.Symbol, string(pos.Side), string(pos.Status),
		pos.Quantity, pos.RemainingQuantity, pos.AvgEntryPrice, pos.StopPrice,
		pos.RealizedPnl, pos.UnrealizedPnl, pos.OpenedAtMs, pos.ClosedAtMs, strategyContext,
		time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: failed to save position %s/%s: %w", ports.ErrUpdateFailed, pos.BotID, pos.PositionID, err)
	}
	r.logger.Debug(ctx, "Position saved", map[string]interface{}{
		"botId":      pos.BotID,
		"positionId": pos.PositionID,
		"status":     string(pos.Status),
	})
	return nil
}

// FindPosition returns nil, nil if not found.
func (r *Repository) FindPosition(ctx context.Context, botID, positionID string) (*domain.PositionState, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE bot_id = ? AND position_id = ?`

	pos, err := scanPosition(r.db.QueryRowContext(ctx, query, botID, positionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Position not found", map[string]interface{}{"botId": botID, "positionId": positionID})
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to query position %s/%s: %w", ports.ErrQueryFailed, botID, positionID, err)
	}
	return pos, nil
}

// FindActiveByBot returns every non-closed position of a bot, oldest first.
func (r *Repository) FindActiveByBot(ctx context.Context, botID string) ([]*domain.PositionState, error) {
	query := `SELECT ` + positionColumns + `
	FROM positions
	WHERE bot_id = ? AND status != ?
	ORDER BY opened_at_ms, position_id`

	rows, err := r.db.QueryContext(ctx, query, botID, string(domain.StatusClosed))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query active positions of bot %s: %w", ports.ErrQueryFailed, botID, err)
	}
	defer rows.Close()

	positions := make([]*domain.PositionState, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindActiveByBot: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// scanner is the common Scan method of *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row scanner) (*domain.PositionState, error) {
	var pos domain.PositionState
	var side, status string
	var strategyContext sql.NullString

	err := row.Scan(
		&pos.BotID, &pos.PositionID, &pos.Symbol, &side, &status,
		&pos.Quantity, &pos.RemainingQuantity, &pos.AvgEntryPrice, &pos.StopPrice,
		&pos.RealizedPnl, &pos.UnrealizedPnl, &pos.OpenedAtMs, &pos.ClosedAtMs, &strategyContext,
	)
	if err != nil {
		return nil, err
	}
	pos.Side = domain.Side(side)
	pos.Status = domain.PositionStatus(status)

	if strategyContext.Valid {
		pos.StrategyContext = &domain.StrategyContext{}
		if err := json.Unmarshal([]byte(strategyContext.String), pos.StrategyContext); err != nil {
			return nil, fmt.Errorf("failed to decode strategy context: %w", err)
		}
	}
	return &pos, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
