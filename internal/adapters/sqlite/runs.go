package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
)

// SaveRun persists the run and all of its records in one transaction.
func (r *Repository) SaveRun(ctx context.Context, run *ports.RunRecord) (string, error) {
	if run == nil || run.Result == nil {
		return "", fmt.Errorf("%w: run has no result", ports.ErrInvalidRequest)
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	params, err := json.Marshal(run.Params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params for run %s: %w", run.ID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to begin transaction: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback()

	res := run.Result
	m := res.Metrics
	const insertRun = `
	INSERT INTO runs (id, bot_id, strategy_id, symbol, timeframe, initial_equity, params,
	                  total_trades, wins, losses, win_rate, net_pnl, gross_profit, gross_loss,
	                  max_drawdown_pct, ending_equity, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertRun,
		run.ID, res.BotID, res.StrategyID, run.Symbol, string(run.Timeframe), run.InitialEquity, string(params),
		m.TotalTrades, m.Wins, m.Losses, m.WinRate, m.NetPnl, m.GrossProfit, m.GrossLoss,
		m.MaxDrawdownPct, m.EndingEquity, run.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: run %s", ports.ErrDuplicateEntry, run.ID)
		}
		return "", fmt.Errorf("%w: failed to insert run %s: %w", ports.ErrQueryFailed, run.ID, err)
	}

	for i, p := range res.Positions {
		state, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("failed to encode position %s: %w", p.PositionID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_positions (run_id, seq, state) VALUES (?, ?, ?)`,
			run.ID, i, string(state)); err != nil {
			return "", fmt.Errorf("%w: failed to insert position %s: %w", ports.ErrQueryFailed, p.PositionID, err)
		}
	}

	for i, o := range res.Orders {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO run_orders (run_id, seq, order_id, position_id, side, purpose, status,
		                        requested_price, executed_price, requested_quantity, executed_quantity,
		                        created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, o.ID, o.PositionID, string(o.Side), string(o.Purpose), string(o.Status),
			o.RequestedPrice, o.ExecutedPrice, o.RequestedQuantity, o.ExecutedQuantity,
			o.CreatedAtMs, o.UpdatedAtMs); err != nil {
			return "", fmt.Errorf("%w: failed to insert order %s: %w", ports.ErrQueryFailed, o.ID, err)
		}
	}

	for i, f := range res.Fills {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO run_fills (run_id, seq, fill_id, order_id, position_id, reason, label, side,
		                       time_ms, price, quantity, gross_pnl, fee, net_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, f.ID, f.OrderID, f.PositionID, string(f.Reason), f.Label, string(f.Side),
			f.TimeMs, f.Price, f.Quantity, f.GrossPnl, f.Fee, f.NetPnl); err != nil {
			return "", fmt.Errorf("%w: failed to insert fill %s: %w", ports.ErrQueryFailed, f.ID, err)
		}
	}

	for _, pt := range res.EquityCurve {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_equity (run_id, bar_index, time_ms, equity) VALUES (?, ?, ?, ?)`,
			run.ID, pt.Index, pt.TimeMs, pt.Equity); err != nil {
			return "", fmt.Errorf("%w: failed to insert equity point %d: %w", ports.ErrQueryFailed, pt.Index, err)
		}
	}

	for i, e := range res.Timeline {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return "", fmt.Errorf("failed to encode timeline entry %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO run_timeline (run_id, seq, bar_index, time_ms, type, position_id, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, e.Index, e.TimeMs, e.Type, e.PositionID, string(details)); err != nil {
			return "", fmt.Errorf("%w: failed to insert timeline entry %d: %w", ports.ErrQueryFailed, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: failed to commit run %s: %w", ports.ErrQueryFailed, run.ID, err)
	}
	r.logger.Debug(ctx, "Run saved", map[string]interface{}{
		"runId":     run.ID,
		"botId":     res.BotID,
		"positions": len(res.Positions),
		"fills":     len(res.Fills),
	})
	return run.ID, nil
}

// GetRun loads a run with all of its records. Returns nil, nil if not found.
func (r *Repository) GetRun(ctx context.Context, id string) (*ports.RunRecord, error) {
	const query = `
	SELECT id, bot_id, strategy_id, symbol, timeframe, initial_equity, params,
	       total_trades, wins, losses, win_rate, net_pnl, gross_profit, gross_loss,
	       max_drawdown_pct, ending_equity, created_at
	FROM runs
	WHERE id = ?`

	run := &ports.RunRecord{Result: &domain.BacktestResult{}}
	res := run.Result
	m := &res.Metrics
	var timeframe, params string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &res.BotID, &res.StrategyID, &run.Symbol, &timeframe, &run.InitialEquity, &params,
		&m.TotalTrades, &m.Wins, &m.Losses, &m.WinRate, &m.NetPnl, &m.GrossProfit, &m.GrossLoss,
		&m.MaxDrawdownPct, &m.EndingEquity, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Run not found", map[string]interface{}{"runId": id})
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to query run %s: %w", ports.ErrQueryFailed, id, err)
	}
	run.Timeframe = domain.Timeframe(timeframe)
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params of run %s: %w", id, err)
	}

	if res.Positions, err = r.loadPositions(ctx, id); err != nil {
		return nil, err
	}
	if res.Orders, err = r.loadOrders(ctx, id); err != nil {
		return nil, err
	}
	if res.Fills, err = r.loadFills(ctx, id); err != nil {
		return nil, err
	}
	if res.EquityCurve, err = r.loadEquity(ctx, id); err != nil {
		return nil, err
	}
	if res.Timeline, err = r.loadTimeline(ctx, id); err != nil {
		return nil, err
	}
	for i := range res.Orders {
		res.Orders[i].BotID = res.BotID
	}
	for i := range res.Fills {
		res.Fills[i].BotID = res.BotID
	}
	return run, nil
}

// ListRuns returns the newest runs first. An empty botID lists all bots.
func (r *Repository) ListRuns(ctx context.Context, botID string, limit int) ([]ports.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
	SELECT id, bot_id, strategy_id, symbol, timeframe,
	       total_trades, wins, losses, win_rate, net_pnl, gross_profit, gross_loss,
	       max_drawdown_pct, ending_equity, created_at
	FROM runs
	WHERE (? = '' OR bot_id = ?)
	ORDER BY created_at DESC, id
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, botID, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list runs: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	summaries := make([]ports.RunSummary, 0)
	for rows.Next() {
		var s ports.RunSummary
		var timeframe string
		m := &s.Metrics
		if err := rows.Scan(&s.ID, &s.BotID, &s.StrategyID, &s.Symbol, &timeframe,
			&m.TotalTrades, &m.Wins, &m.Losses, &m.WinRate, &m.NetPnl, &m.GrossProfit, &m.GrossLoss,
			&m.MaxDrawdownPct, &m.EndingEquity, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		s.Timeframe = domain.Timeframe(timeframe)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return summaries, nil
}

func (r *Repository) loadPositions(ctx context.Context, runID string) ([]domain.PositionState, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state FROM run_positions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query positions of run %s: %w", ports.ErrQueryFailed, runID, err)
	}
	defer rows.Close()

	var positions []domain.PositionState
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		var p domain.PositionState
		if err := json.Unmarshal([]byte(state), &p); err != nil {
			return nil, fmt.Errorf("failed to decode position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (r *Repository) loadOrders(ctx context.Context, runID string) ([]domain.Order, error) {
	const query = `
	SELECT order_id, position_id, side, purpose, status, requested_price, executed_price,
	       requested_quantity, executed_quantity, created_at_ms, updated_at_ms
	FROM run_orders
	WHERE run_id = ?
	ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query orders of run %s: %w", ports.ErrQueryFailed, runID, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var side, purpose, status string
		if err := rows.Scan(&o.ID, &o.PositionID, &side, &purpose, &status, &o.RequestedPrice, &o.ExecutedPrice,
			&o.RequestedQuantity, &o.ExecutedQuantity, &o.CreatedAtMs, &o.UpdatedAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Side = domain.Side(side)
		o.Purpose = domain.OrderPurpose(purpose)
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *Repository) loadFills(ctx context.Context, runID string) ([]domain.Fill, error) {
	const query = `
	SELECT fill_id, order_id, position_id, reason, label, side, time_ms, price, quantity,
	       gross_pnl, fee, net_pnl
	FROM run_fills
	WHERE run_id = ?
	ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query fills of run %s: %w", ports.ErrQueryFailed, runID, err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var reason, side string
		if err := rows.Scan(&f.ID, &f.OrderID, &f.PositionID, &reason, &f.Label, &side, &f.TimeMs,
			&f.Price, &f.Quantity, &f.GrossPnl, &f.Fee, &f.NetPnl); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		f.Reason = domain.FillReason(reason)
		f.Side = domain.Side(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

func (r *Repository) loadEquity(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT bar_index, time_ms, equity FROM run_equity WHERE run_id = ? ORDER BY bar_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query equity of run %s: %w", ports.ErrQueryFailed, runID, err)
	}
	defer rows.Close()

	var curve []domain.EquityPoint
	for rows.Next() {
		var pt domain.EquityPoint
		if err := rows.Scan(&pt.Index, &pt.TimeMs, &pt.Equity); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		curve = append(curve, pt)
	}
	return curve, rows.Err()
}

func (r *Repository) loadTimeline(ctx context.Context, runID string) ([]domain.TimelineEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT bar_index, time_ms, type, position_id, details
	FROM run_timeline
	WHERE run_id = ?
	ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query timeline of run %s: %w", ports.ErrQueryFailed, runID, err)
	}
	defer rows.Close()

	var timeline []domain.TimelineEntry
	for rows.Next() {
		var e domain.TimelineEntry
		var details string
		if err := rows.Scan(&e.Index, &e.TimeMs, &e.Type, &e.PositionID, &details); err != nil {
			return nil, fmt.Errorf("failed to scan timeline entry: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("failed to decode timeline details: %w", err)
		}
		timeline = append(timeline, e)
	}
	return timeline, rows.Err()
}
