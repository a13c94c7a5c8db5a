package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Statements shared by direct writes and the batch writer.
const (
	InsertSignalSQL = `
		INSERT INTO signals (strategy, symbol, direction, timeframe, entry, stop_loss, take_profit,
			confidence, approved, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	UpsertOrderSQL = `
		INSERT INTO orders (client_id, run_id, exchange_order_id, position_id, symbol, side, reduce_only,
			qty, price, status, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			exchange_order_id = COALESCE(NULLIF(excluded.exchange_order_id, ''), orders.exchange_order_id),
			price = excluded.price,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`

	UpsertPositionSQL = `
		INSERT INTO positions (run_id, id, strategy, symbol, side, status, entry_price, signal_entry, quantity,
			remaining, stop_loss, take_profit, realized_pnl, exchange_order_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, id) DO UPDATE SET
			status = excluded.status,
			entry_price = excluded.entry_price,
			quantity = excluded.quantity,
			remaining = excluded.remaining,
			stop_loss = excluded.stop_loss,
			realized_pnl = excluded.realized_pnl,
			exchange_order_id = excluded.exchange_order_id,
			updated_at = excluded.updated_at`

	InsertPartialExitSQL = `
		INSERT INTO partial_exits (run_id, position_id, qty, price, pnl, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	InsertRiskEventSQL = `
		INSERT INTO risk_events (symbol, strategy, gate, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`
)

// Queries provides journal reads and direct writes.
type Queries struct {
	db *sql.DB
}

// NewQueries creates a Queries instance.
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SignalArgs orders the fields for InsertSignalSQL.
func SignalArgs(s Signal) []any {
	return []any{s.Strategy, s.Symbol, s.Direction, s.Timeframe, s.Entry, s.StopLoss, s.TakeProfit,
		s.Confidence, boolInt(s.Approved), s.Reason, s.CreatedAt}
}

// OrderArgs orders the fields for UpsertOrderSQL.
func OrderArgs(o Order) []any {
	return []any{o.ClientID, o.RunID, o.ExchangeOrderID, int64(o.PositionID), o.Symbol, o.Side, boolInt(o.ReduceOnly),
		o.Qty, o.Price, o.Status, o.Error, o.UpdatedAt}
}

// PositionArgs orders the fields for UpsertPositionSQL.
func PositionArgs(p Position) []any {
	return []any{p.RunID, int64(p.ID), p.Strategy, p.Symbol, p.Side, p.Status, p.EntryPrice, p.SignalEntry, p.Quantity,
		p.Remaining, p.StopLoss, p.TakeProfit, p.RealizedPnL, p.ExchangeOrderID, p.UpdatedAt}
}

// PartialExitArgs orders the fields for InsertPartialExitSQL.
func PartialExitArgs(e PartialExit) []any {
	return []any{e.RunID, int64(e.PositionID), e.Qty, e.Price, e.PnL, e.CreatedAt}
}

// RiskEventArgs orders the fields for InsertRiskEventSQL.
func RiskEventArgs(r RiskEvent) []any {
	return []any{r.Symbol, r.Strategy, r.Gate, r.Reason, r.CreatedAt}
}

// InsertSignal writes one signal row.
func (q *Queries) InsertSignal(ctx context.Context, s Signal) error {
	_, err := q.db.ExecContext(ctx, InsertSignalSQL, SignalArgs(s)...)
	return err
}

// UpsertPosition writes the latest position state.
func (q *Queries) UpsertPosition(ctx context.Context, p Position) error {
	_, err := q.db.ExecContext(ctx, UpsertPositionSQL, PositionArgs(p)...)
	return err
}

// InsertPartialExit records one exit.
func (q *Queries) InsertPartialExit(ctx context.Context, e PartialExit) error {
	_, err := q.db.ExecContext(ctx, InsertPartialExitSQL, PartialExitArgs(e)...)
	return err
}

// ListPositions returns the most recently created positions across runs, newest first.
func (q *Queries) ListPositions(ctx context.Context, limit int) ([]Position, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT run_id, id, strategy, symbol, side, status, entry_price, COALESCE(signal_entry, 0), quantity, remaining,
			stop_loss, take_profit, realized_pnl, COALESCE(exchange_order_id, ''), updated_at
		FROM positions
		ORDER BY row_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		var id int64
		if err := rows.Scan(&p.RunID, &id, &p.Strategy, &p.Symbol, &p.Side, &p.Status, &p.EntryPrice, &p.SignalEntry,
			&p.Quantity, &p.Remaining, &p.StopLoss, &p.TakeProfit, &p.RealizedPnL, &p.ExchangeOrderID,
			&p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.ID = uint64(id)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListSignals returns the most recent signals, newest first.
func (q *Queries) ListSignals(ctx context.Context, limit int) ([]Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, direction, COALESCE(timeframe, ''), entry, stop_loss, take_profit,
			confidence, approved, COALESCE(reason, ''), created_at
		FROM signals
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var s Signal
		var approved int
		if err := rows.Scan(&s.ID, &s.Strategy, &s.Symbol, &s.Direction, &s.Timeframe, &s.Entry, &s.StopLoss,
			&s.TakeProfit, &s.Confidence, &approved, &s.Reason, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Approved = approved != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetOrder returns one order by client id.
func (q *Queries) GetOrder(ctx context.Context, clientID string) (Order, error) {
	var o Order
	var posID int64
	var reduce int
	err := q.db.QueryRowContext(ctx, `
		SELECT client_id, run_id, COALESCE(exchange_order_id, ''), COALESCE(position_id, 0), symbol, side, reduce_only,
			qty, price, status, COALESCE(error, ''), updated_at
		FROM orders WHERE client_id = ?`, clientID).
		Scan(&o.ClientID, &o.RunID, &o.ExchangeOrderID, &posID, &o.Symbol, &o.Side, &reduce, &o.Qty, &o.Price,
			&o.Status, &o.Error, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("query order: %w", err)
	}
	o.PositionID = uint64(posID)
	o.ReduceOnly = reduce != 0
	return o, nil
}

// RealizedPnLSince sums exit pnl and counts exits from sinceMs on.
func (q *Queries) RealizedPnLSince(ctx context.Context, sinceMs int64) (pnl float64, exits int, err error) {
	err = q.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(pnl), 0), COUNT(*) FROM partial_exits WHERE created_at >= ?`, sinceMs).
		Scan(&pnl, &exits)
	if err != nil {
		return 0, 0, fmt.Errorf("sum pnl: %w", err)
	}
	return pnl, exits, nil
}

// CountRiskEvents counts rejections by gate.
func (q *Queries) CountRiskEvents(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT gate, COUNT(*) FROM risk_events GROUP BY gate`)
	if err != nil {
		return nil, fmt.Errorf("query risk events: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var gate string
		var n int
		if err := rows.Scan(&gate, &n); err != nil {
			return nil, err
		}
		out[gate] = n
	}
	return out, rows.Err()
}
