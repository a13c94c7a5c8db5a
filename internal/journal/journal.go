// Package journal records signals, orders, positions and risk rejections in SQLite.
package journal

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/events"
	"bingx-trading-bot/internal/persistence"
	"bingx-trading-bot/pkg/db"
)

// Writer accepts write operations, normally a *persistence.BatchWriter.
type Writer interface {
	Write(op persistence.WriteOp) error
}

// Journal drains bus events into the writer. Position rows are keyed by runID because
// position ids restart with every process.
type Journal struct {
	bus    *events.Bus
	writer Writer
	runID  string
	log    zerolog.Logger
}

func New(bus *events.Bus, writer Writer, runID string, log zerolog.Logger) *Journal {
	return &Journal{
		bus:    bus,
		writer: writer,
		runID:  runID,
		log:    log.With().Str("component", "journal").Str("run_id", runID).Logger(),
	}
}

// Topics are the events the journal persists.
var Topics = []events.Event{
	events.EventStrategySignal,
	events.EventRiskAlert,
	events.EventOrderSubmitted,
	events.EventOrderAccepted,
	events.EventOrderRejected,
	events.EventOrderFilled,
	events.EventPositionChange,
}

// Run blocks until ctx is done or the bus closes.
func (j *Journal) Run(ctx context.Context) {
	ch, unsub := j.bus.SubscribeMany(256, Topics...)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			j.Record(v)
		}
	}
}

// Record converts one event payload into journal writes.
func (j *Journal) Record(v any) {
	for _, op := range Ops(j.runID, v) {
		if err := j.writer.Write(op); err != nil {
			j.log.Warn().Err(err).Str("table", op.Table).Msg("journal write failed")
		}
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}

// Ops maps an event payload to write operations for run. Unknown payloads yield none.
func Ops(run string, v any) []persistence.WriteOp {
	switch ev := v.(type) {
	case events.SignalEvent:
		return []persistence.WriteOp{{Table: "signals", Query: db.InsertSignalSQL, Args: db.SignalArgs(db.Signal{
			Strategy: ev.Strategy, Symbol: ev.Symbol, Direction: ev.Direction, Timeframe: ev.Timeframe,
			Entry: ev.Entry, StopLoss: ev.StopLoss, TakeProfit: ev.TakeProfit, Confidence: ev.Confidence,
			Approved: ev.Approved, Reason: ev.Reason, CreatedAt: millis(ev.At),
		})}}
	case events.RiskAlert:
		return []persistence.WriteOp{{Table: "risk_events", Query: db.InsertRiskEventSQL, Args: db.RiskEventArgs(db.RiskEvent{
			Symbol: ev.Symbol, Strategy: ev.Strategy, Gate: ev.Gate, Reason: ev.Reason, CreatedAt: millis(ev.At),
		})}}
	case events.OrderEvent:
		return []persistence.WriteOp{{Table: "orders", Query: db.UpsertOrderSQL, Args: db.OrderArgs(db.Order{
			ClientID: ev.ClientID, RunID: run, ExchangeOrderID: ev.ExchangeOrderID, PositionID: ev.PositionID,
			Symbol: ev.Symbol, Side: ev.Side, ReduceOnly: ev.ReduceOnly, Qty: ev.Qty, Price: ev.Price,
			Status: ev.Status, Error: ev.Error, UpdatedAt: millis(ev.At),
		})}}
	case events.PositionEvent:
		ops := []persistence.WriteOp{{Table: "positions", Query: db.UpsertPositionSQL, Args: db.PositionArgs(db.Position{
			RunID: run, ID: ev.ID, Strategy: ev.Strategy, Symbol: ev.Symbol, Side: ev.Side, Status: ev.Status,
			EntryPrice: ev.EntryPrice, SignalEntry: ev.SignalEntry, Quantity: ev.Quantity, Remaining: ev.Remaining,
			StopLoss: ev.StopLoss, TakeProfit: ev.TakeProfit, RealizedPnL: ev.RealizedPnL,
			ExchangeOrderID: ev.OrderID, UpdatedAt: millis(ev.At),
		})}}
		if ev.ExitQty > 0 {
			ops = append(ops, persistence.WriteOp{Table: "partial_exits", Query: db.InsertPartialExitSQL,
				Args: db.PartialExitArgs(db.PartialExit{
					RunID: run, PositionID: ev.ID, Qty: ev.ExitQty, Price: ev.ExitPrice, PnL: ev.ExitPnL, CreatedAt: millis(ev.At),
				})})
		}
		return ops
	}
	return nil
}
