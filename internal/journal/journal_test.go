package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingx-trading-bot/internal/events"
	"bingx-trading-bot/internal/persistence"
	"bingx-trading-bot/pkg/db"
)

func TestOpsMapping(t *testing.T) {
	assert.Nil(t, Ops("run-1", "unknown"))
	assert.Len(t, Ops("run-1", events.PositionEvent{ID: 1, Status: "OPEN"}), 1)

	ops := Ops("run-1", events.PositionEvent{ID: 1, Status: "CLOSED", ExitQty: 1, ExitPrice: 110, ExitPnL: 8})
	require.Len(t, ops, 2)
	assert.Equal(t, "run-1", ops[0].Args[0], "positions are keyed by run")
	assert.Equal(t, "partial_exits", ops[1].Table)
	assert.Equal(t, "run-1", ops[1].Args[0])
}

func TestJournalPersistsBusEvents(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	bw := persistence.NewBatchWriter(database.DB, 100, 10*time.Millisecond, zerolog.Nop())
	defer bw.Close()
	bus := events.NewBus()
	j := New(bus, bw, "run-1", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Run(ctx)

	now := time.UnixMilli(1_700_000_000_000)
	// wait for the subscription before publishing
	require.Eventually(t, func() bool {
		bus.Publish(events.EventRiskAlert, events.RiskAlert{Gate: "warmup", Reason: "x", At: now})
		counts, _ := database.Queries().CountRiskEvents(context.Background())
		return counts["warmup"] > 0
	}, 2*time.Second, 20*time.Millisecond)

	bus.Publish(events.EventStrategySignal, events.SignalEvent{Strategy: "rsi_swing", Symbol: "BTC-USDT",
		Direction: "SHORT", Entry: 118, StopLoss: 122.2, TakeProfit: 109.6, Confidence: 0.7, Approved: true, At: now})
	bus.Publish(events.EventPositionChange, events.PositionEvent{ID: 3, Strategy: "rsi_swing", Symbol: "BTC-USDT",
		Side: "SHORT", Status: "OPEN", EntryPrice: 118, SignalEntry: 118, Quantity: 1, Remaining: 1,
		StopLoss: 122.2, TakeProfit: 109.6, OrderID: "77", At: now})
	bus.Publish(events.EventPositionChange, events.PositionEvent{ID: 3, Strategy: "rsi_swing", Symbol: "BTC-USDT",
		Side: "SHORT", Status: "CLOSED", EntryPrice: 118, Quantity: 1, StopLoss: 122.2, TakeProfit: 109.6,
		RealizedPnL: 8.4, OrderID: "77", ExitQty: 1, ExitPrice: 109.6, ExitPnL: 8.4, At: now})

	q := database.Queries()
	require.Eventually(t, func() bool {
		pnl, n, err := q.RealizedPnLSince(context.Background(), 0)
		return err == nil && n == 1 && pnl > 8
	}, 2*time.Second, 20*time.Millisecond)

	positions, err := q.ListPositions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "CLOSED", positions[0].Status)
	assert.Equal(t, "run-1", positions[0].RunID)
	assert.Equal(t, "77", positions[0].ExchangeOrderID)

	signals, err := q.ListSignals(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.True(t, signals[0].Approved)
}

func TestRestartKeepsEarlierRunRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	for i, run := range []string{"run-a", "run-b"} {
		database, err := db.Open(path)
		require.NoError(t, err)
		j := New(nil, directWriter{database.DB}, run, zerolog.Nop())
		// both runs start numbering at 1
		j.Record(events.PositionEvent{ID: 1, Strategy: "rsi_swing", Symbol: "BTC-USDT", Side: "LONG",
			Status: "CLOSED", EntryPrice: float64(100 * (i + 1)), Quantity: 1, StopLoss: 90, TakeProfit: 300,
			RealizedPnL: 5, ExitQty: 1, ExitPrice: 105, ExitPnL: 5, At: time.UnixMilli(int64(1000 + i))})
		require.NoError(t, database.Close())
	}

	database, err := db.Open(path)
	require.NoError(t, err)
	defer database.Close()
	positions, err := database.Queries().ListPositions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "run-b", positions[0].RunID)
	assert.InDelta(t, 200, positions[0].EntryPrice, 1e-9)
	assert.Equal(t, "run-a", positions[1].RunID)
	assert.InDelta(t, 100, positions[1].EntryPrice, 1e-9)
}

type directWriter struct{ db *sql.DB }

func (w directWriter) Write(op persistence.WriteOp) error {
	_, err := w.db.Exec(op.Query, op.Args...)
	return err
}
