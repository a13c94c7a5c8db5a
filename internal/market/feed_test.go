package market

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingx-trading-bot/pkg/exchanges/bingx"
)

type readResult struct {
	trades []bingx.Trade
	err    error
}

// scriptedConn replays reads and then reports the connection as lost.
type scriptedConn struct {
	mu         sync.Mutex
	reads      []readResult
	subscribed []string
	closed     chan struct{}
	closeOnce  sync.Once
	block      bool
}

func newScriptedConn(reads ...readResult) *scriptedConn {
	return &scriptedConn{reads: reads, closed: make(chan struct{})}
}

func (c *scriptedConn) Subscribe(symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, symbol)
	return nil
}

func (c *scriptedConn) ReadTrades() ([]bingx.Trade, error) {
	c.mu.Lock()
	if len(c.reads) > 0 {
		r := c.reads[0]
		c.reads = c.reads[1:]
		c.mu.Unlock()
		return r.trades, r.err
	}
	block := c.block
	c.mu.Unlock()
	if block {
		<-c.closed
	}
	return nil, io.EOF
}

func (c *scriptedConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func trade(ts int64, price float64) bingx.Trade {
	return bingx.Trade{Symbol: "BTC-USDT", Price: price, Qty: 1, Time: ts}
}

func TestFeedDispatchesTicksAndSkipsBadMessages(t *testing.T) {
	conn := newScriptedConn(
		readResult{},
		readResult{trades: []bingx.Trade{trade(1, 100)}},
		readResult{err: &bingx.ParseError{Raw: []byte("{"), Err: errors.New("bad json")}},
		readResult{trades: []bingx.Trade{trade(2, 101), {Symbol: "ETH-USDT", Price: 5, Qty: 1, Time: 2}}},
	)
	conn.block = true

	f := NewFeed(FeedConfig{Symbol: "BTC-USDT", MaxAttempts: 1, BaseDelay: time.Millisecond},
		func(ctx context.Context) (Conn, error) { return conn, nil }, zerolog.Nop())

	var (
		mu     sync.Mutex
		ticks  []Tick
		states []FeedState
	)
	f.OnState = func(s FeedState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}
	f.OnTick = func(tk Tick) {
		mu.Lock()
		ticks = append(ticks, tk)
		n := len(ticks)
		mu.Unlock()
		if n == 2 {
			go f.Stop()
		}
	}

	require.NoError(t, f.Run(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ticks, 2)
	assert.Equal(t, Tick{Time: 1, Price: 100, Volume: 1, Symbol: "BTC-USDT"}, ticks[0])
	assert.Equal(t, int64(2), ticks[1].Time)
	assert.Equal(t, []string{"BTC-USDT"}, conn.subscribed)
	assert.Equal(t, []FeedState{StateConnecting, StateSubscribed, StateListening, StateDisconnected}, states)
	assert.Equal(t, StateDisconnected, f.State())
}

func TestFeedLinearBackoffThenGivesUp(t *testing.T) {
	dials := 0
	f := NewFeed(FeedConfig{Symbol: "BTC-USDT", MaxAttempts: 3, BaseDelay: 10 * time.Millisecond},
		func(ctx context.Context) (Conn, error) {
			dials++
			return nil, errors.New("connection refused")
		}, zerolog.Nop())

	var delays []time.Duration
	f.after = func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	var callbackErr error
	calls := 0
	f.OnError = func(err error) {
		calls++
		callbackErr = err
	}

	err := f.Run(context.Background())
	require.ErrorIs(t, err, ErrReconnectsExhausted)
	assert.Equal(t, 4, dials, "initial connect plus three reconnects")
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, delays)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, callbackErr, ErrReconnectsExhausted)
	assert.Equal(t, StateDisconnected, f.State())
}

func TestFeedAttemptsResetAfterDelivery(t *testing.T) {
	dials := 0
	f := NewFeed(FeedConfig{Symbol: "BTC-USDT", MaxAttempts: 1, BaseDelay: time.Millisecond},
		func(ctx context.Context) (Conn, error) {
			dials++
			if dials <= 3 {
				return newScriptedConn(readResult{trades: []bingx.Trade{trade(int64(dials), 100)}}), nil
			}
			return nil, errors.New("down")
		}, zerolog.Nop())
	f.after = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	ticks := 0
	f.OnTick = func(Tick) { ticks++ }

	err := f.Run(context.Background())
	require.ErrorIs(t, err, ErrReconnectsExhausted)
	assert.Equal(t, 3, ticks)
	assert.Equal(t, 5, dials, "each delivering session resets the budget")
}

func TestFeedStopPreventsRestart(t *testing.T) {
	f := NewFeed(FeedConfig{Symbol: "BTC-USDT", MaxAttempts: 5, BaseDelay: time.Hour},
		func(ctx context.Context) (Conn, error) { return nil, errors.New("down") }, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	require.Eventually(t, func() bool { return f.State() == StateError }, time.Second, time.Millisecond)
	f.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stop did not interrupt backoff")
	}
	assert.ErrorIs(t, f.Run(context.Background()), ErrFeedStopped)
}

func TestFeedContextCancelClosesConnection(t *testing.T) {
	conn := newScriptedConn()
	conn.block = true
	f := NewFeed(FeedConfig{Symbol: "BTC-USDT", MaxAttempts: 5, BaseDelay: time.Millisecond},
		func(ctx context.Context) (Conn, error) { return conn, nil }, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	require.Eventually(t, func() bool { return f.State() == StateSubscribed }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cancel did not unblock the read")
	}
}
