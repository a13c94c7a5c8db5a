package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"bingx-trading-bot/pkg/exchanges/bingx"
)

// FeedState is the connection lifecycle of a Feed.
type FeedState int32

const (
	StateDisconnected FeedState = iota
	StateConnecting
	StateSubscribed
	StateListening
	StateError
)

func (s FeedState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateListening:
		return "LISTENING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrReconnectsExhausted is returned by Run once MaxAttempts reconnects failed.
	ErrReconnectsExhausted = errors.New("feed reconnect attempts exhausted")
	// ErrFeedStopped is returned when Run is called on a stopped feed.
	ErrFeedStopped = errors.New("feed stopped")
)

// Conn is one live trade stream connection.
type Conn interface {
	Subscribe(symbol string) error
	ReadTrades() ([]bingx.Trade, error)
	Close() error
}

// DialFunc opens a new Conn.
type DialFunc func(ctx context.Context) (Conn, error)

// FeedConfig bounds reconnect behaviour.
type FeedConfig struct {
	Symbol      string
	MaxAttempts int
	BaseDelay   time.Duration
}

// Feed streams trades for one symbol and reconnects with linear backoff.
type Feed struct {
	cfg  FeedConfig
	dial DialFunc
	log  zerolog.Logger

	// OnTick receives every parsed trade, on the Run goroutine.
	OnTick func(Tick)
	// OnError is called once when reconnects are exhausted.
	OnError func(error)
	// OnState observes state transitions.
	OnState func(FeedState)

	after func(time.Duration) <-chan time.Time

	state    atomic.Int32
	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	conn     Conn
}

// NewFeed builds a feed. Nothing connects until Run.
func NewFeed(cfg FeedConfig, dial DialFunc, log zerolog.Logger) *Feed {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &Feed{
		cfg:    cfg,
		dial:   dial,
		log:    log.With().Str("component", "feed").Str("symbol", cfg.Symbol).Logger(),
		after:  time.After,
		stopCh: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (f *Feed) State() FeedState { return FeedState(f.state.Load()) }

func (f *Feed) setState(s FeedState) {
	if FeedState(f.state.Swap(int32(s))) == s {
		return
	}
	f.log.Debug().Str("state", s.String()).Msg("feed state")
	if f.OnState != nil {
		f.OnState(s)
	}
}

// Stop halts the feed permanently. A stopped feed never reconnects.
func (f *Feed) Stop() {
	f.stopped.Store(true)
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.mu.Lock()
	if f.conn != nil {
		_ = f.conn.Close()
	}
	f.mu.Unlock()
}

func (f *Feed) halted(ctx context.Context) bool {
	return f.stopped.Load() || ctx.Err() != nil
}

// Run connects and listens until ctx ends, Stop is called, or reconnects are exhausted.
func (f *Feed) Run(ctx context.Context) error {
	if f.stopped.Load() {
		return ErrFeedStopped
	}
	defer f.setState(StateDisconnected)

	attempt := 0
	for {
		if f.halted(ctx) {
			return nil
		}
		delivered, err := f.session(ctx)
		if f.halted(ctx) {
			return nil
		}
		if delivered {
			attempt = 0
		}
		f.setState(StateError)
		attempt++
		if attempt > f.cfg.MaxAttempts {
			exhausted := fmt.Errorf("%w (%d attempts): %v", ErrReconnectsExhausted, f.cfg.MaxAttempts, err)
			f.log.Error().Err(err).Int("attempts", f.cfg.MaxAttempts).Msg("feed giving up")
			if f.OnError != nil {
				f.OnError(exhausted)
			}
			return exhausted
		}

		delay := f.cfg.BaseDelay * time.Duration(attempt)
		f.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("feed reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-f.stopCh:
			return nil
		case <-f.after(delay):
		}
	}
}

// session runs one connection. delivered reports whether any trade came through.
func (f *Feed) session(ctx context.Context) (delivered bool, err error) {
	f.setState(StateConnecting)
	conn, err := f.dial(ctx)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	if f.stopped.Load() {
		f.mu.Unlock()
		_ = conn.Close()
		return false, ErrFeedStopped
	}
	f.conn = conn
	f.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		_ = conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.Subscribe(f.cfg.Symbol); err != nil {
		return false, err
	}
	f.setState(StateSubscribed)

	for {
		trades, err := conn.ReadTrades()
		if err != nil {
			var pe *bingx.ParseError
			if errors.As(err, &pe) {
				f.log.Warn().Err(&DataIntegrityWarning{Source: "stream", Reason: pe.Error()}).
					Int("bytes", len(pe.Raw)).Msg("dropping message")
				continue
			}
			return delivered, err
		}
		f.setState(StateListening)
		for _, t := range trades {
			if t.Symbol != f.cfg.Symbol {
				f.log.Warn().Str("got", t.Symbol).Msg("dropping trade for foreign symbol")
				continue
			}
			delivered = true
			if f.OnTick != nil {
				f.OnTick(Tick{Time: t.Time, Price: t.Price, Volume: t.Qty, Symbol: t.Symbol})
			}
		}
	}
}
