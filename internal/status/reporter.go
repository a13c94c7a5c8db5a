// Package status keeps the bot's status snapshot and pushes it to an external sink.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Snapshot is the externally visible bot status.
type Snapshot struct {
	Running          bool      `json:"running"`
	StartedAt        time.Time `json:"started_at"`
	Balance          float64   `json:"balance"`
	OpenPositions    int       `json:"open_positions"`
	TodayTrades      int       `json:"today_trades"`
	TodayPnL         float64   `json:"today_pnl"`
	CandlesProcessed int64     `json:"candles_processed"`
	LastSignal       string    `json:"last_signal,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	Message          string    `json:"message,omitempty"`
}

// Record is what a sink stores under the bot id.
type Record struct {
	BotID     string    `json:"bot_id"`
	Status    Snapshot  `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sink upserts a record keyed by bot id.
type Sink interface {
	Put(ctx context.Context, rec Record) error
}

// Reporter owns the snapshot. It is constructed once and injected where needed.
type Reporter struct {
	botID   string
	sink    Sink
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mu   sync.RWMutex
	snap Snapshot
	day  string
}

// NewReporter builds a reporter. A nil sink only logs.
func NewReporter(botID string, sink Sink, log zerolog.Logger) *Reporter {
	l := log.With().Str("component", "status").Str("bot_id", botID).Logger()
	if sink == nil {
		sink = NewLogSink(l)
	}
	return &Reporter{
		botID:   botID,
		sink:    sink,
		timeout: 5 * time.Second,
		now:     time.Now,
		log:     l,
	}
}

// BotID returns the key the status is stored under.
func (r *Reporter) BotID() string { return r.botID }

// Update applies fn to the snapshot under the lock. fn must not block.
func (r *Reporter) Update(fn func(*Snapshot)) {
	r.mu.Lock()
	r.rollDay()
	fn(&r.snap)
	r.mu.Unlock()
}

// Snapshot returns a copy of the current status.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollDay()
	return r.snap
}

// rollDay clears the daily counters on the first access of a new UTC day.
func (r *Reporter) rollDay() {
	day := r.now().UTC().Format("2006-01-02")
	if r.day == "" {
		r.day = day
		return
	}
	if day != r.day {
		r.day = day
		r.snap.TodayTrades = 0
		r.snap.TodayPnL = 0
	}
}

// MarkStarted flags the bot as running.
func (r *Reporter) MarkStarted() {
	now := r.now()
	r.Update(func(s *Snapshot) {
		s.Running = true
		s.StartedAt = now
	})
}

// RecordError stores err as last_error.
func (r *Reporter) RecordError(err error) {
	if err == nil {
		return
	}
	r.Update(func(s *Snapshot) { s.LastError = err.Error() })
}

// Report pushes the snapshot. Sink failures are logged and swallowed.
func (r *Reporter) Report(ctx context.Context, message string) {
	if message != "" {
		r.Update(func(s *Snapshot) { s.Message = message })
	}
	rec := Record{BotID: r.botID, Status: r.Snapshot(), UpdatedAt: r.now().UTC()}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.sink.Put(ctx, rec); err != nil {
		r.log.Warn().Err(err).Msg("status report failed")
	}
}

// Run reports every interval until ctx is done, then sends a final stopped report.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Update(func(s *Snapshot) { s.Running = false })
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
			r.Report(final, "stopped")
			cancel()
			return
		case <-ticker.C:
			r.Report(ctx, "")
		}
	}
}
