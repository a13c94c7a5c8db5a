package aggregator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/market"
)

// Config describes one symbol's aggregation.
type Config struct {
	Symbol     string
	Base       market.Timeframe
	Timeframes []market.Timeframe
	BufferSize int
}

// Sealed is a candle that just became immutable.
type Sealed struct {
	Timeframe string
	Candle    market.Candle
	Filled    bool // synthesized for a bucket with no base data
}

// History is the warm-up source of closed base candles.
type History interface {
	Fetch(ctx context.Context, symbol string, tf market.Timeframe, n int) ([]market.Candle, error)
}

type track struct {
	tf     market.Timeframe
	series *Series
	cur    market.Candle
	open   bool
}

// Aggregator buckets base candles into every configured timeframe.
// Add must be called from a single goroutine; the read methods may be called from any.
type Aggregator struct {
	cfg      Config
	tracks   []*track
	byLabel  map[string]*track
	lastBase int64
	hasBase  bool
	mu       sync.RWMutex
	log      zerolog.Logger
}

// New validates that every timeframe is a whole multiple of the base.
func New(cfg Config, log zerolog.Logger) (*Aggregator, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 500
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []market.Timeframe{cfg.Base}
	}
	a := &Aggregator{
		cfg:     cfg,
		byLabel: make(map[string]*track, len(cfg.Timeframes)),
		log:     log.With().Str("component", "aggregator").Str("symbol", cfg.Symbol).Logger(),
	}
	for _, tf := range cfg.Timeframes {
		if !tf.Multiple(cfg.Base) {
			return nil, fmt.Errorf("timeframe %s is not a multiple of base %s", tf, cfg.Base)
		}
		if _, dup := a.byLabel[tf.Label]; dup {
			return nil, fmt.Errorf("duplicate timeframe %s", tf)
		}
		tr := &track{tf: tf, series: NewSeries(cfg.BufferSize)}
		a.tracks = append(a.tracks, tr)
		a.byLabel[tf.Label] = tr
	}
	return a, nil
}

// Symbol returns the aggregated symbol.
func (a *Aggregator) Symbol() string { return a.cfg.Symbol }

// Timeframes returns the configured output timeframes.
func (a *Aggregator) Timeframes() []market.Timeframe {
	out := make([]market.Timeframe, len(a.tracks))
	for i, tr := range a.tracks {
		out[i] = tr.tf
	}
	return out
}

// Add folds one base candle into every timeframe and returns what sealed, oldest first.
// Invalid or non-advancing candles are dropped with a *market.DataIntegrityWarning.
func (a *Aggregator) Add(c market.Candle) ([]Sealed, error) {
	if !c.Valid() {
		return nil, &market.DataIntegrityWarning{Source: "aggregator", Reason: fmt.Sprintf("invalid candle at %d", c.Time)}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hasBase && c.Time <= a.lastBase {
		return nil, &market.DataIntegrityWarning{
			Source: "aggregator",
			Reason: fmt.Sprintf("candle %d not newer than %d", c.Time, a.lastBase),
		}
	}
	a.lastBase, a.hasBase = c.Time, true

	var sealed []Sealed
	for _, tr := range a.tracks {
		start := tr.tf.BucketStart(c.Time)
		switch {
		case !tr.open:
			tr.cur, tr.open = seed(c, start), true
		case start == tr.cur.Time:
			merge(&tr.cur, c)
		default:
			sealed = append(sealed, tr.seal(start)...)
			tr.cur = seed(c, start)
		}
	}
	return sealed, nil
}

// seal closes the open bucket plus any empty buckets before next.
func (tr *track) seal(next int64) []Sealed {
	prev := tr.cur
	tr.series.Push(prev)
	out := []Sealed{{Timeframe: tr.tf.Label, Candle: prev}}

	w := tr.tf.Millis()
	gaps := (next-prev.Time)/w - 1
	if gaps <= 0 {
		return out
	}
	first := prev.Time + w
	if limit := int64(tr.series.Cap()); gaps > limit {
		first += (gaps - limit) * w
	}
	for t := first; t < next; t += w {
		flat := market.Candle{Time: t, Open: prev.Close, High: prev.Close, Low: prev.Close, Close: prev.Close}
		tr.series.Push(flat)
		out = append(out, Sealed{Timeframe: tr.tf.Label, Candle: flat, Filled: true})
	}
	return out
}

func seed(c market.Candle, start int64) market.Candle {
	c.Time = start
	return c
}

func merge(cur *market.Candle, c market.Candle) {
	if c.High > cur.High {
		cur.High = c.High
	}
	if c.Low < cur.Low {
		cur.Low = c.Low
	}
	cur.Close = c.Close
	cur.Volume += c.Volume
}

// WarmUp replays n historical base candles through Add. It returns how many candles sealed.
func (a *Aggregator) WarmUp(ctx context.Context, h History, n int) (int, error) {
	hist, err := h.Fetch(ctx, a.cfg.Symbol, a.cfg.Base, n)
	if err != nil {
		return 0, fmt.Errorf("warm up %s: %w", a.cfg.Symbol, err)
	}
	total := 0
	for _, c := range hist {
		sealed, err := a.Add(c)
		if err != nil {
			a.log.Warn().Err(err).Msg("warm-up candle skipped")
			continue
		}
		total += len(sealed)
	}
	a.log.Info().Int("history", len(hist)).Int("sealed", total).Msg("warm-up complete")
	return total, nil
}

// Sealed returns the sealed candles of one timeframe, ascending.
func (a *Aggregator) Sealed(tf string) []market.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tr, ok := a.byLabel[tf]
	if !ok {
		return nil
	}
	return tr.series.Candles()
}

// Windows returns every timeframe's sealed candles keyed by label.
func (a *Aggregator) Windows() map[string][]market.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string][]market.Candle, len(a.tracks))
	for _, tr := range a.tracks {
		out[tr.tf.Label] = tr.series.Candles()
	}
	return out
}

// Current returns a copy of the in-progress bucket. It is not sealed.
func (a *Aggregator) Current(tf string) (market.Candle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tr, ok := a.byLabel[tf]
	if !ok || !tr.open {
		return market.Candle{}, false
	}
	return tr.cur, true
}
