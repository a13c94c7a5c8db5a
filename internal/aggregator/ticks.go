package aggregator

import (
	"fmt"

	"bingx-trading-bot/internal/market"
)

// TickBuilder folds trades into base candles.
type TickBuilder struct {
	tf   market.Timeframe
	cur  market.Candle
	open bool
}

func NewTickBuilder(base market.Timeframe) *TickBuilder {
	return &TickBuilder{tf: base}
}

// Add returns the previous candle once a tick opens a newer bucket.
// Ticks for an already closed bucket are rejected.
func (b *TickBuilder) Add(t market.Tick) (market.Candle, bool, error) {
	if t.Price <= 0 || t.Volume < 0 {
		return market.Candle{}, false, &market.DataIntegrityWarning{Source: "ticks", Reason: fmt.Sprintf("bad tick %+v", t)}
	}
	start := b.tf.BucketStart(t.Time)
	if !b.open {
		b.cur = market.Candle{Time: start, Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price, Volume: t.Volume}
		b.open = true
		return market.Candle{}, false, nil
	}
	switch {
	case start == b.cur.Time:
		merge(&b.cur, market.Candle{High: t.Price, Low: t.Price, Close: t.Price, Volume: t.Volume})
		return market.Candle{}, false, nil
	case start > b.cur.Time:
		done := b.cur
		b.cur = market.Candle{Time: start, Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price, Volume: t.Volume}
		return done, true, nil
	default:
		return market.Candle{}, false, &market.DataIntegrityWarning{
			Source: "ticks",
			Reason: fmt.Sprintf("late tick %d for closed bucket before %d", t.Time, b.cur.Time),
		}
	}
}

// Current returns the forming candle.
func (b *TickBuilder) Current() (market.Candle, bool) { return b.cur, b.open }
