package market

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"bingx-trading-bot/pkg/exchanges/bingx"
	"bingx-trading-bot/pkg/exchanges/common"
)

// CandleSource is the REST path to historical klines.
type CandleSource interface {
	GetCandles(ctx context.Context, q bingx.CandleQuery) ([]common.Kline, error)
}

// Backfiller pages historical base candles. It holds no connection state.
type Backfiller struct {
	src      CandleSource
	pageSize int
	now      func() time.Time
	log      zerolog.Logger
}

// NewBackfiller builds a backfiller paging at most bingx.MaxCandleLimit per request.
func NewBackfiller(src CandleSource, log zerolog.Logger) *Backfiller {
	return &Backfiller{
		src:      src,
		pageSize: bingx.MaxCandleLimit,
		now:      time.Now,
		log:      log.With().Str("component", "backfill").Logger(),
	}
}

// Fetch returns up to n closed candles ending before now, ascending and de-duplicated.
// The bucket still forming at the venue is left out.
func (b *Backfiller) Fetch(ctx context.Context, symbol string, tf Timeframe, n int) ([]Candle, error) {
	if n <= 0 {
		return nil, nil
	}
	now := b.now()
	byTime := make(map[int64]Candle, n)
	end := now

	for len(byTime) < n {
		want := n - len(byTime)
		if want > b.pageSize {
			want = b.pageSize
		}
		page, err := b.src.GetCandles(ctx, bingx.CandleQuery{
			Symbol:   symbol,
			Interval: tf.Label,
			End:      end,
			Limit:    want,
		})
		if err != nil {
			return nil, fmt.Errorf("backfill %s %s: %w", symbol, tf.Label, err)
		}
		if len(page) == 0 {
			break
		}
		oldest := page[0].OpenTime
		added := 0
		for _, k := range page {
			if k.OpenTime < oldest {
				oldest = k.OpenTime
			}
			if k.OpenTime+tf.Millis() > now.UnixMilli() {
				continue
			}
			c := FromKline(k)
			if !c.Valid() {
				b.log.Warn().Err(&DataIntegrityWarning{Source: "backfill", Reason: "ohlc out of order"}).
					Int64("time", c.Time).Msg("skipping candle")
				continue
			}
			if _, dup := byTime[c.Time]; !dup {
				byTime[c.Time] = c
				added++
			}
		}
		if len(page) < want || added == 0 {
			break
		}
		next := time.UnixMilli(oldest - 1)
		if !next.Before(end) {
			break
		}
		end = next
	}

	out := make([]Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	if len(out) > n {
		out = out[len(out)-n:]
	}
	b.log.Debug().Str("symbol", symbol).Str("tf", tf.Label).Int("candles", len(out)).Msg("backfill done")
	return out, nil
}
