package market

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingx-trading-bot/pkg/exchanges/bingx"
	"bingx-trading-bot/pkg/exchanges/common"
)

// fakeSource serves a fixed kline history the way the venue pages it.
type fakeSource struct {
	klines  []common.Kline
	queries []bingx.CandleQuery
	err     error
}

func (s *fakeSource) GetCandles(ctx context.Context, q bingx.CandleQuery) ([]common.Kline, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	var page []common.Kline
	for i := len(s.klines) - 1; i >= 0 && len(page) < q.Limit; i-- {
		if !q.End.IsZero() && s.klines[i].OpenTime > q.End.UnixMilli() {
			continue
		}
		page = append(page, s.klines[i])
	}
	sort.Slice(page, func(i, j int) bool { return page[i].OpenTime < page[j].OpenTime })
	return page, nil
}

func minuteKlines(start int64, n int) []common.Kline {
	out := make([]common.Kline, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = common.Kline{OpenTime: start + int64(i)*60_000, Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 1}
	}
	return out
}

func TestBackfillPagesBackwards(t *testing.T) {
	const start = int64(1_700_000_040_000) // minute aligned
	src := &fakeSource{klines: minuteKlines(start, 30)}
	b := NewBackfiller(src, zerolog.Nop())
	b.pageSize = 7
	// the 30th candle is still forming
	b.now = func() time.Time { return time.UnixMilli(start + 29*60_000 + 10_000) }
	tf, _ := ParseTimeframe("1m")

	got, err := b.Fetch(context.Background(), "BTC-USDT", tf, 20)
	require.NoError(t, err)
	require.Len(t, got, 20)
	assert.Equal(t, start+9*60_000, got[0].Time)
	assert.Equal(t, start+28*60_000, got[19].Time, "forming candle excluded")
	for i := 1; i < len(got); i++ {
		assert.Equal(t, got[i-1].Time+60_000, got[i].Time)
	}
	assert.Greater(t, len(src.queries), 2)
	for _, q := range src.queries {
		assert.LessOrEqual(t, q.Limit, 7)
	}
}

func TestBackfillShortHistory(t *testing.T) {
	const start = int64(1_700_000_040_000)
	src := &fakeSource{klines: minuteKlines(start, 5)}
	b := NewBackfiller(src, zerolog.Nop())
	b.now = func() time.Time { return time.UnixMilli(start + 10*60_000) }
	tf, _ := ParseTimeframe("1m")

	got, err := b.Fetch(context.Background(), "BTC-USDT", tf, 100)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestBackfillError(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	b := NewBackfiller(src, zerolog.Nop())
	tf, _ := ParseTimeframe("1m")
	_, err := b.Fetch(context.Background(), "BTC-USDT", tf, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
