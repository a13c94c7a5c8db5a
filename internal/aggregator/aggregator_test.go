package aggregator

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingx-trading-bot/internal/market"
)

const minute = int64(60_000)

func tf(t *testing.T, label string) market.Timeframe {
	t.Helper()
	out, err := market.ParseTimeframe(label)
	require.NoError(t, err)
	return out
}

func newAgg(t *testing.T, buffer int, labels ...string) *Aggregator {
	t.Helper()
	tfs := make([]market.Timeframe, 0, len(labels))
	for _, l := range labels {
		tfs = append(tfs, tf(t, l))
	}
	a, err := New(Config{Symbol: "BTC-USDT", Base: tf(t, "1m"), Timeframes: tfs, BufferSize: buffer}, zerolog.Nop())
	require.NoError(t, err)
	return a
}

func bar(ts int64, o, h, l, c, v float64) market.Candle {
	return market.Candle{Time: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func TestRejectsNonMultipleTimeframe(t *testing.T) {
	_, err := New(Config{Symbol: "X", Base: tf(t, "5m"), Timeframes: []market.Timeframe{tf(t, "3m")}}, zerolog.Nop())
	assert.Error(t, err)
}

func TestMergeAndSeal(t *testing.T) {
	a := newAgg(t, 10, "5m")
	base := int64(1_700_000_100_000) // 5m aligned

	for i, c := range []market.Candle{
		bar(base, 10, 12, 9, 11, 1),
		bar(base+minute, 11, 15, 10, 14, 2),
		bar(base+2*minute, 14, 14.5, 8, 9, 3),
	} {
		sealed, err := a.Add(c)
		require.NoError(t, err, "candle %d", i)
		assert.Empty(t, sealed)
	}
	assert.Empty(t, a.Sealed("5m"), "in-progress bucket must not be exposed as sealed")
	cur, ok := a.Current("5m")
	require.True(t, ok)
	assert.Equal(t, bar(base, 10, 15, 8, 9, 6), cur)

	sealed, err := a.Add(bar(base+5*minute, 9, 10, 9, 10, 1))
	require.NoError(t, err)
	require.Len(t, sealed, 1)
	assert.Equal(t, "5m", sealed[0].Timeframe)
	assert.Equal(t, bar(base, 10, 15, 8, 9, 6), sealed[0].Candle)
	assert.Equal(t, []market.Candle{bar(base, 10, 15, 8, 9, 6)}, a.Sealed("5m"))
}

func TestGapBucketsAreFilledFlat(t *testing.T) {
	a := newAgg(t, 10, "1m")
	base := int64(1_700_000_100_000)
	_, err := a.Add(bar(base, 10, 11, 9, 10.5, 1))
	require.NoError(t, err)

	sealed, err := a.Add(bar(base+4*minute, 12, 13, 11, 12, 1))
	require.NoError(t, err)
	require.Len(t, sealed, 4)
	assert.False(t, sealed[0].Filled)
	for i, s := range sealed[1:] {
		assert.True(t, s.Filled)
		assert.Equal(t, bar(base+int64(i+1)*minute, 10.5, 10.5, 10.5, 10.5, 0), s.Candle)
	}
}

func TestDropsStaleAndInvalidCandles(t *testing.T) {
	a := newAgg(t, 10, "1m", "5m")
	base := int64(1_700_000_100_000)
	_, err := a.Add(bar(base+minute, 10, 11, 9, 10, 1))
	require.NoError(t, err)

	var w *market.DataIntegrityWarning
	_, err = a.Add(bar(base+minute, 10, 11, 9, 10, 1))
	assert.True(t, errors.As(err, &w), "duplicate must be rejected")
	_, err = a.Add(bar(base, 10, 11, 9, 10, 1))
	assert.True(t, errors.As(err, &w), "older candle must be rejected")
	_, err = a.Add(bar(base+2*minute, 10, 9, 11, 10, 1))
	assert.True(t, errors.As(err, &w), "high below low must be rejected")

	cur, _ := a.Current("5m")
	assert.InDelta(t, 1, cur.Volume, 1e-9, "rejected candles must not be merged")
}

func TestBufferEvictsOldest(t *testing.T) {
	a := newAgg(t, 3, "1m")
	base := int64(1_700_000_100_000)
	for i := 0; i < 10; i++ {
		_, err := a.Add(bar(base+int64(i)*minute, 1, 2, 0.5, 1.5, 1))
		require.NoError(t, err)
	}
	got := a.Sealed("1m")
	require.Len(t, got, 3)
	assert.Equal(t, base+6*minute, got[0].Time)
	assert.Equal(t, base+8*minute, got[2].Time)
}

// randomWalk yields base candles with random gaps between them.
func randomWalk(seed int64, n int) []market.Candle {
	r := rand.New(rand.NewSource(seed))
	out := make([]market.Candle, 0, n)
	ts := int64(1_700_000_000_000)
	price := 100.0
	for i := 0; i < n; i++ {
		ts += minute * int64(1+r.Intn(3)*r.Intn(2))
		o := price
		price += r.Float64()*2 - 1
		h := max(o, price) + r.Float64()
		l := min(o, price) - r.Float64()
		out = append(out, bar(ts, o, h, l, price, r.Float64()*10))
	}
	return out
}

func TestSeriesHaveOneCandlePerElapsedBucket(t *testing.T) {
	labels := []string{"1m", "3m", "5m", "15m", "1h"}
	for seed := int64(1); seed <= 20; seed++ {
		candles := randomWalk(seed, 400)
		a := newAgg(t, 10_000, labels...)
		for _, c := range candles {
			_, err := a.Add(c)
			require.NoError(t, err)
		}
		for _, l := range labels {
			frame := tf(t, l)
			got := a.Sealed(l)
			first := frame.BucketStart(candles[0].Time)
			open := frame.BucketStart(candles[len(candles)-1].Time)
			require.Equal(t, int((open-first)/frame.Millis()), len(got), "seed %d tf %s", seed, l)
			for i, c := range got {
				assert.Equal(t, first+int64(i)*frame.Millis(), c.Time, "seed %d tf %s idx %d", seed, l, i)
				assert.True(t, c.Valid())
			}
		}
	}
}

type sliceHistory []market.Candle

func (h sliceHistory) Fetch(ctx context.Context, symbol string, tf market.Timeframe, n int) ([]market.Candle, error) {
	if n > len(h) {
		n = len(h)
	}
	return h[len(h)-n:], nil
}

func TestWarmUpMatchesLiveAccumulation(t *testing.T) {
	labels := []string{"1m", "5m", "15m"}
	candles := randomWalk(42, 300)

	live := newAgg(t, 50, labels...)
	for _, c := range candles {
		_, err := live.Add(c)
		require.NoError(t, err)
	}

	for _, split := range []int{1, 137, 299} {
		warm := newAgg(t, 50, labels...)
		_, err := warm.WarmUp(context.Background(), sliceHistory(candles[:split]), split)
		require.NoError(t, err)
		// live data overlapping the warm-up window is ignored
		overlap := split - 5
		if overlap < 0 {
			overlap = 0
		}
		for _, c := range candles[overlap:] {
			_, _ = warm.Add(c)
		}
		assert.Equal(t, live.Windows(), warm.Windows(), "split %d", split)
		for _, l := range labels {
			lc, lok := live.Current(l)
			wc, wok := warm.Current(l)
			assert.Equal(t, lok, wok)
			assert.Equal(t, lc, wc, "split %d tf %s", split, l)
		}
	}
}
