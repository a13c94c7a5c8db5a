package indicators

import (
	"math"

	"bingx-trading-bot/internal/market"
)

// TrueRange uses high-low for the first bar, which has no previous close.
func TrueRange(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATRSeries is the Wilder-smoothed true range. The first value lands on index period-1.
func ATRSeries(candles []market.Candle, period int) []float64 {
	return wilder(TrueRange(candles), period)
}
