package market

import (
	"fmt"
	"math"

	"bingx-trading-bot/pkg/exchanges/common"
)

// Candle is an OHLCV bar. Time is the bucket start in Unix milliseconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Valid reports whether the OHLC ordering holds.
func (c Candle) Valid() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return c.Volume >= 0 &&
		c.Low <= math.Min(c.Open, c.Close) &&
		math.Max(c.Open, c.Close) <= c.High
}

// FromKline converts a venue kline.
func FromKline(k common.Kline) Candle {
	return Candle{Time: k.OpenTime, Open: k.Open, High: k.High, Low: k.Low, Close: k.Close, Volume: k.Volume}
}

// Tick is one trade observed on the live stream.
type Tick struct {
	Time   int64 // ms
	Price  float64
	Volume float64
	Symbol string
}

// DataIntegrityWarning marks input that was skipped because it could not be trusted.
// It never stops the pipeline.
type DataIntegrityWarning struct {
	Source string
	Reason string
}

func (w *DataIntegrityWarning) Error() string {
	return fmt.Sprintf("data integrity (%s): %s", w.Source, w.Reason)
}
