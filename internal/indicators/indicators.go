// Package indicators derives technical columns from candle series.
// Every function is pure: inputs are never mutated and equal inputs give equal outputs.
package indicators

import (
	"fmt"
	"math"
	"sort"

	"bingx-trading-bot/internal/market"
)

// Config selects which columns Calculate derives.
type Config struct {
	SMA      []int
	EMA      []int
	RSI      int
	ATR      int
	BBPeriod int
	BBStdDev float64
}

// DefaultConfig mirrors the periods the shipped strategies read.
func DefaultConfig() Config {
	return Config{
		SMA:      []int{20, 50},
		EMA:      []int{9, 21},
		RSI:      14,
		ATR:      14,
		BBPeriod: 20,
		BBStdDev: 2,
	}
}

// Frame is a candle series with derived columns of equal length.
type Frame struct {
	Candles []market.Candle
	Columns map[string][]float64
}

// SMAKey, EMAKey, RSIKey and ATRKey name the derived columns.
func SMAKey(n int) string { return fmt.Sprintf("sma_%d", n) }
func EMAKey(n int) string { return fmt.Sprintf("ema_%d", n) }
func RSIKey(n int) string { return fmt.Sprintf("rsi_%d", n) }
func ATRKey(n int) string { return fmt.Sprintf("atr_%d", n) }

const (
	BBUpper  = "bb_upper"
	BBMiddle = "bb_middle"
	BBLower  = "bb_lower"
)

// Calculate returns a copy of candles plus the configured columns.
// Entries without enough history are NaN.
func Calculate(candles []market.Candle, cfg Config) Frame {
	cs := make([]market.Candle, len(candles))
	copy(cs, candles)
	closes := make([]float64, len(cs))
	for i, c := range cs {
		closes[i] = c.Close
	}

	cols := make(map[string][]float64)
	for _, n := range cfg.SMA {
		cols[SMAKey(n)] = SMASeries(closes, n)
	}
	for _, n := range cfg.EMA {
		cols[EMAKey(n)] = EMASeries(closes, n)
	}
	if cfg.RSI > 0 {
		cols[RSIKey(cfg.RSI)] = RSISeries(closes, cfg.RSI)
	}
	if cfg.ATR > 0 {
		cols[ATRKey(cfg.ATR)] = ATRSeries(cs, cfg.ATR)
	}
	if cfg.BBPeriod > 0 {
		mult := cfg.BBStdDev
		if mult <= 0 {
			mult = 2
		}
		b := Bollinger(closes, cfg.BBPeriod, mult)
		cols[BBUpper], cols[BBMiddle], cols[BBLower] = b.Upper, b.Middle, b.Lower
	}
	return Frame{Candles: cs, Columns: cols}
}

// Len is the number of rows.
func (f Frame) Len() int { return len(f.Candles) }

// Value returns column[i]; ok is false when missing or NaN.
func (f Frame) Value(col string, i int) (float64, bool) {
	c, found := f.Columns[col]
	if !found || i < 0 || i >= len(c) || math.IsNaN(c[i]) {
		return 0, false
	}
	return c[i], true
}

// Last returns the newest value of col.
func (f Frame) Last(col string) (float64, bool) {
	return f.Value(col, f.Len()-1)
}

// LastCandle returns the newest candle.
func (f Frame) LastCandle() (market.Candle, bool) {
	if len(f.Candles) == 0 {
		return market.Candle{}, false
	}
	return f.Candles[len(f.Candles)-1], true
}

// Missing lists columns whose newest value is not yet defined, sorted.
func (f Frame) Missing() []string {
	var out []string
	for name := range f.Columns {
		if _, ok := f.Last(name); !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
