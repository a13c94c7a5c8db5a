package strategy

import (
	"fmt"
	"math"
	"time"

	"bingx-trading-bot/internal/indicators"
)

// RSISwingParams configures RSISwing.
type RSISwingParams struct {
	Timeframe     string
	RSIPeriod     int
	Overbought    float64
	Oversold      float64
	SwingLookback int     // candles forming the swing level
	Recency       int     // how many candles back the RSI extreme may be
	RewardRisk    float64 // target distance as a multiple of stop distance
}

func DefaultRSISwingParams() RSISwingParams {
	return RSISwingParams{
		Timeframe:     "1m",
		RSIPeriod:     14,
		Overbought:    70,
		Oversold:      30,
		SwingLookback: 5,
		Recency:       10,
		RewardRisk:    2,
	}
}

// RSISwing fades exhaustion: after RSI was overbought it shorts the first close below the
// prior swing low, and mirrors that for longs after oversold readings.
type RSISwing struct {
	p RSISwingParams
}

func NewRSISwing(p RSISwingParams) *RSISwing {
	d := DefaultRSISwingParams()
	if p.Timeframe == "" {
		p.Timeframe = d.Timeframe
	}
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = d.RSIPeriod
	}
	if p.Overbought <= 0 {
		p.Overbought = d.Overbought
	}
	if p.Oversold <= 0 {
		p.Oversold = d.Oversold
	}
	if p.SwingLookback <= 0 {
		p.SwingLookback = d.SwingLookback
	}
	if p.Recency <= 0 {
		p.Recency = d.Recency
	}
	if p.RewardRisk <= 0 {
		p.RewardRisk = d.RewardRisk
	}
	return &RSISwing{p: p}
}

func (s *RSISwing) Analyze(symbol string, w Windows) (*Signal, error) {
	f, ok := w.Frame(s.p.Timeframe)
	if !ok {
		return nil, fmt.Errorf("rsi swing: no %s window", s.p.Timeframe)
	}
	n := f.Len()
	if n < s.p.SwingLookback+2 || n <= s.p.RSIPeriod {
		return nil, nil
	}
	rsi, ok := f.Columns[indicators.RSIKey(s.p.RSIPeriod)]
	if !ok {
		closes := make([]float64, n)
		for i, c := range f.Candles {
			closes[i] = c.Close
		}
		rsi = indicators.RSISeries(closes, s.p.RSIPeriod)
	}

	last := n - 1
	if s.brokeLow(f, last) && !s.brokeLow(f, last-1) {
		if peak, ok := extreme(rsi, last, s.p.Recency, math.Max); ok && peak > s.p.Overbought {
			return s.signal(symbol, f, Short, peak, rsi[last]), nil
		}
	}
	if s.brokeHigh(f, last) && !s.brokeHigh(f, last-1) {
		if trough, ok := extreme(rsi, last, s.p.Recency, math.Min); ok && trough < s.p.Oversold {
			return s.signal(symbol, f, Long, trough, rsi[last]), nil
		}
	}
	return nil, nil
}

// brokeLow reports whether candle i closed below the lowest low of the lookback candles before it.
func (s *RSISwing) brokeLow(f indicators.Frame, i int) bool {
	if i < s.p.SwingLookback {
		return false
	}
	low := math.Inf(1)
	for _, c := range f.Candles[i-s.p.SwingLookback : i] {
		low = math.Min(low, c.Low)
	}
	return f.Candles[i].Close < low
}

func (s *RSISwing) brokeHigh(f indicators.Frame, i int) bool {
	if i < s.p.SwingLookback {
		return false
	}
	high := math.Inf(-1)
	for _, c := range f.Candles[i-s.p.SwingLookback : i] {
		high = math.Max(high, c.High)
	}
	return f.Candles[i].Close > high
}

// extreme folds the defined RSI values in the recency window ending before i.
func extreme(rsi []float64, i, recency int, pick func(a, b float64) float64) (float64, bool) {
	from := i - recency
	if from < 0 {
		from = 0
	}
	var (
		out   float64
		found bool
	)
	for _, v := range rsi[from:i] {
		if math.IsNaN(v) {
			continue
		}
		if !found {
			out, found = v, true
			continue
		}
		out = pick(out, v)
	}
	return out, found
}

func (s *RSISwing) signal(symbol string, f indicators.Frame, dir Direction, rsiExtreme, rsiNow float64) *Signal {
	last := f.Len() - 1
	c := f.Candles[last]
	from := last - s.p.Recency
	if from < 0 {
		from = 0
	}
	var stop float64
	var strength float64
	if dir == Short {
		stop = math.Inf(-1)
		for _, k := range f.Candles[from : last+1] {
			stop = math.Max(stop, k.High)
		}
		strength = (rsiExtreme - s.p.Overbought) / (100 - s.p.Overbought)
	} else {
		stop = math.Inf(1)
		for _, k := range f.Candles[from : last+1] {
			stop = math.Min(stop, k.Low)
		}
		strength = (s.p.Oversold - rsiExtreme) / s.p.Oversold
	}
	risk := math.Abs(c.Close - stop)
	target := c.Close - s.p.RewardRisk*risk
	if dir == Long {
		target = c.Close + s.p.RewardRisk*risk
	}
	return &Signal{
		Symbol:     symbol,
		Direction:  dir,
		Entry:      c.Close,
		StopLoss:   stop,
		TakeProfit: target,
		Confidence: math.Min(1, 0.5+0.5*math.Max(0, strength)),
		Timeframe:  s.p.Timeframe,
		CreatedAt:  time.UnixMilli(c.Time),
		Metadata: map[string]any{
			"rsi_extreme": rsiExtreme,
			"rsi":         rsiNow,
			"candle_time": c.Time,
		},
	}
}
