package strategy

import (
	"fmt"
	"math"
	"time"

	"bingx-trading-bot/internal/indicators"
)

// MACrossParams configures MACross.
type MACrossParams struct {
	Timeframe  string
	Fast       int
	Slow       int
	ATRPeriod  int
	ATRStop    float64 // stop distance in ATRs
	RewardRisk float64
}

// MACross trades EMA crossovers with an ATR stop.
// A golden cross goes long, a death cross goes short.
type MACross struct {
	p MACrossParams
}

func NewMACross(p MACrossParams) (*MACross, error) {
	if p.Timeframe == "" {
		p.Timeframe = "15m"
	}
	if p.Fast <= 0 {
		p.Fast = 9
	}
	if p.Slow <= 0 {
		p.Slow = 21
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = 14
	}
	if p.ATRStop <= 0 {
		p.ATRStop = 1.5
	}
	if p.RewardRisk <= 0 {
		p.RewardRisk = 2
	}
	if p.Fast >= p.Slow {
		return nil, fmt.Errorf("ma cross: fast period %d must be below slow %d", p.Fast, p.Slow)
	}
	return &MACross{p: p}, nil
}

func (s *MACross) Analyze(symbol string, w Windows) (*Signal, error) {
	f, ok := w.Frame(s.p.Timeframe)
	if !ok {
		return nil, fmt.Errorf("ma cross: no %s window", s.p.Timeframe)
	}
	if f.Len() < s.p.Slow+1 {
		return nil, nil
	}
	closes := make([]float64, f.Len())
	for i, c := range f.Candles {
		closes[i] = c.Close
	}
	fast := column(f, indicators.EMAKey(s.p.Fast), func() []float64 { return indicators.EMASeries(closes, s.p.Fast) })
	slow := column(f, indicators.EMAKey(s.p.Slow), func() []float64 { return indicators.EMASeries(closes, s.p.Slow) })
	atr := column(f, indicators.ATRKey(s.p.ATRPeriod), func() []float64 { return indicators.ATRSeries(f.Candles, s.p.ATRPeriod) })

	last := f.Len() - 1
	prevDiff := fast[last-1] - slow[last-1]
	diff := fast[last] - slow[last]
	a := atr[last]
	if math.IsNaN(prevDiff) || math.IsNaN(diff) || math.IsNaN(a) || a <= 0 {
		return nil, nil
	}

	var dir Direction
	switch {
	case prevDiff <= 0 && diff > 0:
		dir = Long
	case prevDiff >= 0 && diff < 0:
		dir = Short
	default:
		return nil, nil
	}

	c := f.Candles[last]
	risk := s.p.ATRStop * a
	sig := &Signal{
		Symbol:     symbol,
		Direction:  dir,
		Entry:      c.Close,
		StopLoss:   c.Close - risk,
		TakeProfit: c.Close + s.p.RewardRisk*risk,
		Confidence: math.Min(1, 0.3+0.7*math.Min(1, math.Abs(diff)/a)),
		Timeframe:  s.p.Timeframe,
		CreatedAt:  time.UnixMilli(c.Time),
		Metadata:   map[string]any{"ema_fast": fast[last], "ema_slow": slow[last], "atr": a},
	}
	if dir == Short {
		sig.StopLoss = c.Close + risk
		sig.TakeProfit = c.Close - s.p.RewardRisk*risk
	}
	return sig, nil
}

func column(f indicators.Frame, key string, compute func() []float64) []float64 {
	if c, ok := f.Columns[key]; ok {
		return c
	}
	return compute()
}
