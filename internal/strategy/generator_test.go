package strategy

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixed returns the same signal, or error, every cycle.
type fixed struct {
	sig   *Signal
	err   error
	calls int
}

func (f *fixed) Analyze(symbol string, w Windows) (*Signal, error) {
	f.calls++
	if f.sig == nil {
		return nil, f.err
	}
	s := *f.sig
	return &s, f.err
}

func shortSignal(conf float64) *Signal {
	return &Signal{Direction: Short, Entry: 100, StopLoss: 105, TakeProfit: 90, Confidence: conf}
}

func reg(id, symbol string, s Strategy) Registration {
	return Registration{ID: id, Symbol: symbol, Timeframe: "1m", Enabled: true, Strategy: s}
}

func TestGenerateHighestConfidenceWins(t *testing.T) {
	g := NewGenerator(zerolog.Nop(),
		reg("low", "BTC-USDT", &fixed{sig: shortSignal(0.4)}),
		reg("high", "BTC-USDT", &fixed{sig: shortSignal(0.8)}),
	)
	best, candidates := g.Generate("BTC-USDT", Windows{})
	require.NotNil(t, best)
	assert.Equal(t, "high", best.Strategy)
	assert.Equal(t, 0.8, best.Confidence)
	assert.Len(t, candidates, 2)
}

func TestGenerateTieGoesToFirst(t *testing.T) {
	g := NewGenerator(zerolog.Nop(),
		reg("first", "", &fixed{sig: shortSignal(0.6)}),
		reg("second", "", &fixed{sig: shortSignal(0.6)}),
	)
	best, _ := g.Generate("ETH-USDT", Windows{})
	require.NotNil(t, best)
	assert.Equal(t, "first", best.Strategy)
	assert.Equal(t, "ETH-USDT", best.Symbol, "agnostic strategies get the cycle symbol")
}

func TestGenerateFiltersRegistrations(t *testing.T) {
	other := &fixed{sig: shortSignal(0.9)}
	disabled := &fixed{sig: shortSignal(0.9)}
	stale := &fixed{sig: shortSignal(0.9)}
	failing := &fixed{err: errors.New("boom")}
	invalid := &fixed{sig: &Signal{Direction: Short, Entry: 100, StopLoss: 95, TakeProfit: 90, Confidence: 0.99}}
	ok := &fixed{sig: shortSignal(0.5)}

	off := reg("disabled", "BTC-USDT", disabled)
	off.Enabled = false
	slow := reg("stale", "BTC-USDT", stale)
	slow.Timeframe = "1h"

	g := NewGenerator(zerolog.Nop(),
		reg("other", "ETH-USDT", other), off, slow,
		reg("failing", "BTC-USDT", failing),
		reg("invalid", "BTC-USDT", invalid),
		reg("ok", "BTC-USDT", ok),
	)
	best, candidates := g.Generate("BTC-USDT", Windows{Fresh: map[string]bool{"1m": true}})
	require.NotNil(t, best)
	assert.Equal(t, "ok", best.Strategy)
	assert.Len(t, candidates, 1)
	assert.Zero(t, other.calls)
	assert.Zero(t, disabled.calls)
	assert.Zero(t, stale.calls)
	assert.Equal(t, 1, failing.calls)
}

func TestGenerateNothing(t *testing.T) {
	g := NewGenerator(zerolog.Nop(), reg("quiet", "", &fixed{}))
	best, candidates := g.Generate("BTC-USDT", Windows{})
	assert.Nil(t, best)
	assert.Empty(t, candidates)
}

func TestSetEnabled(t *testing.T) {
	s := &fixed{sig: shortSignal(0.5)}
	g := NewGenerator(zerolog.Nop(), reg("a", "", s))
	require.True(t, g.SetEnabled("a", false))
	assert.False(t, g.SetEnabled("missing", true))
	best, _ := g.Generate("BTC-USDT", Windows{})
	assert.Nil(t, best)
	r, ok := g.Lookup("a")
	require.True(t, ok)
	assert.False(t, r.Enabled)
}

func TestSignalValidate(t *testing.T) {
	valid := Signal{Symbol: "BTC-USDT", Direction: Long, Entry: 100, StopLoss: 95, TakeProfit: 110, Confidence: 0.5}
	require.NoError(t, valid.Validate())
	assert.InDelta(t, 5, valid.RiskPerUnit(), 1e-12)

	for name, mutate := range map[string]func(*Signal){
		"direction":  func(s *Signal) { s.Direction = "FLAT" },
		"symbol":     func(s *Signal) { s.Symbol = "" },
		"stop side":  func(s *Signal) { s.StopLoss = 101 },
		"target":     func(s *Signal) { s.TakeProfit = 0 },
		"confidence": func(s *Signal) { s.Confidence = 1.5 },
	} {
		s := valid
		mutate(&s)
		assert.ErrorIs(t, s.Validate(), ErrInvalidSignal, name)
	}
}
