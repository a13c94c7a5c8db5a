package risk

import (
	"math"

	"bingx-trading-bot/internal/strategy"
)

// PositionSize risks riskPct percent of capital between entry and stop.
// It uses the prices carried by the signal, not a later fill.
func (m *Manager) PositionSize(sig strategy.Signal, capital, riskPct float64) float64 {
	cfg := m.GetConfig()
	if riskPct <= 0 {
		riskPct = cfg.DefaultRiskPct
	}
	perUnit := sig.RiskPerUnit()
	if perUnit <= 0 || capital <= 0 || riskPct <= 0 {
		return 0
	}
	qty := capital * riskPct / 100 / perUnit
	if cfg.MaxPositionNotional > 0 && qty*sig.Entry > cfg.MaxPositionNotional {
		qty = cfg.MaxPositionNotional / sig.Entry
	}
	return RoundDown(qty, 4)
}

// RoundDown truncates v to the given decimals.
func RoundDown(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Floor(v*p+1e-9) / p
}

// EquityCurve tracks the peak so callers can derive drawdown.
type EquityCurve struct {
	Peak   float64
	Equity float64
}

// NewEquityCurve starts at the initial equity.
func NewEquityCurve(initial float64) *EquityCurve {
	return &EquityCurve{Peak: initial, Equity: initial}
}

// Apply adds realized pnl and returns the drawdown from the peak in percent.
func (e *EquityCurve) Apply(pnl float64) float64 {
	e.Equity += pnl
	if e.Equity > e.Peak {
		e.Peak = e.Equity
	}
	return e.Drawdown()
}

// Drawdown is (peak - equity) / peak in percent.
func (e *EquityCurve) Drawdown() float64 {
	if e.Peak <= 0 {
		return 0
	}
	return math.Max(0, (e.Peak-e.Equity)/e.Peak*100)
}
