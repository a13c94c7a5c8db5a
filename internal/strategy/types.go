package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"bingx-trading-bot/internal/indicators"
)

// Direction is the side a signal wants to take.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

func (d Direction) Valid() bool { return d == Long || d == Short }

// Signal is a trade proposal. Prices are the values seen when it was generated.
type Signal struct {
	Strategy   string
	Symbol     string
	Direction  Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Confidence float64
	Timeframe  string
	CreatedAt  time.Time
	Metadata   map[string]any
}

var ErrInvalidSignal = errors.New("invalid signal")

// Validate checks the required fields.
func (s Signal) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidSignal, fmt.Sprintf(format, args...))
	}
	switch {
	case s.Symbol == "":
		return fail("missing symbol")
	case !s.Direction.Valid():
		return fail("direction %q", s.Direction)
	case !(s.Entry > 0) || !(s.StopLoss > 0) || !(s.TakeProfit > 0):
		return fail("non-positive price entry=%v stop=%v target=%v", s.Entry, s.StopLoss, s.TakeProfit)
	case math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1:
		return fail("confidence %v outside [0,1]", s.Confidence)
	case s.Direction == Long && !(s.StopLoss < s.Entry && s.Entry < s.TakeProfit):
		return fail("long needs stop < entry < target")
	case s.Direction == Short && !(s.TakeProfit < s.Entry && s.Entry < s.StopLoss):
		return fail("short needs target < entry < stop")
	}
	return nil
}

// RiskPerUnit is the loss per unit of quantity if the stop is hit.
func (s Signal) RiskPerUnit() float64 { return math.Abs(s.Entry - s.StopLoss) }

// Windows is what a strategy sees for one symbol: indicator frames per timeframe.
// Fresh marks timeframes that sealed a candle in this cycle; nil means all are fresh.
type Windows struct {
	Frames map[string]indicators.Frame
	Fresh  map[string]bool
}

// Frame returns one timeframe's frame.
func (w Windows) Frame(tf string) (indicators.Frame, bool) {
	f, ok := w.Frames[tf]
	return f, ok
}

// IsFresh reports whether tf sealed a candle this cycle.
func (w Windows) IsFresh(tf string) bool {
	if w.Fresh == nil {
		return true
	}
	return w.Fresh[tf]
}

// Strategy turns candle windows into at most one signal.
// Implementations must not mutate shared state.
type Strategy interface {
	Analyze(symbol string, w Windows) (*Signal, error)
}

// Registration binds a strategy to its symbol and timeframe.
type Registration struct {
	ID           string
	Type         string
	Symbol       string // empty matches every symbol
	Timeframe    string
	Enabled      bool
	MaxPositions int
	RiskPct      float64
	Strategy     Strategy
}

// Matches reports whether the registration applies to symbol.
func (r Registration) Matches(symbol string) bool {
	return r.Symbol == "" || r.Symbol == symbol
}
