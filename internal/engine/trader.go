package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/balance"
	"bingx-trading-bot/internal/events"
	"bingx-trading-bot/internal/market"
	"bingx-trading-bot/internal/monitor"
	"bingx-trading-bot/internal/order"
	"bingx-trading-bot/internal/position"
	"bingx-trading-bot/internal/risk"
	"bingx-trading-bot/internal/status"
	"bingx-trading-bot/internal/strategy"
	"bingx-trading-bot/pkg/exchanges/common"
)

// ErrPositionBusy is returned when a close is already in flight for the position.
var ErrPositionBusy = errors.New("position close already in progress")

// Outcome is what happened to one forwarded signal.
type Outcome struct {
	Signal   strategy.Signal
	Decision risk.Decision
	Skipped  string // set when the signal was dropped before risk or after approval
	Position *position.Position
	Err      error
}

// Opened reports whether the signal produced an OPEN position.
func (o Outcome) Opened() bool {
	return o.Position != nil && o.Position.Status == position.StatusOpen
}

// TraderConfig wires the trading core. Metrics may be nil.
type TraderConfig struct {
	Risk      *risk.Manager
	Positions *position.Manager
	Executor  *order.Executor
	Balance   *balance.Manager
	Status    *status.Reporter
	Generator *strategy.Generator
	Bus       *events.Bus
	Metrics   *monitor.Metrics

	// TrailingStopPct trails the stop behind the close of each sealed base candle. Zero disables it.
	TrailingStopPct float64
}

// Trader owns the decision section shared by every symbol pipeline:
// risk validation, cap checks, sizing, order placement and exit bookkeeping.
type Trader struct {
	TraderConfig

	// decide serialises validate, admission and open across symbols.
	decide sync.Mutex

	mu      sync.Mutex
	equity  *risk.EquityCurve
	closing map[uint64]bool

	now func() time.Time
	log zerolog.Logger
}

// NewTrader builds a trader and subscribes it to position changes.
func NewTrader(cfg TraderConfig, log zerolog.Logger) *Trader {
	t := &Trader{
		TraderConfig: cfg,
		closing:      make(map[uint64]bool),
		now:          time.Now,
		log:          log.With().Str("component", "trader").Logger(),
	}
	t.equity = risk.NewEquityCurve(cfg.Balance.Capital())
	cfg.Positions.OnChange = t.onPositionChange
	return t
}

// ResetEquity restarts the drawdown curve from the current capital.
func (t *Trader) ResetEquity() {
	t.mu.Lock()
	t.equity = risk.NewEquityCurve(t.Balance.Capital())
	t.mu.Unlock()
}

// Equity returns a copy of the realized equity curve.
func (t *Trader) Equity() risk.EquityCurve {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.equity
}

// HandleSignal runs one signal through risk, caps and sizing, then places the entry.
// Only authentication failures come back in Outcome.Err as fatal.
func (t *Trader) HandleSignal(ctx context.Context, sig strategy.Signal) Outcome {
	out := Outcome{Signal: sig}
	reg, ok := t.Generator.Lookup(sig.Strategy)
	if !ok {
		out.Skipped = "unknown strategy"
		t.publishSignal(out)
		return out
	}

	t.decide.Lock()
	if t.Positions.HasPending(sig.Strategy, sig.Symbol) {
		t.decide.Unlock()
		out.Skipped = "entry pending"
		t.publishSignal(out)
		return out
	}
	capital := t.Balance.Capital()
	out.Decision = t.Risk.ValidateTrade(sig, capital)
	if !out.Decision.Allowed {
		t.decide.Unlock()
		t.reject(out)
		return out
	}
	if !t.Positions.CanAdmit(sig.Strategy) {
		t.decide.Unlock()
		out.Skipped = "position cap reached"
		t.publishSignal(out)
		return out
	}
	qty := t.Risk.PositionSize(sig, capital, reg.RiskPct)
	if qty <= 0 {
		t.decide.Unlock()
		out.Skipped = "position size rounds to zero"
		t.publishSignal(out)
		return out
	}
	pending, err := t.Positions.OpenPosition(sig, qty)
	t.decide.Unlock()
	if err != nil {
		out.Skipped = err.Error()
		t.publishSignal(out)
		return out
	}
	t.publishSignal(out)

	fill, err := t.Executor.Entry(ctx, pending)
	if err != nil {
		if _, cerr := t.Positions.Cancel(pending.ID); cerr != nil {
			t.log.Error().Err(cerr).Uint64("id", pending.ID).Msg("cancel pending position")
		}
		t.Status.RecordError(err)
		if common.IsAuthentication(err) {
			out.Err = err
		}
		out.Skipped = "entry failed: " + err.Error()
		return out
	}
	if !fill.Filled() && fill.Qty <= 0 {
		if _, cerr := t.Positions.Cancel(pending.ID); cerr != nil {
			t.log.Error().Err(cerr).Uint64("id", pending.ID).Msg("cancel pending position")
		}
		out.Skipped = "entry not filled: " + string(fill.Status)
		return out
	}
	opened, err := t.Positions.MarkFilled(pending.ID, fill.Price, fill.Qty, fill.ExchangeOrderID)
	if err != nil {
		t.log.Error().Err(err).Uint64("id", pending.ID).Msg("mark open")
		out.Skipped = err.Error()
		return out
	}
	out.Position = &opened
	if fill.Fee > 0 {
		t.Balance.ApplyPnL(-fill.Fee)
	}
	t.Status.Update(func(s *status.Snapshot) {
		s.TodayTrades++
		s.LastSignal = fmt.Sprintf("%s %s %s @ %.4f", sig.Strategy, sig.Symbol, sig.Direction, sig.Entry)
	})
	return out
}

func (t *Trader) reject(out Outcome) {
	d := out.Decision
	if t.Metrics != nil {
		t.Metrics.RiskRejection(string(d.Gate))
	}
	t.log.Info().Str("strategy", out.Signal.Strategy).Str("symbol", out.Signal.Symbol).
		Str("gate", string(d.Gate)).Str("reason", d.Reason).Msg("signal rejected by risk")
	t.publishSignal(out)
	if t.Bus != nil {
		t.Bus.Publish(events.EventRiskAlert, events.RiskAlert{
			Symbol:   out.Signal.Symbol,
			Strategy: out.Signal.Strategy,
			Gate:     string(d.Gate),
			Reason:   d.Reason,
			At:       t.now(),
		})
	}
}

func (t *Trader) publishSignal(out Outcome) {
	approved := out.Decision.Allowed && out.Skipped == ""
	reason := out.Skipped
	if !out.Decision.Allowed && out.Decision.Reason != "" {
		reason = out.Decision.Reason
	}
	if t.Metrics != nil {
		outcome := "approved"
		switch {
		case !out.Decision.Allowed && out.Decision.Gate != "":
			outcome = "rejected"
		case !approved:
			outcome = "skipped"
		}
		t.Metrics.Signal(out.Signal.Strategy, outcome)
	}
	if t.Bus == nil {
		return
	}
	s := out.Signal
	t.Bus.Publish(events.EventStrategySignal, events.SignalEvent{
		Strategy:   s.Strategy,
		Symbol:     s.Symbol,
		Direction:  string(s.Direction),
		Timeframe:  s.Timeframe,
		Entry:      s.Entry,
		StopLoss:   s.StopLoss,
		TakeProfit: s.TakeProfit,
		Confidence: s.Confidence,
		Approved:   approved,
		Reason:     reason,
		At:         t.now(),
	})
}

// exitKind names why a position left the market.
type exitKind string

const (
	exitStop     exitKind = "stop_loss"
	exitTarget   exitKind = "take_profit"
	exitTrailing exitKind = "trailing_stop"
	exitManual   exitKind = "manual"
)

// exitLevel checks a sealed candle against the position's levels.
// When both levels fall inside one candle the stop is assumed to have come first.
func exitLevel(p position.Position, c market.Candle) (float64, exitKind, bool) {
	var stopHit, targetHit bool
	if p.Side == strategy.Short {
		stopHit = c.High >= p.StopLoss
		targetHit = c.Low <= p.TakeProfit
	} else {
		stopHit = c.Low <= p.StopLoss
		targetHit = c.High >= p.TakeProfit
	}
	switch {
	case stopHit && p.StopLoss != p.InitialStop:
		return p.StopLoss, exitTrailing, true
	case stopHit:
		return p.StopLoss, exitStop, true
	case targetHit:
		return p.TakeProfit, exitTarget, true
	}
	return 0, "", false
}

// CheckExits runs the exit monitor for symbol on one sealed base candle.
// Bracket levels are assumed executed by the venue; a trailed stop is closed with a market order.
func (t *Trader) CheckExits(ctx context.Context, symbol string, c market.Candle) error {
	for _, p := range t.Positions.GetOpenPositions() {
		if p.Symbol != symbol {
			continue
		}
		price, kind, hit := exitLevel(p, c)
		if !hit {
			t.trail(p, c)
			continue
		}
		t.log.Info().Uint64("id", p.ID).Str("symbol", symbol).Str("exit", string(kind)).
			Float64("price", price).Msg("exit level reached")

		if kind == exitTrailing {
			if _, err := t.closeAtMarket(ctx, p, price, kind); err != nil {
				if common.IsAuthentication(err) {
					return err
				}
				t.log.Warn().Err(err).Uint64("id", p.ID).Msg("trailing exit failed")
			}
			continue
		}
		if !t.claim(p.ID) {
			continue
		}
		if _, err := t.Positions.MarkClosing(p.ID); err != nil {
			t.release(p.ID)
			t.log.Warn().Err(err).Uint64("id", p.ID).Msg("mark closing")
			continue
		}
		closed, err := t.Positions.MarkClosed(p.ID, price)
		t.release(p.ID)
		if err != nil {
			t.log.Error().Err(err).Uint64("id", p.ID).Msg("mark closed")
			continue
		}
		t.recordClose(closed, kind)
	}
	return nil
}

// trail ratchets the stop toward price. Stops never loosen.
func (t *Trader) trail(p position.Position, c market.Candle) {
	pct := t.TrailingStopPct
	if pct <= 0 {
		return
	}
	var stop float64
	if p.Side == strategy.Short {
		stop = c.Close * (1 + pct/100)
		if stop >= p.StopLoss {
			return
		}
	} else {
		stop = c.Close * (1 - pct/100)
		if stop <= p.StopLoss {
			return
		}
	}
	if err := t.Positions.UpdateStopLoss(p.ID, stop); err != nil {
		t.log.Warn().Err(err).Uint64("id", p.ID).Msg("trail stop")
		return
	}
	t.log.Debug().Uint64("id", p.ID).Float64("stop", stop).Msg("stop trailed")
}

// ClosePosition flattens an OPEN position with a reduce-only market order.
func (t *Trader) ClosePosition(ctx context.Context, id uint64, refPrice float64) (position.Position, error) {
	p, ok := t.Positions.Get(id)
	if !ok {
		return position.Position{}, fmt.Errorf("%w: %d", position.ErrNotFound, id)
	}
	if p.Status != position.StatusOpen {
		return p, fmt.Errorf("%w: position %d is %s", position.ErrInvalidTransition, id, p.Status)
	}
	if refPrice <= 0 {
		refPrice = p.EntryPrice
	}
	return t.closeAtMarket(ctx, p, refPrice, exitManual)
}

// closeAtMarket holds the position in CLOSING while the exit order is out. Whatever
// the order did not execute goes back to OPEN so the monitor or an operator can retry.
func (t *Trader) closeAtMarket(ctx context.Context, p position.Position, refPrice float64, kind exitKind) (position.Position, error) {
	if !t.claim(p.ID) {
		return p, ErrPositionBusy
	}
	defer t.release(p.ID)

	closing, err := t.Positions.MarkClosing(p.ID)
	if err != nil {
		return p, err
	}
	p = closing
	fill, err := t.Executor.Close(ctx, p, p.Remaining, refPrice)
	if err != nil {
		t.Status.RecordError(err)
		return t.reopen(p), err
	}
	if fill.Qty <= 0 {
		return t.reopen(p), fmt.Errorf("exit order for position %d not filled: %s", p.ID, fill.Status)
	}
	qty := fill.Qty
	if qty > p.Remaining {
		qty = p.Remaining
	}
	after, err := t.Positions.PartialExit(p.ID, qty, fill.Price)
	if err != nil {
		return t.reopen(p), err
	}
	if fill.Fee > 0 {
		t.Balance.ApplyPnL(-fill.Fee)
	}
	if after.Status == position.StatusClosed {
		t.recordClose(after, kind)
		return after, nil
	}
	return t.reopen(after), nil
}

func (t *Trader) reopen(p position.Position) position.Position {
	back, err := t.Positions.Reopen(p.ID)
	if err != nil {
		t.log.Error().Err(err).Uint64("id", p.ID).Msg("reopen after exit")
		return p
	}
	return back
}

func (t *Trader) claim(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing[id] {
		return false
	}
	t.closing[id] = true
	return true
}

func (t *Trader) release(id uint64) {
	t.mu.Lock()
	delete(t.closing, id)
	t.mu.Unlock()
}

// recordClose books a finished trade into risk, balance, equity and status.
func (t *Trader) recordClose(p position.Position, kind exitKind) {
	pnl := p.RealizedPnL
	t.Risk.RecordTradeOutcome(pnl)
	t.Balance.ApplyPnL(pnl)

	t.mu.Lock()
	t.equity.Apply(pnl)
	dd := t.equity.Drawdown()
	t.mu.Unlock()
	t.Risk.UpdateDrawdown(dd)

	if t.Metrics != nil {
		t.Metrics.RealizedProfit(pnl)
		t.Metrics.Drawdown(dd)
	}
	t.Status.Update(func(s *status.Snapshot) { s.TodayPnL += pnl })

	t.log.Info().Uint64("id", p.ID).Str("strategy", p.Strategy).Str("symbol", p.Symbol).
		Str("exit", string(kind)).Float64("pnl", pnl).Float64("drawdown_pct", dd).Msg("position closed")

	if st := t.Risk.Snapshot(); st.EmergencyStop && t.Bus != nil {
		t.Bus.Publish(events.EventRiskAlert, events.RiskAlert{
			Symbol:   p.Symbol,
			Strategy: p.Strategy,
			Gate:     string(risk.GateEmergencyStop),
			Reason:   st.EmergencyReason,
			At:       t.now(),
		})
	}
}

func (t *Trader) onPositionChange(c position.Change) {
	p := c.Position
	open := len(t.Positions.GetOpenPositions())
	if t.Metrics != nil {
		t.Metrics.OpenPositions(open)
	}
	t.Status.Update(func(s *status.Snapshot) { s.OpenPositions = open })
	if t.Bus == nil {
		return
	}
	ev := events.PositionEvent{
		ID:          p.ID,
		Strategy:    p.Strategy,
		Symbol:      p.Symbol,
		Side:        string(p.Side),
		Status:      string(p.Status),
		From:        string(c.From),
		EntryPrice:  p.EntryPrice,
		SignalEntry: p.SignalEntry,
		Quantity:    p.Quantity,
		Remaining:   p.Remaining,
		StopLoss:    p.StopLoss,
		TakeProfit:  p.TakeProfit,
		RealizedPnL: p.RealizedPnL,
		OrderID:     p.ExchangeOrderID,
		At:          t.now(),
	}
	if c.Exit != nil {
		ev.ExitQty = c.Exit.Qty
		ev.ExitPrice = c.Exit.Price
		ev.ExitPnL = c.Exit.PnL
	}
	t.Bus.Publish(events.EventPositionChange, ev)
}
