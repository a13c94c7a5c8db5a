package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/events"
	"bingx-trading-bot/internal/position"
	"bingx-trading-bot/internal/strategy"
	"bingx-trading-bot/pkg/exchanges/common"
)

// Observer receives per-order outcomes, e.g. for metrics.
type Observer interface {
	ObserveOrder(kind, status string, latency time.Duration)
}

// Executor sends orders through a gateway and publishes their outcome.
type Executor struct {
	Gateway  common.Gateway
	Bus      *events.Bus
	Observer Observer

	// Hedge selects LONG/SHORT position sides instead of one-way mode.
	Hedge bool

	now func() time.Time
	log zerolog.Logger
}

func NewExecutor(gw common.Gateway, bus *events.Bus, log zerolog.Logger) *Executor {
	return &Executor{
		Gateway: gw,
		Bus:     bus,
		Hedge:   true,
		now:     time.Now,
		log:     log.With().Str("component", "executor").Logger(),
	}
}

func entrySide(d strategy.Direction) (common.Side, common.PositionSide) {
	if d == strategy.Short {
		return common.SideSell, common.PositionShort
	}
	return common.SideBuy, common.PositionLong
}

// Entry submits a market entry with the signal's bracket attached.
func (e *Executor) Entry(ctx context.Context, p position.Position) (Fill, error) {
	side, ps := entrySide(p.Side)
	o := Order{
		ID:           uuid.NewString(),
		PositionID:   p.ID,
		Strategy:     p.Strategy,
		Symbol:       p.Symbol,
		Side:         side,
		PositionSide: ps,
		Type:         common.OrderTypeMarket,
		Qty:          p.Quantity,
		Price:        p.SignalEntry,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		CreatedAt:    e.now(),
	}
	if !e.Hedge {
		o.PositionSide = common.PositionBoth
	}
	return e.Handle(ctx, "entry", o)
}

// Close submits a reduce-only market order for qty of the position.
// refPrice is used when the venue does not report an average price.
func (e *Executor) Close(ctx context.Context, p position.Position, qty, refPrice float64) (Fill, error) {
	side, ps := entrySide(p.Side)
	o := Order{
		ID:           uuid.NewString(),
		PositionID:   p.ID,
		Strategy:     p.Strategy,
		Symbol:       p.Symbol,
		Side:         side.Opposite(),
		PositionSide: ps,
		Type:         common.OrderTypeMarket,
		Qty:          qty,
		Price:        refPrice,
		ReduceOnly:   true,
		CreatedAt:    e.now(),
	}
	if !e.Hedge {
		o.PositionSide = common.PositionBoth
	}
	return e.Handle(ctx, "exit", o)
}

// Handle submits o and normalises the result. Errors are returned unchanged so callers
// can classify them with errors.As.
func (e *Executor) Handle(ctx context.Context, kind string, o Order) (Fill, error) {
	if e.Gateway == nil {
		return Fill{Order: o}, fmt.Errorf("executor: no gateway configured")
	}
	e.publish(events.EventOrderSubmitted, o, Fill{Status: common.StatusNew}, nil)

	start := time.Now()
	res, err := e.Gateway.SubmitOrder(ctx, o.Request())
	latency := time.Since(start)
	if err != nil {
		e.observe(kind, string(common.StatusRejected), latency)
		e.log.Error().Err(err).Str("symbol", o.Symbol).Str("client_id", o.ID).Str("kind", kind).Msg("order failed")
		e.publish(events.EventOrderRejected, o, Fill{Status: common.StatusRejected}, err)
		return Fill{Order: o, Status: common.StatusRejected, Latency: latency}, err
	}

	fill := Fill{
		Order:           o,
		ExchangeOrderID: res.ExchangeOrderID,
		Status:          res.Status,
		Qty:             res.ExecutedQty,
		Price:           res.AvgPrice,
		Fee:             res.Commission,
		Latency:         latency,
	}
	// market orders are often acknowledged before execution is reported
	if fill.Status == common.StatusNew || fill.Status == common.StatusUnknown || fill.Status == "" {
		fill.Status = common.StatusFilled
	}
	e.observe(kind, string(fill.Status), latency)
	if !fill.Filled() {
		e.log.Warn().Str("symbol", o.Symbol).Str("client_id", o.ID).Str("kind", kind).
			Str("status", string(fill.Status)).Float64("executed", fill.Qty).Msg("order not filled")
		e.publish(events.EventOrderRejected, o, fill, nil)
		return fill, nil
	}
	if fill.Qty <= 0 {
		fill.Qty = o.Qty
	}
	if fill.Price <= 0 {
		fill.Price = o.Price
	}
	e.log.Info().Str("symbol", o.Symbol).Str("side", string(o.Side)).Str("kind", kind).
		Float64("qty", fill.Qty).Float64("price", fill.Price).Str("order_id", fill.ExchangeOrderID).
		Dur("latency", latency).Msg("order executed")
	e.publish(events.EventOrderAccepted, o, fill, nil)
	e.publish(events.EventOrderFilled, o, fill, nil)
	return fill, nil
}

// Cancel cancels a resting venue order.
func (e *Executor) Cancel(ctx context.Context, symbol, exchangeOrderID string) error {
	if err := e.Gateway.CancelOrder(ctx, symbol, exchangeOrderID); err != nil {
		e.log.Warn().Err(err).Str("symbol", symbol).Str("order_id", exchangeOrderID).Msg("cancel failed")
		return err
	}
	return nil
}

func (e *Executor) observe(kind, status string, d time.Duration) {
	if e.Observer != nil {
		e.Observer.ObserveOrder(kind, status, d)
	}
}

func (e *Executor) publish(topic events.Event, o Order, f Fill, err error) {
	if e.Bus == nil {
		return
	}
	ev := events.OrderEvent{
		ClientID:        o.ID,
		ExchangeOrderID: f.ExchangeOrderID,
		PositionID:      o.PositionID,
		Symbol:          o.Symbol,
		Side:            string(o.Side),
		ReduceOnly:      o.ReduceOnly,
		Qty:             o.Qty,
		Price:           o.Price,
		Status:          string(f.Status),
		At:              e.now(),
	}
	if f.Price > 0 {
		ev.Price = f.Price
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.Bus.Publish(topic, ev)
}
