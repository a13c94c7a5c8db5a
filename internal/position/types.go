package position

import (
	"errors"
	"time"

	"bingx-trading-bot/internal/strategy"
)

// Status is the lifecycle stage of a position.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusOpen    Status = "OPEN"
	StatusClosing Status = "CLOSING"
	StatusClosed  Status = "CLOSED"
)

var (
	ErrNotFound          = errors.New("position not found")
	ErrInvalidTransition = errors.New("invalid position transition")
	ErrInvalidQuantity   = errors.New("invalid quantity")
)

// PartialExit records one reduction of a position.
type PartialExit struct {
	Qty   float64   `json:"qty"`
	Price float64   `json:"price"`
	PnL   float64   `json:"pnl"`
	At    time.Time `json:"at"`
}

// Position is owned by the Manager; callers only ever see copies.
type Position struct {
	ID              uint64             `json:"id"`
	Strategy        string             `json:"strategy"`
	Symbol          string             `json:"symbol"`
	Side            strategy.Direction `json:"side"`
	EntryPrice      float64            `json:"entry_price"`
	Quantity        float64            `json:"quantity"`
	Remaining       float64            `json:"remaining"`
	StopLoss        float64            `json:"stop_loss"`
	InitialStop     float64            `json:"initial_stop"` // bracket stop sent with the entry
	TakeProfit      float64            `json:"take_profit"`
	Status          Status             `json:"status"`
	Exits           []PartialExit      `json:"exits,omitempty"`
	RealizedPnL     float64            `json:"realized_pnl"`
	ExchangeOrderID string             `json:"exchange_order_id,omitempty"`
	SignalEntry     float64            `json:"signal_entry"`
	OpenedAt        time.Time          `json:"opened_at"`
	ClosedAt        time.Time          `json:"closed_at,omitempty"`
}

// PnL of closing qty at price.
func (p Position) PnL(qty, price float64) float64 {
	if p.Side == strategy.Short {
		return (p.EntryPrice - price) * qty
	}
	return (price - p.EntryPrice) * qty
}

func (p Position) clone() Position {
	if p.Exits != nil {
		p.Exits = append([]PartialExit(nil), p.Exits...)
	}
	return p
}

// Change describes a lifecycle step, delivered to the manager's observer.
type Change struct {
	Position Position
	From     Status
	Exit     *PartialExit
}
