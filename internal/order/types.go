package order

import (
	"time"

	"bingx-trading-bot/pkg/exchanges/common"
)

// Order is an order intent built by the executor.
type Order struct {
	ID           string // client order id
	PositionID   uint64
	Strategy     string
	Symbol       string
	Side         common.Side
	PositionSide common.PositionSide
	Type         common.OrderType
	Qty          float64
	Price        float64 // reference price; sent only for LIMIT
	StopLoss     float64
	TakeProfit   float64
	ReduceOnly   bool
	CreatedAt    time.Time
}

// Request converts the intent to the venue request.
func (o Order) Request() common.OrderRequest {
	req := common.OrderRequest{
		Symbol:       o.Symbol,
		Side:         o.Side,
		PositionSide: o.PositionSide,
		Type:         o.Type,
		Qty:          o.Qty,
		ClientID:     o.ID,
		ReduceOnly:   o.ReduceOnly,
	}
	if o.Type == common.OrderTypeLimit {
		req.Price = o.Price
		req.TimeInForce = common.TIFGTC
	}
	if o.StopLoss > 0 {
		req.StopLoss = &common.Bracket{Type: common.OrderTypeStopMarket, StopPrice: o.StopLoss, WorkingType: "MARK_PRICE"}
	}
	if o.TakeProfit > 0 {
		req.TakeProfit = &common.Bracket{Type: common.OrderTypeTakeProfitMarket, StopPrice: o.TakeProfit, WorkingType: "MARK_PRICE"}
	}
	return req
}

// Fill is the executor's reading of the venue answer.
type Fill struct {
	Order           Order
	ExchangeOrderID string
	Status          common.OrderStatus
	Qty             float64
	Price           float64
	Fee             float64
	Latency         time.Duration
}

// Filled reports whether any quantity executed.
func (f Fill) Filled() bool {
	return f.Status == common.StatusFilled || f.Status == common.StatusPartial
}
