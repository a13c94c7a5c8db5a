package events

import "time"

// Event enumerates the topics published inside the bot.
type Event string

const (
	EventCandleSealed   Event = "candle.sealed"
	EventStrategySignal Event = "strategy.signal"
	EventRiskAlert      Event = "risk.alert"
	EventPositionChange Event = "position.change"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderAccepted  Event = "order.accepted"
	EventOrderRejected  Event = "order.rejected"
	EventOrderFilled    Event = "order.filled"
)

// CandleSealed is published when a timeframe seals a bucket.
type CandleSealed struct {
	Symbol    string
	Timeframe string
	Time      int64
	Close     float64
	Filled    bool
}

// SignalEvent is published for every forwarded signal and its outcome.
type SignalEvent struct {
	Strategy   string
	Symbol     string
	Direction  string
	Timeframe  string
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Confidence float64
	Approved   bool
	Reason     string
	At         time.Time
}

// RiskAlert is published when a gate rejects a trade or the emergency stop latches.
type RiskAlert struct {
	Symbol   string
	Strategy string
	Gate     string
	Reason   string
	At       time.Time
}

// OrderEvent follows one order through submission.
type OrderEvent struct {
	ClientID        string
	ExchangeOrderID string
	PositionID      uint64
	Symbol          string
	Side            string
	ReduceOnly      bool
	Qty             float64
	Price           float64
	Status          string
	Error           string
	At              time.Time
}

// PositionEvent carries a position after a lifecycle step.
type PositionEvent struct {
	ID          uint64
	Strategy    string
	Symbol      string
	Side        string
	Status      string
	From        string
	EntryPrice  float64
	SignalEntry float64
	Quantity    float64
	Remaining   float64
	StopLoss    float64
	TakeProfit  float64
	RealizedPnL float64
	OrderID     string
	ExitQty     float64
	ExitPrice   float64
	ExitPnL     float64
	At          time.Time
}
