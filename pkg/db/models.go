package db

// Signal is one journaled signal and its risk outcome.
type Signal struct {
	ID         int64
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
	CreatedAt  int64
}

// Order is the latest known state of an order submitted by the bot.
type Order struct {
	ClientID        string
	RunID           string
	ExchangeOrderID string
	PositionID      uint64
	Symbol          string
	Side            string
	ReduceOnly      bool
	Qty             float64
	Price           float64
	Status          string
	Error           string
	UpdatedAt       int64
}

// Position mirrors the in-memory position after each transition. ID is unique within RunID.
type Position struct {
	RunID           string
	ID              uint64
	Strategy        string
	Symbol          string
	Side            string
	Status          string
	EntryPrice      float64
	SignalEntry     float64
	Quantity        float64
	Remaining       float64
	StopLoss        float64
	TakeProfit      float64
	RealizedPnL     float64
	ExchangeOrderID string
	UpdatedAt       int64
}

// PartialExit is one reduction of a position.
type PartialExit struct {
	ID         int64
	RunID      string
	PositionID uint64
	Qty        float64
	Price      float64
	PnL        float64
	CreatedAt  int64
}

// RiskEvent is a gate rejection.
type RiskEvent struct {
	ID        int64
	Symbol    string
	Strategy  string
	Gate      string
	Reason    string
	CreatedAt int64
}
