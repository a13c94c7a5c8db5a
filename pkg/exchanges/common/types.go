package common

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide is the hedge-mode leg an order applies to.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionBoth  PositionSide = "BOTH"
)

// OrderType denotes the swap order types the bot submits.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC      TimeInForce = "GTC"
	TIFIOC      TimeInForce = "IOC"
	TIFFOK      TimeInForce = "FOK"
	TIFPostOnly TimeInForce = "PostOnly"
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// Bracket is a contingent stop-loss or take-profit attached to an entry.
type Bracket struct {
	Type        OrderType
	StopPrice   float64
	WorkingType string // MARK_PRICE or CONTRACT_PRICE
}

// OrderRequest captures an order intent to be sent to the venue.
type OrderRequest struct {
	Symbol       string
	Side         Side
	PositionSide PositionSide
	Type         OrderType
	Qty          float64
	Price        float64 // required for LIMIT
	TimeInForce  TimeInForce
	ClientID     string
	ReduceOnly   bool
	StopLoss     *Bracket
	TakeProfit   *Bracket
}

// OrderResult is the venue's view of an order. It is never locally authoritative.
type OrderResult struct {
	ExchangeOrderID string
	ClientID        string
	Symbol          string
	Side            Side
	Status          OrderStatus
	Qty             float64
	ExecutedQty     float64
	AvgPrice        float64
	Commission      float64
}

// Balance is the perpetual account balance in the settlement asset.
type Balance struct {
	Asset            string
	Balance          float64
	Equity           float64
	AvailableMargin  float64
	UsedMargin       float64
	UnrealizedProfit float64
}

// VenuePosition is a position as reported by the venue.
type VenuePosition struct {
	Symbol           string
	PositionID       string
	PositionSide     PositionSide
	Amount           float64
	AvgPrice         float64
	UnrealizedProfit float64
	Leverage         int
}

// Ticker is the latest traded price.
type Ticker struct {
	Symbol string
	Price  float64
	Time   int64
}

// Kline is a raw OHLCV bar as returned by the venue, open time in milliseconds.
type Kline struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}
