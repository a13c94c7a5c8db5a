package bingx

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"bingx-trading-bot/pkg/exchanges/common"
)

// envelope is the wrapper every REST answer comes in.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// flexNumber accepts numbers sent either as JSON numbers or as strings.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = flexNumber(s)
		return nil
	}
	*n = flexNumber(string(b))
	return nil
}

func (n flexNumber) Float() float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	return f
}

func (n flexNumber) Int64() int64 {
	s := strings.TrimSpace(string(n))
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	f, _ := strconv.ParseFloat(s, 64)
	return int64(f)
}

func (n flexNumber) String() string { return string(n) }

type balanceResp struct {
	Balance struct {
		Asset            string     `json:"asset"`
		Balance          flexNumber `json:"balance"`
		Equity           flexNumber `json:"equity"`
		UnrealizedProfit flexNumber `json:"unrealizedProfit"`
		AvailableMargin  flexNumber `json:"availableMargin"`
		UsedMargin       flexNumber `json:"usedMargin"`
	} `json:"balance"`
}

type positionResp struct {
	Symbol           string     `json:"symbol"`
	PositionID       flexNumber `json:"positionId"`
	PositionSide     string     `json:"positionSide"`
	PositionAmt      flexNumber `json:"positionAmt"`
	AvgPrice         flexNumber `json:"avgPrice"`
	UnrealizedProfit flexNumber `json:"unrealizedProfit"`
	Leverage         flexNumber `json:"leverage"`
}

type orderResp struct {
	Symbol         string     `json:"symbol"`
	OrderID        flexNumber `json:"orderId"`
	Side           string     `json:"side"`
	PositionSide   string     `json:"positionSide"`
	Type           string     `json:"type"`
	OrigQty        flexNumber `json:"origQty"`
	Quantity       flexNumber `json:"quantity"`
	ExecutedQty    flexNumber `json:"executedQty"`
	AvgPrice       flexNumber `json:"avgPrice"`
	Status         string     `json:"status"`
	ClientOrderID  string     `json:"clientOrderId"`
	ClientOrderAlt string     `json:"clientOrderID"`
}

func (o orderResp) toResult() common.OrderResult {
	qty := o.OrigQty.Float()
	if qty == 0 {
		qty = o.Quantity.Float()
	}
	client := o.ClientOrderID
	if client == "" {
		client = o.ClientOrderAlt
	}
	return common.OrderResult{
		ExchangeOrderID: o.OrderID.String(),
		ClientID:        client,
		Symbol:          o.Symbol,
		Side:            common.Side(strings.ToUpper(o.Side)),
		Status:          mapStatus(o.Status),
		Qty:             qty,
		ExecutedQty:     o.ExecutedQty.Float(),
		AvgPrice:        o.AvgPrice.Float(),
	}
}

type klineResp struct {
	Open   flexNumber `json:"open"`
	Close  flexNumber `json:"close"`
	High   flexNumber `json:"high"`
	Low    flexNumber `json:"low"`
	Volume flexNumber `json:"volume"`
	Time   flexNumber `json:"time"`
}

type tickerResp struct {
	Symbol string     `json:"symbol"`
	Price  flexNumber `json:"price"`
	Time   flexNumber `json:"time"`
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW", "PENDING":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED", "CANCELLED":
		return common.StatusCanceled
	case "FAILED", "REJECTED":
		return common.StatusRejected
	case "EXPIRED":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

// authCodes are venue codes that mean the credentials or the signature were refused.
var authCodes = map[int]bool{
	100001: true, // signature verification failed
	100413: true, // incorrect api key
	100419: true, // ip not whitelisted
	100421: true, // timestamp outside recv window
}
