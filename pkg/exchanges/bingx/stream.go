package bingx

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	mainnetStreamURL = "wss://open-api-swap.bingx.com/swap-market"
	testnetStreamURL = "wss://vst-open-api-ws.bingx.com/swap-market"
)

// StreamURL returns the public market stream endpoint.
func StreamURL(testnet bool) string {
	if testnet {
		return testnetStreamURL
	}
	return mainnetStreamURL
}

// Trade is one public trade event.
type Trade struct {
	Symbol     string
	Price      float64
	Qty        float64
	Time       int64 // ms
	BuyerMaker bool
}

// ParseError marks a message that could not be decoded. The connection stays usable.
type ParseError struct {
	Raw []byte
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse stream message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StreamDialer opens market stream connections.
type StreamDialer struct {
	URL         string
	ReadTimeout time.Duration
	dialer      *websocket.Dialer
}

// NewStreamDialer builds a dialer for the given endpoint.
func NewStreamDialer(url string) *StreamDialer {
	return &StreamDialer{
		URL:         url,
		ReadTimeout: 60 * time.Second,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial connects without subscribing.
func (d *StreamDialer) Dial(ctx context.Context) (*StreamConn, error) {
	conn, _, err := d.dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bingx ws: %w", err)
	}
	return &StreamConn{conn: conn, readTimeout: d.ReadTimeout}, nil
}

// StreamConn is a single market stream connection. Reads must come from one goroutine.
type StreamConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

type subscribeMsg struct {
	ID       string `json:"id"`
	ReqType  string `json:"reqType"`
	DataType string `json:"dataType"`
}

// Subscribe sends one trade subscription for symbol.
func (s *StreamConn) Subscribe(symbol string) error {
	msg := subscribeMsg{ID: uuid.NewString(), ReqType: "sub", DataType: symbol + "@trade"}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	return nil
}

// ReadTrades blocks for the next frame. Heartbeats and acks yield no trades and no error.
// Undecodable frames yield a *ParseError; any other error means the connection is gone.
func (s *StreamConn) ReadTrades() ([]Trade, error) {
	if s.readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	payload, err := inflate(msg)
	if err != nil {
		return nil, &ParseError{Raw: msg, Err: err}
	}
	if isPing(payload) {
		if err := s.conn.WriteMessage(websocket.TextMessage, []byte("Pong")); err != nil {
			return nil, fmt.Errorf("write pong: %w", err)
		}
		return nil, nil
	}
	trades, err := ParseTradeMessage(payload)
	if err != nil {
		return nil, &ParseError{Raw: payload, Err: err}
	}
	return trades, nil
}

// Close sends a close frame and drops the connection.
func (s *StreamConn) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}

func inflate(msg []byte) ([]byte, error) {
	if len(msg) < 2 || msg[0] != 0x1f || msg[1] != 0x8b {
		return msg, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(msg))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func isPing(b []byte) bool {
	s := strings.TrimSpace(string(b))
	return s == "Ping" || s == "ping"
}

type tradeFrame struct {
	ID       string          `json:"id"`
	Code     int             `json:"code"`
	Msg      string          `json:"msg"`
	DataType string          `json:"dataType"`
	Data     json.RawMessage `json:"data"`
}

type tradeEvent struct {
	Event     string     `json:"e"`
	EventTime flexNumber `json:"E"`
	Symbol    string     `json:"s"`
	Price     flexNumber `json:"p"`
	Qty       flexNumber `json:"q"`
	TradeTime flexNumber `json:"T"`
	Maker     bool       `json:"m"`
}

// ParseTradeMessage decodes a trade push. Subscription acks return no trades.
func ParseTradeMessage(b []byte) ([]Trade, error) {
	var frame tradeFrame
	if err := json.Unmarshal(b, &frame); err != nil {
		return nil, err
	}
	if frame.Code != 0 {
		return nil, fmt.Errorf("stream error code %d: %s", frame.Code, frame.Msg)
	}
	data := bytes.TrimSpace(frame.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		if frame.DataType == "" {
			return nil, nil // ack
		}
		return nil, fmt.Errorf("empty data for %s", frame.DataType)
	}
	if frame.DataType != "" && !strings.HasSuffix(frame.DataType, "@trade") {
		return nil, fmt.Errorf("unexpected data type %q", frame.DataType)
	}

	var events []tradeEvent
	if data[0] == '[' {
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, err
		}
	} else {
		var ev tradeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	symbol := strings.TrimSuffix(frame.DataType, "@trade")
	out := make([]Trade, 0, len(events))
	for _, ev := range events {
		if ev.Event != "" && ev.Event != "trade" {
			continue
		}
		t := Trade{
			Symbol:     ev.Symbol,
			Price:      ev.Price.Float(),
			Qty:        ev.Qty.Float(),
			Time:       ev.TradeTime.Int64(),
			BuyerMaker: ev.Maker,
		}
		if t.Symbol == "" {
			t.Symbol = symbol
		}
		if t.Time == 0 {
			t.Time = ev.EventTime.Int64()
		}
		if t.Symbol == "" || t.Price <= 0 || t.Qty < 0 || t.Time <= 0 {
			return nil, fmt.Errorf("incomplete trade %+v", ev)
		}
		out = append(out, t)
	}
	return out, nil
}
