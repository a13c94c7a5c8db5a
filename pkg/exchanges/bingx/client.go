package bingx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bingx-trading-bot/pkg/exchanges/common"
)

const (
	mainnetBaseURL = "https://open-api.bingx.com"
	testnetBaseURL = "https://open-api-vst.bingx.com"

	// MaxCandleLimit is the largest page the klines endpoint serves.
	MaxCandleLimit = 1440
)

// ErrClosed is returned for calls made after Close.
var ErrClosed = errors.New("bingx client closed")

// Config holds BingX perpetual swap credentials and transport settings.
type Config struct {
	APIKey            string
	APISecret         string
	Testnet           bool
	BaseURL           string // overrides the testnet switch when set
	RecvWindow        int64  // ms
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// Client talks to the BingX perpetual swap REST API.
type Client struct {
	cfg        Config
	baseURL    string
	transport  *http.Transport
	httpClient *http.Client
	timeSync   *common.TimeSync
	limiter    *rate.Limiter
	log        zerolog.Logger

	life      context.Context
	shutdown  context.CancelFunc
	closeOnce sync.Once
}

// New builds a client. The caller owns it and must Close it.
func New(cfg Config, log zerolog.Logger) *Client {
	base := mainnetBaseURL
	if cfg.Testnet {
		base = testnetBaseURL
	}
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	life, shutdown := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		transport:  transport,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		log:        log.With().Str("component", "bingx").Logger(),
		life:       life,
		shutdown:   shutdown,
	}
	c.timeSync = common.NewTimeSync(c.ServerTime, c.log)
	return c
}

// With runs fn with a fresh client and closes it on every exit path.
func With(ctx context.Context, cfg Config, log zerolog.Logger, fn func(ctx context.Context, c *Client) error) error {
	c := New(cfg, log)
	defer c.Close()
	return fn(ctx, c)
}

// Close aborts in-flight calls and releases pooled connections. Safe to call twice.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.shutdown()
		c.transport.CloseIdleConnections()
	})
	return nil
}

// TimeSync exposes the venue clock tracker so callers can run it periodically.
func (c *Client) TimeSync() *common.TimeSync { return c.timeSync }

// SyncTime aligns request timestamps with the venue clock.
func (c *Client) SyncTime(ctx context.Context) error {
	return c.timeSync.Sync(ctx)
}

func (c *Client) now() int64 {
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

// ServerTime returns the venue clock in milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	data, err := c.do(ctx, "server time", http.MethodGet, "/openApi/swap/v2/server/time", url.Values{}, false)
	if err != nil {
		return 0, err
	}
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("decode server time: %w", err)
	}
	return out.ServerTime, nil
}

// GetBalance returns the perpetual account balance.
func (c *Client) GetBalance(ctx context.Context) (common.Balance, error) {
	data, err := c.do(ctx, "balance", http.MethodGet, "/openApi/swap/v2/user/balance", url.Values{}, true)
	if err != nil {
		return common.Balance{}, err
	}
	var out balanceResp
	if err := json.Unmarshal(data, &out); err != nil {
		return common.Balance{}, fmt.Errorf("decode balance: %w", err)
	}
	b := out.Balance
	return common.Balance{
		Asset:            b.Asset,
		Balance:          b.Balance.Float(),
		Equity:           b.Equity.Float(),
		AvailableMargin:  b.AvailableMargin.Float(),
		UsedMargin:       b.UsedMargin.Float(),
		UnrealizedProfit: b.UnrealizedProfit.Float(),
	}, nil
}

// GetPositions returns venue positions; symbol optional.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]common.VenuePosition, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	data, err := c.do(ctx, "positions", http.MethodGet, "/openApi/swap/v2/user/positions", params, true)
	if err != nil {
		return nil, err
	}
	var raw []positionResp
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	out := make([]common.VenuePosition, 0, len(raw))
	for _, p := range raw {
		out = append(out, common.VenuePosition{
			Symbol:           p.Symbol,
			PositionID:       p.PositionID.String(),
			PositionSide:     common.PositionSide(strings.ToUpper(p.PositionSide)),
			Amount:           p.PositionAmt.Float(),
			AvgPrice:         p.AvgPrice.Float(),
			UnrealizedProfit: p.UnrealizedProfit.Float(),
			Leverage:         int(p.Leverage.Int64()),
		})
	}
	return out, nil
}

// GetOpenOrders returns resting orders; symbol optional.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]common.OrderResult, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	data, err := c.do(ctx, "open orders", http.MethodGet, "/openApi/swap/v2/trade/openOrders", params, true)
	if err != nil {
		return nil, err
	}
	var out struct {
		Orders []orderResp `json:"orders"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	res := make([]common.OrderResult, 0, len(out.Orders))
	for _, o := range out.Orders {
		res = append(res, o.toResult())
	}
	return res, nil
}

// GetTicker returns the latest price for symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (common.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	data, err := c.do(ctx, "ticker", http.MethodGet, "/openApi/swap/v2/quote/price", params, false)
	if err != nil {
		return common.Ticker{}, err
	}
	var out tickerResp
	if err := json.Unmarshal(data, &out); err != nil {
		return common.Ticker{}, fmt.Errorf("decode ticker: %w", err)
	}
	return common.Ticker{Symbol: out.Symbol, Price: out.Price.Float(), Time: out.Time.Int64()}, nil
}

// CandleQuery selects a page of klines. Zero Start/End are omitted.
type CandleQuery struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
	Limit    int
}

// GetCandles returns klines ascending by open time. Limit is clamped to MaxCandleLimit.
func (c *Client) GetCandles(ctx context.Context, q CandleQuery) ([]common.Kline, error) {
	params := url.Values{}
	params.Set("symbol", q.Symbol)
	params.Set("interval", q.Interval)
	if !q.Start.IsZero() {
		params.Set("startTime", strconv.FormatInt(q.Start.UnixMilli(), 10))
	}
	if !q.End.IsZero() {
		params.Set("endTime", strconv.FormatInt(q.End.UnixMilli(), 10))
	}
	limit := q.Limit
	if limit <= 0 || limit > MaxCandleLimit {
		limit = MaxCandleLimit
	}
	params.Set("limit", strconv.Itoa(limit))

	data, err := c.do(ctx, "klines", http.MethodGet, "/openApi/swap/v3/quote/klines", params, false)
	if err != nil {
		return nil, err
	}
	var raw []klineResp
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	out := make([]common.Kline, 0, len(raw))
	for _, k := range raw {
		out = append(out, common.Kline{
			OpenTime: k.Time.Int64(),
			Open:     k.Open.Float(),
			High:     k.High.Float(),
			Low:      k.Low.Float(),
			Close:    k.Close.Float(),
			Volume:   k.Volume.Float(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	return out, nil
}

// SubmitOrder places an order, attaching bracket legs when present.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", strings.ToUpper(string(req.Type)))
	params.Set("quantity", formatFloat(req.Qty))
	if req.PositionSide != "" {
		params.Set("positionSide", string(req.PositionSide))
	}
	if req.Type == common.OrderTypeLimit {
		params.Set("price", formatFloat(req.Price))
		tif := req.TimeInForce
		if tif == "" {
			tif = common.TIFGTC
		}
		params.Set("timeInForce", string(tif))
	}
	if req.ClientID != "" {
		params.Set("clientOrderID", req.ClientID)
	}
	if req.ReduceOnly && (req.PositionSide == "" || req.PositionSide == common.PositionBoth) {
		params.Set("reduceOnly", "true")
	}
	if req.StopLoss != nil {
		leg, err := bracketParam(*req.StopLoss, common.OrderTypeStopMarket)
		if err != nil {
			return common.OrderResult{}, err
		}
		params.Set("stopLoss", leg)
	}
	if req.TakeProfit != nil {
		leg, err := bracketParam(*req.TakeProfit, common.OrderTypeTakeProfitMarket)
		if err != nil {
			return common.OrderResult{}, err
		}
		params.Set("takeProfit", leg)
	}

	data, err := c.do(ctx, "place order", http.MethodPost, "/openApi/swap/v2/trade/order", params, true)
	if err != nil {
		return common.OrderResult{}, err
	}
	var out struct {
		Order orderResp `json:"order"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	res := out.Order.toResult()
	if res.ClientID == "" {
		res.ClientID = req.ClientID
	}
	if res.Qty == 0 {
		res.Qty = req.Qty
	}
	return res, nil
}

// CancelOrder cancels an order by symbol and venue id.
func (c *Client) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", exchangeOrderID)
	_, err := c.do(ctx, "cancel order", http.MethodDelete, "/openApi/swap/v2/trade/order", params, true)
	return err
}

// SetLeverage sets leverage for one side of a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, side common.PositionSide, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("leverage", strconv.Itoa(leverage))
	_, err := c.do(ctx, "set leverage", http.MethodPost, "/openApi/swap/v2/trade/leverage", params, true)
	return err
}

func bracketParam(b common.Bracket, fallback common.OrderType) (string, error) {
	typ := b.Type
	if typ == "" {
		typ = fallback
	}
	working := b.WorkingType
	if working == "" {
		working = "MARK_PRICE"
	}
	raw, err := json.Marshal(map[string]any{
		"type":        string(typ),
		"stopPrice":   b.StopPrice,
		"price":       b.StopPrice,
		"workingType": working,
	})
	if err != nil {
		return "", fmt.Errorf("encode bracket: %w", err)
	}
	return string(raw), nil
}

// do sends one request and unwraps the envelope, classifying every failure.
func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, signed bool) (json.RawMessage, error) {
	if c.life.Err() != nil {
		return nil, &common.TransportError{Op: op, Err: ErrClosed}
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &common.TransportError{Op: op, Err: err}
	}

	query := encodeQuery(params)
	if signed {
		if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
			return nil, &common.AuthenticationError{Op: op, Message: "api key/secret required"}
		}
		params.Set("timestamp", strconv.FormatInt(c.now(), 10))
		params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
		query = encodeQuery(params) + "&signature=" + Sign(Canonical(params), c.cfg.APISecret)
	}

	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-BX-APIKEY", c.cfg.APIKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &common.TransportError{Op: op, Err: err}
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &common.TransportError{Op: op, Err: err}
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, &common.AuthenticationError{Op: op, Code: res.StatusCode, Message: string(body)}
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return nil, &common.TransportError{Op: op, Err: fmt.Errorf("status %d: %s", res.StatusCode, string(body))}
	case res.StatusCode >= 300:
		return nil, &common.VenueRejection{Op: op, Code: res.StatusCode, Message: string(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s envelope: %w", op, err)
	}
	if env.Code != 0 {
		if authCodes[env.Code] {
			return nil, &common.AuthenticationError{Op: op, Code: env.Code, Message: env.Msg}
		}
		return nil, &common.VenueRejection{Op: op, Code: env.Code, Message: env.Msg}
	}
	c.log.Debug().Str("op", op).Int("status", res.StatusCode).Msg("bingx request ok")
	return env.Data, nil
}
