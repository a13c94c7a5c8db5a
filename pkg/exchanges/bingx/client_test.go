package bingx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingx-trading-bot/pkg/exchanges/common"
)

const testSecret = "test-secret"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{
		APIKey:            "test-key",
		APISecret:         testSecret,
		BaseURL:           srv.URL,
		RequestTimeout:    time.Second,
		RequestsPerSecond: 1000,
	}, zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// verifySignature recomputes the signature the way the venue does.
func verifySignature(t *testing.T, r *http.Request) {
	t.Helper()
	q := r.URL.Query()
	sig := q.Get("signature")
	q.Del("signature")
	require.NotEmpty(t, q.Get("timestamp"), "timestamp must be attached")
	assert.Equal(t, Sign(Canonical(q), testSecret), sig)
	assert.Equal(t, "test-key", r.Header.Get("X-BX-APIKEY"))
}

func TestGetBalance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openApi/swap/v2/user/balance", r.URL.Path)
		verifySignature(t, r)
		fmt.Fprint(w, `{"code":0,"msg":"","data":{"balance":{"asset":"USDT","balance":"1000.5","equity":"1010.25","unrealizedProfit":"9.75","availableMargin":"800","usedMargin":"200.5"}}}`)
	})

	bal, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "USDT", bal.Asset)
	assert.InDelta(t, 1000.5, bal.Balance, 1e-9)
	assert.InDelta(t, 1010.25, bal.Equity, 1e-9)
	assert.InDelta(t, 800, bal.AvailableMargin, 1e-9)
}

func TestGetCandlesSortsAndClamps(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openApi/swap/v3/quote/klines", r.URL.Path)
		assert.Equal(t, "1440", r.URL.Query().Get("limit"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Empty(t, r.URL.Query().Get("signature"))
		fmt.Fprint(w, `{"code":0,"data":[
			{"open":"2","close":"3","high":"3.5","low":"1.5","volume":"10","time":1700000060000},
			{"open":"1","close":"2","high":"2.5","low":"0.5","volume":"5","time":1700000000000}]}`)
	})

	klines, err := c.GetCandles(context.Background(), CandleQuery{Symbol: "BTC-USDT", Interval: "1m", Limit: 5000})
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, int64(1700000000000), klines[0].OpenTime)
	assert.Equal(t, int64(1700000060000), klines[1].OpenTime)
	assert.InDelta(t, 3.5, klines[1].High, 1e-9)
}

func TestSubmitOrderWithBracket(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		verifySignature(t, r)
		q := r.URL.Query()
		assert.Equal(t, "SELL", q.Get("side"))
		assert.Equal(t, "SHORT", q.Get("positionSide"))
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Contains(t, q.Get("stopLoss"), `"type":"STOP_MARKET"`)
		assert.Contains(t, q.Get("takeProfit"), `"type":"TAKE_PROFIT_MARKET"`)
		fmt.Fprint(w, `{"code":0,"data":{"order":{"symbol":"BTC-USDT","orderId":1735950529123455000,"side":"SELL","positionSide":"SHORT","type":"MARKET","clientOrderID":"cid-1"}}}`)
	})

	res, err := c.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol:       "BTC-USDT",
		Side:         common.SideSell,
		PositionSide: common.PositionShort,
		Type:         common.OrderTypeMarket,
		Qty:          0.5,
		ClientID:     "cid-1",
		StopLoss:     &common.Bracket{StopPrice: 120},
		TakeProfit:   &common.Bracket{StopPrice: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, "1735950529123455000", res.ExchangeOrderID)
	assert.Equal(t, "cid-1", res.ClientID)
	assert.InDelta(t, 0.5, res.Qty, 1e-9)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"bad signature code", 200, `{"code":100001,"msg":"Signature verification failed"}`, common.IsAuthentication},
		{"unauthorized status", 401, `nope`, common.IsAuthentication},
		{"business rejection", 200, `{"code":101204,"msg":"Insufficient margin"}`, common.IsRejection},
		{"server error", 502, `bad gateway`, common.IsTransient},
		{"rate limited", 429, `slow down`, common.IsTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.GetPositions(context.Background(), "BTC-USDT")
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected classification: %v", err)
		})
	}
}

func TestMissingCredentialsIsAuthentication(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, zerolog.Nop())
	defer c.Close()
	_, err := c.GetBalance(context.Background())
	var ae *common.AuthenticationError
	require.True(t, errors.As(err, &ae))
}

func TestTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.cfg.RequestTimeout = 50 * time.Millisecond

	_, err := c.GetTicker(context.Background(), "BTC-USDT")
	require.Error(t, err)
	assert.True(t, common.IsTransient(err))
}

func TestCloseAbortsInFlightAndLaterCalls(t *testing.T) {
	started := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetTicker(context.Background(), "BTC-USDT")
		errCh <- err
	}()
	<-started
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		assert.True(t, common.IsTransient(err))
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call not aborted by Close")
	}

	_, err := c.GetTicker(context.Background(), "BTC-USDT")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, c.Close())
}

func TestWithClosesClient(t *testing.T) {
	var captured *Client
	err := With(context.Background(), Config{BaseURL: "http://127.0.0.1:1"}, zerolog.Nop(), func(ctx context.Context, c *Client) error {
		captured = c
		return nil
	})
	require.NoError(t, err)
	_, err = captured.GetTicker(context.Background(), "BTC-USDT")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSyncTimeAppliesOffset(t *testing.T) {
	server := time.Now().Add(5 * time.Second).UnixMilli()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"code":0,"data":{"serverTime":%d}}`, server)
	})
	require.NoError(t, c.SyncTime(context.Background()))
	assert.InDelta(t, 5000, c.TimeSync().Offset(), 500)
}
