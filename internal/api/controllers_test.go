package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/balance"
	"bingx-trading-bot/internal/engine"
	"bingx-trading-bot/internal/events"
	"bingx-trading-bot/internal/position"
)

const testSecret = "test-secret"

type fakeEngine struct {
	positions map[uint64]position.Position
	enabled   map[string]bool
	resets    int
	history   *engine.History
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		positions: map[uint64]position.Position{
			1: {ID: 1, Symbol: "BTC-USDT", Status: position.StatusOpen, Quantity: 0.5, Remaining: 0.5},
			2: {ID: 2, Symbol: "ETH-USDT", Status: position.StatusClosed},
		},
		enabled: map[string]bool{"rsi-swing": true},
	}
}

func (f *fakeEngine) GetSystemStatus(context.Context) engine.SystemStatus {
	return engine.SystemStatus{BotID: "bot-1", Mode: "DRY_RUN", DryRun: true}
}

func (f *fakeEngine) GetBalance(context.Context) balance.Balance {
	return balance.Balance{Total: 10000, Available: 10000, Paper: true}
}

func (f *fakeEngine) GetPositions(_ context.Context, openOnly bool) []position.Position {
	out := make([]position.Position, 0, len(f.positions))
	for _, p := range f.positions {
		if openOnly && p.Status != position.StatusOpen {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (f *fakeEngine) GetPosition(_ context.Context, id uint64) (position.Position, error) {
	p, ok := f.positions[id]
	if !ok {
		return position.Position{}, fmt.Errorf("%w: %d", position.ErrNotFound, id)
	}
	return p, nil
}

func (f *fakeEngine) ClosePosition(ctx context.Context, id uint64) (position.Position, error) {
	p, err := f.GetPosition(ctx, id)
	if err != nil {
		return p, err
	}
	if p.Status != position.StatusOpen {
		return p, fmt.Errorf("%w: %d is %s", position.ErrInvalidTransition, id, p.Status)
	}
	p.Status = position.StatusClosed
	p.Remaining = 0
	f.positions[id] = p
	return p, nil
}

func (f *fakeEngine) GetRiskMetrics(context.Context) engine.RiskMetrics {
	return engine.RiskMetrics{Capital: 10000}
}

func (f *fakeEngine) ResetEmergencyStop(context.Context) error {
	f.resets++
	return nil
}

func (f *fakeEngine) ListStrategies(context.Context) []engine.StrategyInfo {
	out := make([]engine.StrategyInfo, 0, len(f.enabled))
	for id, on := range f.enabled {
		out = append(out, engine.StrategyInfo{ID: id, Enabled: on})
	}
	return out
}

func (f *fakeEngine) SetStrategyEnabled(_ context.Context, id string, enabled bool) error {
	if _, ok := f.enabled[id]; !ok {
		return engine.ErrStrategyNotFound
	}
	f.enabled[id] = enabled
	return nil
}

func (f *fakeEngine) GetHistory(_ context.Context, limit int) (*engine.History, error) {
	if f.history == nil {
		return nil, engine.ErrNoJournal
	}
	return f.history, nil
}

func newTestAPIServer(t *testing.T, secret string) (*httptest.Server, *fakeEngine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng := newFakeEngine()
	server := NewServer(eng, events.NewBus(), nil, secret, zerolog.Nop())
	ts := httptest.NewServer(server.Router)
	t.Cleanup(ts.Close)
	return ts, eng
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, err := GenerateToken("alice", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func TestReadEndpoints(t *testing.T) {
	ts, _ := newTestAPIServer(t, testSecret)
	client := ts.Client()

	var st engine.SystemStatus
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/status", "", nil, &st); status != http.StatusOK {
		t.Fatalf("status endpoint returned %d", status)
	}
	if st.BotID != "bot-1" || !st.DryRun {
		t.Fatalf("unexpected status %+v", st)
	}

	var positions struct {
		Positions []position.Position `json:"positions"`
	}
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/positions?open=true", "", nil, &positions); status != http.StatusOK {
		t.Fatalf("positions endpoint returned %d", status)
	}
	if len(positions.Positions) != 1 || positions.Positions[0].ID != 1 {
		t.Fatalf("expected only the open position, got %+v", positions.Positions)
	}

	var bal balance.Balance
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/balance", "", nil, &bal); status != http.StatusOK || bal.Total != 10000 {
		t.Fatalf("balance endpoint returned %d %+v", status, bal)
	}
}

func TestGetPositionErrors(t *testing.T) {
	ts, _ := newTestAPIServer(t, testSecret)
	client := ts.Client()

	var resp errorBody
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/positions/99", "", nil, &resp); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if resp.Code != "POSITION_NOT_FOUND" {
		t.Fatalf("expected POSITION_NOT_FOUND, got %s", resp.Code)
	}

	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/positions/abc", "", nil, &resp); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestClosePositionRequiresToken(t *testing.T) {
	ts, eng := newTestAPIServer(t, testSecret)
	client := ts.Client()

	var resp errorBody
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/positions/1/close", "", nil, &resp)
	if status != http.StatusUnauthorized || resp.Code != "MISSING_TOKEN" {
		t.Fatalf("expected 401 MISSING_TOKEN, got %d %s", status, resp.Code)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/positions/1/close", "garbage", nil, &resp)
	if status != http.StatusUnauthorized || resp.Code != "INVALID_TOKEN" {
		t.Fatalf("expected 401 INVALID_TOKEN, got %d %s", status, resp.Code)
	}
	if eng.positions[1].Status != position.StatusOpen {
		t.Fatalf("position must stay open without a valid token")
	}

	var closed position.Position
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/positions/1/close", operatorToken(t), nil, &closed)
	if status != http.StatusOK {
		t.Fatalf("close returned %d", status)
	}
	if closed.Status != position.StatusClosed {
		t.Fatalf("expected CLOSED, got %s", closed.Status)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/positions/1/close", operatorToken(t), nil, &resp)
	if status != http.StatusConflict {
		t.Fatalf("closing twice should conflict, got %d", status)
	}
}

func TestOperatorActionsDisabledWithoutSecret(t *testing.T) {
	ts, eng := newTestAPIServer(t, "")
	client := ts.Client()

	var resp errorBody
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/risk/reset", "anything", nil, &resp)
	if status != http.StatusServiceUnavailable || resp.Code != "AUTH_DISABLED" {
		t.Fatalf("expected 503 AUTH_DISABLED, got %d %s", status, resp.Code)
	}
	if eng.resets != 0 {
		t.Fatalf("reset must not run")
	}
}

func TestResetEmergencyStop(t *testing.T) {
	ts, eng := newTestAPIServer(t, testSecret)

	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/api/risk/reset", operatorToken(t), nil, nil)
	if status != http.StatusOK {
		t.Fatalf("reset returned %d", status)
	}
	if eng.resets != 1 {
		t.Fatalf("expected one reset, got %d", eng.resets)
	}
}

func TestToggleStrategy(t *testing.T) {
	ts, eng := newTestAPIServer(t, testSecret)
	client := ts.Client()
	token := operatorToken(t)

	if status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/strategies/rsi-swing/disable", token, nil, nil); status != http.StatusOK {
		t.Fatalf("disable returned %d", status)
	}
	if eng.enabled["rsi-swing"] {
		t.Fatalf("strategy should be disabled")
	}

	var resp errorBody
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/strategies/nope/enable", token, nil, &resp)
	if status != http.StatusNotFound || resp.Code != "STRATEGY_NOT_FOUND" {
		t.Fatalf("expected 404 STRATEGY_NOT_FOUND, got %d %s", status, resp.Code)
	}
}

func TestHistoryWithoutJournal(t *testing.T) {
	ts, eng := newTestAPIServer(t, testSecret)
	client := ts.Client()

	var resp errorBody
	status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/history", "", nil, &resp)
	if status != http.StatusServiceUnavailable || resp.Code != "JOURNAL_DISABLED" {
		t.Fatalf("expected 503 JOURNAL_DISABLED, got %d %s", status, resp.Code)
	}

	eng.history = &engine.History{RealizedToday: 42}
	var h engine.History
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/history?limit=5000", "", nil, &h); status != http.StatusOK {
		t.Fatalf("history returned %d", status)
	}
	if h.RealizedToday != 42 {
		t.Fatalf("unexpected history %+v", h)
	}
}

func TestHistoryQueryNormalize(t *testing.T) {
	q := historyQuery{Limit: 0}
	q.normalize()
	if q.Limit != 50 {
		t.Fatalf("default limit = %d", q.Limit)
	}
	q.Limit = 5000
	q.normalize()
	if q.Limit != 500 {
		t.Fatalf("capped limit = %d", q.Limit)
	}
}
