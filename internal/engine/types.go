package engine

import (
	"bingx-trading-bot/internal/reconciliation"
	"bingx-trading-bot/internal/risk"
	"bingx-trading-bot/internal/status"
	"bingx-trading-bot/pkg/db"
)

// StrategyInfo describes one registered strategy.
type StrategyInfo struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Symbol        string  `json:"symbol,omitempty"`
	Timeframe     string  `json:"timeframe"`
	Enabled       bool    `json:"enabled"`
	MaxPositions  int     `json:"max_positions"`
	RiskPct       float64 `json:"risk_pct"`
	OpenPositions int     `json:"open_positions"`
}

// RiskMetrics is the live risk state plus the gates it is checked against.
type RiskMetrics struct {
	State       risk.State      `json:"state"`
	Config      risk.RiskConfig `json:"config"`
	Capital     float64         `json:"capital"`
	EquityPeak  float64         `json:"equity_peak"`
	EquityCurve float64         `json:"equity"`
}

// FeedStatus is the connection state of one symbol's market stream.
type FeedStatus struct {
	Symbol    string  `json:"symbol"`
	State     string  `json:"state"`
	LastPrice float64 `json:"last_price"`
}

// SystemStatus describes the running bot.
type SystemStatus struct {
	BotID       string          `json:"bot_id"`
	RunID       string          `json:"run_id"`
	Mode        string          `json:"mode"` // DRY_RUN or LIVE
	DryRun      bool            `json:"dry_run"`
	Testnet     bool            `json:"testnet"`
	Symbols     []string        `json:"symbols"`
	Version     string          `json:"version"`
	Feeds       []FeedStatus    `json:"feeds"`
	Status      status.Snapshot `json:"status"`
	DroppedMsgs uint64          `json:"dropped_events"`

	Drift []reconciliation.Diff `json:"position_drift,omitempty"`
}

// History is what the journal database holds about recent activity.
type History struct {
	Positions     []db.Position  `json:"positions"`
	Signals       []db.Signal    `json:"signals"`
	RealizedToday float64        `json:"realized_today"`
	ExitsToday    int            `json:"exits_today"`
	RiskEvents    map[string]int `json:"risk_events"`
}
