package risk

import "time"

// RiskConfig defines the trade gates.
type RiskConfig struct {
	MinBalance           float64       `json:"min_balance"`
	MaxDrawdownPct       float64       `json:"max_drawdown_pct"`
	MaxConsecutiveLosses int           `json:"max_consecutive_losses"`
	Cooldown             time.Duration `json:"cooldown"`
	DefaultRiskPct       float64       `json:"default_risk_pct"` // % of capital risked per trade
	MaxPositionNotional  float64       `json:"max_position_notional"`
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() RiskConfig {
	return RiskConfig{
		MinBalance:           50,
		MaxDrawdownPct:       20,
		MaxConsecutiveLosses: 3,
		Cooldown:             30 * time.Minute,
		DefaultRiskPct:       1,
	}
}

// Gate names the check that rejected a trade.
type Gate string

const (
	GateEmergencyStop     Gate = "emergency_stop"
	GateMinBalance        Gate = "min_balance"
	GateDrawdown          Gate = "max_drawdown"
	GateConsecutiveLosses Gate = "consecutive_losses"
	GateCooldown          Gate = "cooldown"
)

// Decision is the outcome of ValidateTrade. A rejection is normal control flow.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Gate    Gate   `json:"gate,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// State is the process-wide risk state. It lives only in memory.
type State struct {
	ConsecutiveLosses int       `json:"consecutive_losses"`
	LastLossAt        time.Time `json:"last_loss_at"`
	DrawdownPct       float64   `json:"drawdown_pct"`
	EmergencyStop     bool      `json:"emergency_stop"`
	EmergencyReason   string    `json:"emergency_reason,omitempty"`
}
