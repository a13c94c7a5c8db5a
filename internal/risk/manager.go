package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/strategy"
)

// Manager gates trades on balance, drawdown and loss streaks.
// Each method is a short critical section; none performs I/O.
type Manager struct {
	config RiskConfig
	state  State
	now    func() time.Time
	log    zerolog.Logger
	mu     sync.RWMutex
}

// NewInMemory creates a manager with fresh state.
func NewInMemory(cfg RiskConfig, log zerolog.Logger) *Manager {
	return &Manager{
		config: cfg,
		now:    time.Now,
		log:    log.With().Str("component", "risk").Logger(),
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// GetConfig returns a copy of the config.
func (m *Manager) GetConfig() RiskConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Snapshot returns a copy of the state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ValidateTrade runs the gates in order and stops at the first failure.
func (m *Manager) ValidateTrade(sig strategy.Signal, capital float64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := m.config
	st := &m.state

	if st.EmergencyStop {
		return m.reject(sig, GateEmergencyStop, "emergency stop latched: %s", st.EmergencyReason)
	}
	if capital < cfg.MinBalance {
		return m.reject(sig, GateMinBalance, "capital %.2f below minimum balance %.2f", capital, cfg.MinBalance)
	}
	if cfg.MaxDrawdownPct > 0 && st.DrawdownPct >= cfg.MaxDrawdownPct {
		st.EmergencyStop = true
		st.EmergencyReason = fmt.Sprintf("drawdown %.2f%% reached maximum %.2f%%", st.DrawdownPct, cfg.MaxDrawdownPct)
		m.log.Error().Float64("drawdown_pct", st.DrawdownPct).Msg("emergency stop latched")
		return m.reject(sig, GateDrawdown, "%s", st.EmergencyReason)
	}
	if cfg.MaxConsecutiveLosses > 0 && st.ConsecutiveLosses >= cfg.MaxConsecutiveLosses {
		return m.reject(sig, GateConsecutiveLosses, "consecutive losses %d reached maximum %d",
			st.ConsecutiveLosses, cfg.MaxConsecutiveLosses)
	}
	if !st.LastLossAt.IsZero() && cfg.Cooldown > 0 {
		if since := m.now().Sub(st.LastLossAt); since < cfg.Cooldown {
			return m.reject(sig, GateCooldown, "cooldown: %s since last loss, need %s",
				since.Truncate(time.Second), cfg.Cooldown)
		}
	}
	return Decision{Allowed: true}
}

func (m *Manager) reject(sig strategy.Signal, gate Gate, format string, args ...any) Decision {
	reason := fmt.Sprintf(format, args...)
	m.log.Info().Str("symbol", sig.Symbol).Str("strategy", sig.Strategy).Str("gate", string(gate)).
		Msg("trade rejected: " + reason)
	return Decision{Gate: gate, Reason: reason}
}

// RecordTradeOutcome counts losses; any non-negative profit resets the streak.
func (m *Manager) RecordTradeOutcome(profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if profit < 0 {
		m.state.ConsecutiveLosses++
		m.state.LastLossAt = m.now()
		m.log.Warn().Float64("profit", profit).Int("streak", m.state.ConsecutiveLosses).Msg("loss recorded")
		return
	}
	m.state.ConsecutiveLosses = 0
}

// UpdateDrawdown overwrites the tracked drawdown percentage.
func (m *Manager) UpdateDrawdown(pct float64) {
	m.mu.Lock()
	m.state.DrawdownPct = pct
	m.mu.Unlock()
}

// ResetEmergencyStop clears the latch. It is the only way out besides a restart.
func (m *Manager) ResetEmergencyStop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.EmergencyStop {
		m.log.Warn().Str("reason", m.state.EmergencyReason).Msg("emergency stop reset by operator")
	}
	m.state.EmergencyStop = false
	m.state.EmergencyReason = ""
}
