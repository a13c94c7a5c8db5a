package balance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bingx-trading-bot/pkg/exchanges/common"
)

// Source reads the venue balance.
type Source interface {
	GetBalance(ctx context.Context) (common.Balance, error)
}

// Balance is the cached account view.
type Balance struct {
	Total     float64   `json:"total"`
	Equity    float64   `json:"equity"`
	Available float64   `json:"available"`
	Paper     bool      `json:"paper"`
	LastSync  time.Time `json:"last_sync"`
}

// Manager caches the account balance. With a nil source it keeps a paper balance
// that only moves through ApplyPnL.
type Manager struct {
	source       Source
	syncInterval time.Duration
	log          zerolog.Logger

	mu  sync.RWMutex
	bal Balance
}

// NewManager creates a balance manager.
func NewManager(source Source, syncInterval time.Duration, log zerolog.Logger) *Manager {
	if syncInterval <= 0 {
		syncInterval = time.Minute
	}
	return &Manager{
		source:       source,
		syncInterval: syncInterval,
		log:          log.With().Str("component", "balance").Logger(),
		bal:          Balance{Paper: source == nil},
	}
}

// Start syncs once and then periodically until ctx is done. The first sync error is returned.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Sync(ctx); err != nil {
		return err
	}
	if m.source == nil {
		return nil
	}
	go func() {
		ticker := time.NewTicker(m.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.Sync(ctx); err != nil {
					m.log.Warn().Err(err).Msg("balance sync failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Sync fetches the latest balance from the venue.
func (m *Manager) Sync(ctx context.Context) error {
	if m.source == nil {
		return nil
	}
	b, err := m.source.GetBalance(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.bal = Balance{
		Total:     b.Balance,
		Equity:    b.Equity,
		Available: b.AvailableMargin,
		LastSync:  time.Now(),
	}
	m.mu.Unlock()
	m.log.Debug().Float64("total", b.Balance).Float64("equity", b.Equity).
		Float64("available", b.AvailableMargin).Msg("balance synced")
	return nil
}

// SetInitialBalance seeds the paper balance.
func (m *Manager) SetInitialBalance(amount float64) {
	m.mu.Lock()
	m.bal.Total = amount
	m.bal.Equity = amount
	m.bal.Available = amount
	m.bal.LastSync = time.Now()
	m.mu.Unlock()
	m.log.Info().Float64("amount", amount).Msg("paper balance set")
}

// ApplyPnL books realized pnl on the paper balance. Live balances follow the venue instead.
func (m *Manager) ApplyPnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bal.Paper {
		return
	}
	m.bal.Total += pnl
	m.bal.Equity += pnl
	m.bal.Available += pnl
}

// Capital is the amount risk checks and sizing use: equity when known, else total.
func (m *Manager) Capital() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bal.Equity > 0 {
		return m.bal.Equity
	}
	return m.bal.Total
}

// Available returns the free margin.
func (m *Manager) Available() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bal.Available
}

// Get returns the cached balance.
func (m *Manager) Get() Balance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bal
}
