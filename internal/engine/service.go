// Package engine wires the per-symbol candle pipelines to the shared trading core
// and exposes the running bot to the control layer.
package engine

import (
	"context"
	"errors"

	"bingx-trading-bot/internal/balance"
	"bingx-trading-bot/internal/position"
)

var (
	// ErrStrategyNotFound is returned for an unknown strategy id.
	ErrStrategyNotFound = errors.New("strategy not found")
	// ErrNoJournal is returned by history queries when no journal database is configured.
	ErrNoJournal = errors.New("journal not configured")
)

// Service is everything the API layer may do with the engine.
type Service interface {
	// System
	GetSystemStatus(ctx context.Context) SystemStatus
	GetBalance(ctx context.Context) balance.Balance

	// Positions
	GetPositions(ctx context.Context, openOnly bool) []position.Position
	GetPosition(ctx context.Context, id uint64) (position.Position, error)
	ClosePosition(ctx context.Context, id uint64) (position.Position, error)

	// Risk
	GetRiskMetrics(ctx context.Context) RiskMetrics
	ResetEmergencyStop(ctx context.Context) error

	// Strategies
	ListStrategies(ctx context.Context) []StrategyInfo
	SetStrategyEnabled(ctx context.Context, id string, enabled bool) error

	// Journal
	GetHistory(ctx context.Context, limit int) (*History, error)
}
