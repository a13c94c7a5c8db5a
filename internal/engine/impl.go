package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bingx-trading-bot/internal/balance"
	"bingx-trading-bot/internal/events"
	"bingx-trading-bot/internal/market"
	"bingx-trading-bot/internal/position"
	"bingx-trading-bot/internal/reconciliation"
	"bingx-trading-bot/internal/status"
	"bingx-trading-bot/pkg/db"
)

// Impl implements Service over the running modules.
type Impl struct {
	trader    *Trader
	reporter  *status.Reporter
	pipelines map[string]*Pipeline
	feeds     map[string]*market.Feed
	queries   *db.Queries
	bus       *events.Bus
	reconcile *reconciliation.Service

	meta SystemStatus
}

// Config holds the modules an Impl reads from. Queries, Feeds and Reconcile may be nil.
type Config struct {
	Trader    *Trader
	Reporter  *status.Reporter
	Pipelines map[string]*Pipeline
	Feeds     map[string]*market.Feed
	Queries   *db.Queries
	Bus       *events.Bus
	Reconcile *reconciliation.Service
	Meta      SystemStatus
}

// NewImpl creates the service facade.
func NewImpl(cfg Config) *Impl {
	return &Impl{
		trader:    cfg.Trader,
		reporter:  cfg.Reporter,
		pipelines: cfg.Pipelines,
		feeds:     cfg.Feeds,
		queries:   cfg.Queries,
		bus:       cfg.Bus,
		reconcile: cfg.Reconcile,
		meta:      cfg.Meta,
	}
}

// --- System ---

func (e *Impl) GetSystemStatus(ctx context.Context) SystemStatus {
	out := e.meta
	out.Symbols = append([]string(nil), e.meta.Symbols...)
	out.Status = e.reporter.Snapshot()
	if e.bus != nil {
		out.DroppedMsgs = e.bus.Dropped()
	}
	if e.reconcile != nil {
		out.Drift = e.reconcile.Last().Diffs
	}
	symbols := make([]string, 0, len(e.pipelines))
	for s := range e.pipelines {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		fs := FeedStatus{Symbol: s, State: market.StateDisconnected.String()}
		if f, ok := e.feeds[s]; ok && f != nil {
			fs.State = f.State().String()
		}
		fs.LastPrice, _ = e.pipelines[s].LastPrice()
		out.Feeds = append(out.Feeds, fs)
	}
	return out
}

func (e *Impl) GetBalance(ctx context.Context) balance.Balance {
	return e.trader.Balance.Get()
}

// --- Positions ---

func (e *Impl) GetPositions(ctx context.Context, openOnly bool) []position.Position {
	if openOnly {
		return e.trader.Positions.GetOpenPositions()
	}
	return e.trader.Positions.All()
}

func (e *Impl) GetPosition(ctx context.Context, id uint64) (position.Position, error) {
	p, ok := e.trader.Positions.Get(id)
	if !ok {
		return position.Position{}, fmt.Errorf("%w: %d", position.ErrNotFound, id)
	}
	return p, nil
}

// ClosePosition flattens a position at market, using the last seen price as reference.
func (e *Impl) ClosePosition(ctx context.Context, id uint64) (position.Position, error) {
	p, err := e.GetPosition(ctx, id)
	if err != nil {
		return p, err
	}
	var ref float64
	if pl, ok := e.pipelines[p.Symbol]; ok {
		ref, _ = pl.LastPrice()
	}
	return e.trader.ClosePosition(ctx, id, ref)
}

// --- Risk ---

func (e *Impl) GetRiskMetrics(ctx context.Context) RiskMetrics {
	eq := e.trader.Equity()
	return RiskMetrics{
		State:       e.trader.Risk.Snapshot(),
		Config:      e.trader.Risk.GetConfig(),
		Capital:     e.trader.Balance.Capital(),
		EquityPeak:  eq.Peak,
		EquityCurve: eq.Equity,
	}
}

// ResetEmergencyStop clears the latch and restarts the drawdown curve from current capital.
func (e *Impl) ResetEmergencyStop(ctx context.Context) error {
	e.trader.Risk.ResetEmergencyStop()
	e.trader.ResetEquity()
	e.trader.Risk.UpdateDrawdown(0)
	e.reporter.Update(func(s *status.Snapshot) { s.Message = "emergency stop reset" })
	return nil
}

// --- Strategies ---

func (e *Impl) ListStrategies(ctx context.Context) []StrategyInfo {
	open := make(map[string]int)
	for _, p := range e.trader.Positions.GetOpenPositions() {
		open[p.Strategy]++
	}
	regs := e.trader.Generator.Registrations()
	out := make([]StrategyInfo, 0, len(regs))
	for _, r := range regs {
		out = append(out, StrategyInfo{
			ID:            r.ID,
			Type:          r.Type,
			Symbol:        r.Symbol,
			Timeframe:     r.Timeframe,
			Enabled:       r.Enabled,
			MaxPositions:  r.MaxPositions,
			RiskPct:       r.RiskPct,
			OpenPositions: open[r.ID],
		})
	}
	return out
}

func (e *Impl) SetStrategyEnabled(ctx context.Context, id string, enabled bool) error {
	if !e.trader.Generator.SetEnabled(id, enabled) {
		return fmt.Errorf("%w: %s", ErrStrategyNotFound, id)
	}
	return nil
}

// --- Journal ---

func (e *Impl) GetHistory(ctx context.Context, limit int) (*History, error) {
	if e.queries == nil {
		return nil, ErrNoJournal
	}
	if limit <= 0 {
		limit = 50
	}
	positions, err := e.queries.ListPositions(ctx, limit)
	if err != nil {
		return nil, err
	}
	signals, err := e.queries.ListSignals(ctx, limit)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	pnl, exits, err := e.queries.RealizedPnLSince(ctx, midnight.UnixMilli())
	if err != nil {
		return nil, err
	}
	gates, err := e.queries.CountRiskEvents(ctx)
	if err != nil {
		return nil, err
	}
	return &History{
		Positions:     positions,
		Signals:       signals,
		RealizedToday: pnl,
		ExitsToday:    exits,
		RiskEvents:    gates,
	}, nil
}
