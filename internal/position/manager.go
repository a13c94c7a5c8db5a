package position

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/strategy"
)

// qtyEpsilon absorbs float noise when partial exits sum to the full size.
const qtyEpsilon = 1e-9

// DefaultMaxClosed is how many CLOSED positions a Manager keeps in memory.
const DefaultMaxClosed = 500

// Manager tracks position lifecycles and per-strategy caps.
type Manager struct {
	mu         sync.RWMutex
	positions  map[uint64]*Position
	nextID     uint64
	caps       map[string]int
	defaultCap int
	closed     []uint64 // CLOSED ids, oldest first
	now        func() time.Time
	log        zerolog.Logger

	// MaxClosed bounds the CLOSED positions kept after their last change was
	// published. Older ones are evicted; the journal holds the history.
	MaxClosed int

	// OnChange is called after every transition, outside the lock.
	OnChange func(Change)
}

// NewManager creates a manager. defaultCap applies to strategies without an explicit cap.
func NewManager(defaultCap int, log zerolog.Logger) *Manager {
	if defaultCap <= 0 {
		defaultCap = 1
	}
	return &Manager{
		positions:  make(map[uint64]*Position),
		caps:       make(map[string]int),
		defaultCap: defaultCap,
		MaxClosed:  DefaultMaxClosed,
		now:        time.Now,
		log:        log.With().Str("component", "positions").Logger(),
	}
}

// SetCap sets the OPEN-position cap for one strategy.
func (m *Manager) SetCap(strategyID string, limit int) {
	m.mu.Lock()
	m.caps[strategyID] = limit
	m.mu.Unlock()
}

func (m *Manager) capFor(strategyID string) int {
	if c, ok := m.caps[strategyID]; ok && c > 0 {
		return c
	}
	return m.defaultCap
}

// CanOpenPosition reports whether strategyID is below its OPEN cap.
func (m *Manager) CanOpenPosition(strategyID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	open := 0
	for _, p := range m.positions {
		if p.Strategy == strategyID && p.Status == StatusOpen {
			open++
		}
	}
	return open < m.capFor(strategyID)
}

// CanAdmit is CanOpenPosition counting entries still in flight and exits not yet
// confirmed, so concurrent pipelines cannot overshoot the cap while orders are out.
func (m *Manager) CanAdmit(strategyID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	live := 0
	for _, p := range m.positions {
		if p.Strategy == strategyID && p.Status != StatusClosed {
			live++
		}
	}
	return live < m.capFor(strategyID)
}

// HasPending reports an entry order still in flight for strategyID on symbol.
func (m *Manager) HasPending(strategyID, symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.positions {
		if p.Strategy == strategyID && p.Symbol == symbol && p.Status == StatusPending {
			return true
		}
	}
	return false
}

// OpenPosition allocates a PENDING position for an approved signal.
func (m *Manager) OpenPosition(sig strategy.Signal, qty float64) (Position, error) {
	if qty <= 0 {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidQuantity, qty)
	}
	m.mu.Lock()
	m.nextID++
	p := &Position{
		ID:          m.nextID,
		Strategy:    sig.Strategy,
		Symbol:      sig.Symbol,
		Side:        sig.Direction,
		EntryPrice:  sig.Entry,
		SignalEntry: sig.Entry,
		Quantity:    qty,
		Remaining:   qty,
		StopLoss:    sig.StopLoss,
		InitialStop: sig.StopLoss,
		TakeProfit:  sig.TakeProfit,
		Status:      StatusPending,
	}
	m.positions[p.ID] = p
	out := p.clone()
	m.mu.Unlock()

	m.log.Info().Uint64("id", out.ID).Str("strategy", out.Strategy).Str("symbol", out.Symbol).
		Str("side", string(out.Side)).Float64("qty", qty).Msg("position pending")
	m.notify(Change{Position: out})
	return out, nil
}

// Get returns a copy of one position.
func (m *Manager) Get(id uint64) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[id]
	if !ok {
		return Position{}, false
	}
	return p.clone(), true
}

// GetOpenPositions returns all OPEN positions by ascending id.
func (m *Manager) GetOpenPositions() []Position {
	return m.list(func(p *Position) bool { return p.Status == StatusOpen })
}

// All returns every tracked position by ascending id.
func (m *Manager) All() []Position {
	return m.list(func(*Position) bool { return true })
}

func (m *Manager) list(keep func(*Position) bool) []Position {
	m.mu.RLock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		if keep(p) {
			out = append(out, p.clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkOpen confirms the entry fill.
func (m *Manager) MarkOpen(id uint64, fillPrice float64, orderID string) (Position, error) {
	return m.MarkFilled(id, fillPrice, 0, orderID)
}

// MarkFilled is MarkOpen for an entry that executed qty. A qty below the requested
// size shrinks the position to what the venue filled; zero means fully filled.
func (m *Manager) MarkFilled(id uint64, fillPrice, qty float64, orderID string) (Position, error) {
	if qty < 0 {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidQuantity, qty)
	}
	return m.transition(id, StatusPending, StatusOpen, func(p *Position) *PartialExit {
		if fillPrice > 0 {
			p.EntryPrice = fillPrice
		}
		if qty > 0 && qty < p.Quantity-qtyEpsilon {
			p.Quantity = qty
			p.Remaining = qty
		}
		p.ExchangeOrderID = orderID
		p.OpenedAt = m.now()
		return nil
	})
}

// MarkClosing records that an exit was submitted.
func (m *Manager) MarkClosing(id uint64) (Position, error) {
	return m.transition(id, StatusOpen, StatusClosing, nil)
}

// Reopen returns a CLOSING position to OPEN for whatever its exit order left unexecuted.
func (m *Manager) Reopen(id uint64) (Position, error) {
	return m.transition(id, StatusClosing, StatusOpen, nil)
}

// MarkClosed confirms the exit of the remaining quantity at price.
func (m *Manager) MarkClosed(id uint64, price float64) (Position, error) {
	return m.transition(id, StatusClosing, StatusClosed, func(p *Position) *PartialExit {
		p.ClosedAt = m.now()
		if p.Remaining <= 0 {
			return nil
		}
		exit := PartialExit{Qty: p.Remaining, Price: price, PnL: p.PnL(p.Remaining, price), At: p.ClosedAt}
		p.RealizedPnL += exit.PnL
		p.Exits = append(p.Exits, exit)
		p.Remaining = 0
		return &exit
	})
}

// Cancel closes a PENDING position whose entry never filled.
func (m *Manager) Cancel(id uint64) (Position, error) {
	return m.transition(id, StatusPending, StatusClosed, func(p *Position) *PartialExit {
		p.Remaining = 0
		p.ClosedAt = m.now()
		return nil
	})
}

// UpdateStopLoss moves the stop of a live position.
func (m *Manager) UpdateStopLoss(id uint64, stop float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if p.Status != StatusOpen && p.Status != StatusClosing {
		return fmt.Errorf("%w: update stop on %s position %d", ErrInvalidTransition, p.Status, id)
	}
	p.StopLoss = stop
	return nil
}

// PartialExit reduces the remaining quantity. The status is unchanged until nothing remains,
// then the position is CLOSED.
func (m *Manager) PartialExit(id uint64, qty, price float64) (Position, error) {
	if qty <= 0 {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidQuantity, qty)
	}
	m.mu.Lock()
	p, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return Position{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if p.Status != StatusOpen && p.Status != StatusClosing {
		m.mu.Unlock()
		return Position{}, fmt.Errorf("%w: partial exit on %s position %d", ErrInvalidTransition, p.Status, id)
	}
	if qty > p.Remaining+qtyEpsilon {
		m.mu.Unlock()
		return Position{}, fmt.Errorf("%w: exit %v exceeds remaining %v", ErrInvalidQuantity, qty, p.Remaining)
	}
	from := p.Status
	exit := PartialExit{Qty: qty, Price: price, PnL: p.PnL(qty, price), At: m.now()}
	p.Exits = append(p.Exits, exit)
	p.RealizedPnL += exit.PnL
	p.Remaining -= qty
	if p.Remaining <= qtyEpsilon {
		p.Remaining = 0
		p.Status = StatusClosed
		p.ClosedAt = exit.At
		m.closed = append(m.closed, id)
	}
	out := p.clone()
	m.mu.Unlock()

	m.log.Info().Uint64("id", id).Float64("qty", qty).Float64("price", price).
		Float64("remaining", out.Remaining).Str("status", string(out.Status)).Msg("partial exit")
	m.notify(Change{Position: out, From: from, Exit: &exit})
	m.prune()
	return out, nil
}

// transition moves id from one status to the next. apply may return the exit it booked.
func (m *Manager) transition(id uint64, from, to Status, apply func(*Position) *PartialExit) (Position, error) {
	m.mu.Lock()
	p, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return Position{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if p.Status != from {
		m.mu.Unlock()
		return Position{}, fmt.Errorf("%w: %d is %s, want %s -> %s", ErrInvalidTransition, id, p.Status, from, to)
	}
	var exit *PartialExit
	if apply != nil {
		exit = apply(p)
	}
	p.Status = to
	if to == StatusClosed {
		m.closed = append(m.closed, id)
	}
	out := p.clone()
	m.mu.Unlock()

	m.log.Info().Uint64("id", id).Str("from", string(from)).Str("to", string(to)).Msg("position transition")
	m.notify(Change{Position: out, From: from, Exit: exit})
	m.prune()
	return out, nil
}

// prune evicts the oldest CLOSED positions beyond MaxClosed. It runs after notify so
// every subscriber has seen the final state.
func (m *Manager) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MaxClosed <= 0 || len(m.closed) <= m.MaxClosed {
		return
	}
	n := len(m.closed) - m.MaxClosed
	for _, id := range m.closed[:n] {
		delete(m.positions, id)
	}
	m.closed = append(m.closed[:0:0], m.closed[n:]...)
}

func (m *Manager) notify(c Change) {
	if m.OnChange != nil {
		m.OnChange(c)
	}
}
