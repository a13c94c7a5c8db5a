package strategy

import (
	"sync"

	"github.com/rs/zerolog"
)

// Generator runs registered strategies and forwards at most one signal per symbol per cycle.
type Generator struct {
	mu   sync.RWMutex
	regs []Registration
	log  zerolog.Logger
}

func NewGenerator(log zerolog.Logger, regs ...Registration) *Generator {
	return &Generator{
		regs: append([]Registration(nil), regs...),
		log:  log.With().Str("component", "signals").Logger(),
	}
}

// Register adds a strategy after construction.
func (g *Generator) Register(r Registration) {
	g.mu.Lock()
	g.regs = append(g.regs, r)
	g.mu.Unlock()
}

// Registrations returns a copy of every registration.
func (g *Generator) Registrations() []Registration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Registration(nil), g.regs...)
}

// Lookup finds a registration by id.
func (g *Generator) Lookup(id string) (Registration, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, r := range g.regs {
		if r.ID == id {
			return r, true
		}
	}
	return Registration{}, false
}

// SetEnabled toggles a strategy. It returns false for unknown ids.
func (g *Generator) SetEnabled(id string, enabled bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.regs {
		if g.regs[i].ID == id {
			g.regs[i].Enabled = enabled
			return true
		}
	}
	return false
}

// Generate collects signals from every enabled strategy matching symbol whose timeframe is fresh.
// The highest confidence wins; the first one seen wins ties. candidates holds every valid signal.
func (g *Generator) Generate(symbol string, w Windows) (best *Signal, candidates []Signal) {
	g.mu.RLock()
	regs := append([]Registration(nil), g.regs...)
	g.mu.RUnlock()

	for _, r := range regs {
		if !r.Enabled || !r.Matches(symbol) || !w.IsFresh(r.Timeframe) {
			continue
		}
		sig, err := r.Strategy.Analyze(symbol, w)
		if err != nil {
			g.log.Warn().Err(err).Str("strategy", r.ID).Str("symbol", symbol).Msg("strategy failed")
			continue
		}
		if sig == nil {
			continue
		}
		out := *sig
		out.Strategy = r.ID
		if out.Symbol == "" {
			out.Symbol = symbol
		}
		if out.Timeframe == "" {
			out.Timeframe = r.Timeframe
		}
		if out.Symbol != symbol {
			g.log.Warn().Str("strategy", r.ID).Str("symbol", out.Symbol).Msg("signal for foreign symbol dropped")
			continue
		}
		if err := out.Validate(); err != nil {
			g.log.Warn().Err(err).Str("strategy", r.ID).Msg("signal dropped")
			continue
		}
		candidates = append(candidates, out)
	}

	for i := range candidates {
		if best == nil || candidates[i].Confidence > best.Confidence {
			c := candidates[i]
			best = &c
		}
	}
	if len(candidates) > 1 {
		g.log.Info().Str("symbol", symbol).Int("candidates", len(candidates)).
			Str("winner", best.Strategy).Float64("confidence", best.Confidence).Msg("signal conflict resolved")
	}
	return best, candidates
}
