// Package reconciliation compares the positions the bot tracks with what the venue reports.
package reconciliation

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/events"
	"bingx-trading-bot/internal/position"
	"bingx-trading-bot/internal/strategy"
	"bingx-trading-bot/pkg/exchanges/common"
)

const qtyTolerance = 1e-6

// Gate is the RiskAlert gate name used for drift alerts.
const Gate = "reconciliation"

// VenuePositions lists open positions on the venue. An empty symbol means all symbols.
type VenuePositions interface {
	GetPositions(ctx context.Context, symbol string) ([]common.VenuePosition, error)
}

// LocalPositions is the bot's own open position book.
type LocalPositions interface {
	GetOpenPositions() []position.Position
}

// Diff is one symbol and side whose quantities disagree.
type Diff struct {
	Symbol     string             `json:"symbol"`
	Side       strategy.Direction `json:"side"`
	LocalQty   float64            `json:"local_qty"`
	VenueQty   float64            `json:"venue_qty"`
	Difference float64            `json:"difference"`
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Diffs     []Diff    `json:"diffs"`
}

// HasDiffs reports whether any drift was found.
func (r Report) HasDiffs() bool { return len(r.Diffs) > 0 }

// Service runs reconciliation passes. It never edits local positions: drift is
// reported so an operator can close or adopt the venue position by hand.
type Service struct {
	venue    VenuePositions
	local    LocalPositions
	bus      *events.Bus
	interval time.Duration
	log      zerolog.Logger

	mu   sync.Mutex
	last Report
}

// NewService creates a reconciliation service. bus may be nil.
func NewService(venue VenuePositions, local LocalPositions, bus *events.Bus, interval time.Duration, log zerolog.Logger) *Service {
	return &Service{
		venue:    venue,
		local:    local,
		bus:      bus,
		interval: interval,
		log:      log.With().Str("component", "reconciliation").Logger(),
	}
}

// Run reconciles every interval until ctx ends.
func (s *Service) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info().Dur("interval", s.interval).Msg("reconciliation started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil {
				s.log.Warn().Err(err).Msg("reconciliation failed")
			}
		}
	}
}

// Last returns the most recent report.
func (s *Service) Last() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type legKey struct {
	symbol string
	side   strategy.Direction
}

// Reconcile performs one pass and publishes a RiskAlert per diff.
func (s *Service) Reconcile(ctx context.Context) (Report, error) {
	venue, err := s.venue.GetPositions(ctx, "")
	if err != nil {
		return Report{}, err
	}

	qty := make(map[legKey][2]float64)
	for _, p := range s.local.GetOpenPositions() {
		k := legKey{p.Symbol, p.Side}
		v := qty[k]
		v[0] += p.Remaining
		qty[k] = v
	}
	for _, vp := range venue {
		if vp.Amount == 0 {
			continue
		}
		k := legKey{vp.Symbol, venueSide(vp)}
		v := qty[k]
		v[1] += math.Abs(vp.Amount)
		qty[k] = v
	}

	report := Report{Timestamp: time.Now().UTC()}
	for k, v := range qty {
		if math.Abs(v[0]-v[1]) <= qtyTolerance {
			continue
		}
		report.Diffs = append(report.Diffs, Diff{
			Symbol:     k.symbol,
			Side:       k.side,
			LocalQty:   v[0],
			VenueQty:   v[1],
			Difference: v[0] - v[1],
		})
	}
	sort.Slice(report.Diffs, func(i, j int) bool {
		if report.Diffs[i].Symbol != report.Diffs[j].Symbol {
			return report.Diffs[i].Symbol < report.Diffs[j].Symbol
		}
		return report.Diffs[i].Side < report.Diffs[j].Side
	})

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	s.handleReport(report)
	return report, nil
}

func (s *Service) handleReport(r Report) {
	if !r.HasDiffs() {
		s.log.Debug().Msg("positions match venue")
		return
	}
	for _, d := range r.Diffs {
		s.log.Warn().
			Str("symbol", d.Symbol).
			Str("side", string(d.Side)).
			Float64("local", d.LocalQty).
			Float64("venue", d.VenueQty).
			Msg("position drift")
		if s.bus != nil {
			s.bus.Publish(events.EventRiskAlert, events.RiskAlert{
				Symbol: d.Symbol,
				Gate:   Gate,
				Reason: "local and venue position quantities differ",
				At:     r.Timestamp,
			})
		}
	}
}

// venueSide maps a hedge-mode leg to a direction; one-way positions carry the sign.
func venueSide(vp common.VenuePosition) strategy.Direction {
	switch vp.PositionSide {
	case common.PositionLong:
		return strategy.Long
	case common.PositionShort:
		return strategy.Short
	}
	if vp.Amount < 0 {
		return strategy.Short
	}
	return strategy.Long
}
