package engine

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/aggregator"
	"bingx-trading-bot/internal/events"
	"bingx-trading-bot/internal/indicators"
	"bingx-trading-bot/internal/market"
	"bingx-trading-bot/internal/status"
	"bingx-trading-bot/internal/strategy"
)

// PipelineConfig describes one symbol's candle flow.
type PipelineConfig struct {
	Symbol     string
	Base       market.Timeframe
	Timeframes []market.Timeframe
	BufferSize int
	Indicators indicators.Config
}

// Pipeline turns one symbol's trades into sealed candles, indicator frames and signals.
// Everything except LastPrice runs on the feed goroutine.
type Pipeline struct {
	cfg    PipelineConfig
	agg    *aggregator.Aggregator
	ticks  *aggregator.TickBuilder
	trader *Trader

	lastPrice atomic.Uint64
	log       zerolog.Logger
}

// NewPipeline builds the aggregator for cfg. The base timeframe is always tracked.
func NewPipeline(cfg PipelineConfig, trader *Trader, log zerolog.Logger) (*Pipeline, error) {
	tfs := cfg.Timeframes
	hasBase := false
	for _, tf := range tfs {
		if tf.Label == cfg.Base.Label {
			hasBase = true
		}
	}
	if !hasBase {
		tfs = append([]market.Timeframe{cfg.Base}, tfs...)
	}
	agg, err := aggregator.New(aggregator.Config{
		Symbol:     cfg.Symbol,
		Base:       cfg.Base,
		Timeframes: tfs,
		BufferSize: cfg.BufferSize,
	}, log)
	if err != nil {
		return nil, err
	}
	if cfg.Indicators.RSI == 0 && len(cfg.Indicators.SMA) == 0 && len(cfg.Indicators.EMA) == 0 {
		cfg.Indicators = indicators.DefaultConfig()
	}
	return &Pipeline{
		cfg:    cfg,
		agg:    agg,
		ticks:  aggregator.NewTickBuilder(cfg.Base),
		trader: trader,
		log:    log.With().Str("component", "pipeline").Str("symbol", cfg.Symbol).Logger(),
	}, nil
}

func (p *Pipeline) Symbol() string { return p.cfg.Symbol }

// LastPrice is the most recent trade or candle close. Safe from any goroutine.
func (p *Pipeline) LastPrice() (float64, bool) {
	v := math.Float64frombits(p.lastPrice.Load())
	return v, v > 0
}

func (p *Pipeline) setPrice(v float64) { p.lastPrice.Store(math.Float64bits(v)) }

// WarmUp seeds the aggregator with history before the live feed starts.
func (p *Pipeline) WarmUp(ctx context.Context, h aggregator.History, n int) (int, error) {
	got, err := p.agg.WarmUp(ctx, h, n)
	if err != nil {
		return got, err
	}
	if c, ok := p.agg.Current(p.cfg.Base.Label); ok {
		p.setPrice(c.Close)
	}
	return got, nil
}

// OnTick folds a trade into the forming base candle and processes it once it completes.
func (p *Pipeline) OnTick(ctx context.Context, t market.Tick) error {
	if m := p.trader.Metrics; m != nil {
		m.Tick(p.cfg.Symbol)
	}
	done, closed, err := p.ticks.Add(t)
	if err != nil {
		p.log.Warn().Err(err).Msg("tick dropped")
		return nil
	}
	p.setPrice(t.Price)
	if !closed {
		return nil
	}
	_, err = p.process(ctx, done)
	return err
}

// OnCandle processes one completed base candle. Only fatal errors are returned.
func (p *Pipeline) OnCandle(ctx context.Context, c market.Candle) ([]Outcome, error) {
	p.setPrice(c.Close)
	return p.process(ctx, c)
}

func (p *Pipeline) process(ctx context.Context, c market.Candle) ([]Outcome, error) {
	sealed, err := p.agg.Add(c)
	if err != nil {
		var w *market.DataIntegrityWarning
		if errors.As(err, &w) {
			p.log.Warn().Err(err).Msg("candle dropped")
			return nil, nil
		}
		return nil, err
	}
	if len(sealed) == 0 {
		return nil, nil
	}

	fresh := make(map[string]bool, len(sealed))
	for _, s := range sealed {
		fresh[s.Timeframe] = true
		p.publishSealed(s)
		if s.Timeframe != p.cfg.Base.Label {
			continue
		}
		if err := p.trader.CheckExits(ctx, p.cfg.Symbol, s.Candle); err != nil {
			return nil, err
		}
	}

	windows := strategy.Windows{Frames: make(map[string]indicators.Frame, len(fresh)), Fresh: fresh}
	for tf := range fresh {
		windows.Frames[tf] = indicators.Calculate(p.agg.Sealed(tf), p.cfg.Indicators)
	}
	best, candidates := p.trader.Generator.Generate(p.cfg.Symbol, windows)
	if best == nil {
		return nil, nil
	}
	if len(candidates) > 1 {
		p.log.Debug().Int("candidates", len(candidates)).Str("winner", best.Strategy).Msg("signals competed")
	}

	out := p.trader.HandleSignal(ctx, *best)
	return []Outcome{out}, out.Err
}

func (p *Pipeline) publishSealed(s aggregator.Sealed) {
	tr := p.trader
	if tr.Metrics != nil {
		tr.Metrics.CandleSealed(p.cfg.Symbol, s.Timeframe, s.Filled)
	}
	if s.Timeframe == p.cfg.Base.Label {
		tr.Status.Update(func(st *status.Snapshot) { st.CandlesProcessed++ })
	}
	if tr.Bus != nil {
		tr.Bus.Publish(events.EventCandleSealed, events.CandleSealed{
			Symbol:    p.cfg.Symbol,
			Timeframe: s.Timeframe,
			Time:      s.Candle.Time,
			Close:     s.Candle.Close,
			Filled:    s.Filled,
		})
	}
}
