package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/balance"
	"bingx-trading-bot/internal/events"
	"bingx-trading-bot/internal/indicators"
	"bingx-trading-bot/internal/journal"
	"bingx-trading-bot/internal/market"
	"bingx-trading-bot/internal/monitor"
	"bingx-trading-bot/internal/order"
	"bingx-trading-bot/internal/persistence"
	"bingx-trading-bot/internal/position"
	"bingx-trading-bot/internal/reconciliation"
	"bingx-trading-bot/internal/risk"
	"bingx-trading-bot/internal/status"
	"bingx-trading-bot/internal/strategy"
	"bingx-trading-bot/pkg/config"
	"bingx-trading-bot/pkg/db"
	"bingx-trading-bot/pkg/exchanges/bingx"
	"bingx-trading-bot/pkg/exchanges/common"
)

// Engine owns every long-lived component of one bot process.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	Client    *bingx.Client
	Bus       *events.Bus
	Metrics   *monitor.Metrics
	Risk      *risk.Manager
	Positions *position.Manager
	Balance   *balance.Manager
	Status    *status.Reporter
	Generator *strategy.Generator
	Executor  *order.Executor
	Trader    *Trader
	Paper     *order.DryRunGateway    // nil when trading live
	Reconcile *reconciliation.Service // nil in dry run
	Pipelines map[string]*Pipeline
	Feeds     map[string]*market.Feed
	Service   *Impl

	// RunID scopes journal rows of this process; position ids restart at 1 every run.
	RunID string

	base     market.Timeframe
	database *db.Database
	writer   *persistence.BatchWriter
	journal  *journal.Journal
	redis    *redis.Client
}

// Build creates and wires the components. Nothing talks to the venue until Run.
// On error everything opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, version string) (_ *Engine, err error) {
	base, err := market.ParseTimeframe(cfg.BaseInterval)
	if err != nil {
		return nil, fmt.Errorf("base interval: %w", err)
	}
	tfs, err := market.ParseTimeframes(cfg.Timeframes)
	if err != nil {
		return nil, fmt.Errorf("timeframes: %w", err)
	}

	runID := uuid.NewString()
	log = log.With().Str("run_id", runID).Logger()
	e := &Engine{
		cfg:       cfg,
		log:       log.With().Str("component", "engine").Logger(),
		RunID:     runID,
		base:      base,
		Bus:       events.NewBus(),
		Metrics:   monitor.New(),
		Pipelines: make(map[string]*Pipeline, len(cfg.Symbols)),
		Feeds:     make(map[string]*market.Feed, len(cfg.Symbols)),
	}
	defer func() {
		if err != nil {
			if cerr := e.Close(); cerr != nil {
				e.log.Warn().Err(cerr).Msg("release after failed build")
			}
		}
	}()
	e.Client = bingx.New(bingx.Config{
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		Testnet:           cfg.Testnet,
		BaseURL:           cfg.BaseURL,
		RecvWindow:        cfg.RecvWindow,
		RequestTimeout:    cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, log)

	e.Risk = risk.NewInMemory(risk.RiskConfig{
		MinBalance:           cfg.MinBalance,
		MaxDrawdownPct:       cfg.MaxDrawdownPct,
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		Cooldown:             cfg.LossCooldown,
		DefaultRiskPct:       cfg.DefaultRiskPct,
		MaxPositionNotional:  cfg.MaxPositionNotional,
	}, log)
	e.Positions = position.NewManager(cfg.DefaultMaxPositions, log)

	cfgs, err := strategy.LoadConfigs(cfg.StrategiesFile)
	if err != nil {
		return nil, fmt.Errorf("load strategies: %w", err)
	}
	regs, err := strategy.BuildAll(cfgs)
	if err != nil {
		return nil, err
	}
	if err := checkRegistrations(regs, base, tfs, cfg.Symbols); err != nil {
		return nil, err
	}
	e.Generator = strategy.NewGenerator(log, regs...)
	for _, r := range regs {
		if r.MaxPositions > 0 {
			e.Positions.SetCap(r.ID, r.MaxPositions)
		}
	}

	var gw common.Gateway = e.Client
	if cfg.DryRun {
		e.Balance = balance.NewManager(nil, cfg.BalanceSyncInterval, log)
		e.Balance.SetInitialBalance(cfg.DryRunInitialBalance)
		e.Paper = order.NewDryRunGateway(order.DryRunConfig{
			FeeRate:      cfg.DryRunFeeRate,
			SlippageBps:  cfg.DryRunSlippageBps,
			LatencyMinMs: cfg.DryRunLatencyMinMs,
			LatencyMaxMs: cfg.DryRunLatencyMaxMs,
		}, order.PriceFunc(e.lastPrice), log)
		gw = e.Paper
	} else {
		e.Balance = balance.NewManager(e.Client, cfg.BalanceSyncInterval, log)
		e.Reconcile = reconciliation.NewService(e.Client, e.Positions, e.Bus, cfg.ReconcileInterval, log)
	}
	e.Executor = order.NewExecutor(gw, e.Bus, log)
	e.Executor.Hedge = cfg.HedgeMode
	e.Executor.Observer = e.Metrics

	var sink status.Sink
	if cfg.RedisAddr != "" {
		// the client redials on every command, so a store that is down now can recover later
		e.redis = status.OpenRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := e.redis.Ping(ctx).Err(); err != nil {
			e.log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, status reports will retry")
		}
		sink = status.NewRedisSink(e.redis, "", cfg.StatusTTL)
	}
	e.Status = status.NewReporter(cfg.BotID, sink, log)

	e.Trader = NewTrader(TraderConfig{
		Risk:            e.Risk,
		Positions:       e.Positions,
		Executor:        e.Executor,
		Balance:         e.Balance,
		Status:          e.Status,
		Generator:       e.Generator,
		Bus:             e.Bus,
		Metrics:         e.Metrics,
		TrailingStopPct: cfg.TrailingStopPct,
	}, log)

	wsURL := cfg.WSURL
	if wsURL == "" {
		wsURL = bingx.StreamURL(cfg.Testnet)
	}
	dialer := bingx.NewStreamDialer(wsURL)
	dial := func(ctx context.Context) (market.Conn, error) {
		c, err := dialer.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	for _, sym := range cfg.Symbols {
		p, err := NewPipeline(PipelineConfig{
			Symbol:     sym,
			Base:       base,
			Timeframes: tfs,
			BufferSize: cfg.BufferSize,
			Indicators: indicators.DefaultConfig(),
		}, e.Trader, log)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", sym, err)
		}
		e.Pipelines[sym] = p
		e.Feeds[sym] = market.NewFeed(market.FeedConfig{
			Symbol:      sym,
			MaxAttempts: cfg.ReconnectAttempts,
			BaseDelay:   cfg.ReconnectDelay,
		}, dial, log)
	}

	var queries *db.Queries
	if cfg.DBPath != "" {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		e.database = database
		e.writer = persistence.NewBatchWriter(database.DB, 100, time.Second, log)
		e.journal = journal.New(e.Bus, e.writer, runID, log)
		queries = database.Queries()
	}

	mode := "LIVE"
	if cfg.DryRun {
		mode = "DRY_RUN"
	}
	e.Service = NewImpl(Config{
		Trader:    e.Trader,
		Reporter:  e.Status,
		Pipelines: e.Pipelines,
		Feeds:     e.Feeds,
		Queries:   queries,
		Bus:       e.Bus,
		Reconcile: e.Reconcile,
		Meta: SystemStatus{
			BotID:   cfg.BotID,
			RunID:   runID,
			Mode:    mode,
			DryRun:  cfg.DryRun,
			Testnet: cfg.Testnet,
			Symbols: cfg.Symbols,
			Version: version,
		},
	})
	return e, nil
}

// checkRegistrations rejects strategies that could never fire: a timeframe the
// pipelines do not aggregate, or a symbol no feed subscribes to.
func checkRegistrations(regs []strategy.Registration, base market.Timeframe, tfs []market.Timeframe, symbols []string) error {
	tracked := map[string]bool{base.Label: true}
	for _, tf := range tfs {
		tracked[tf.Label] = true
	}
	subscribed := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		subscribed[s] = true
	}
	for _, r := range regs {
		if !tracked[r.Timeframe] {
			return fmt.Errorf("strategy %s: timeframe %s is neither BASE_INTERVAL nor in TIMEFRAMES", r.ID, r.Timeframe)
		}
		if r.Symbol != "" && !subscribed[r.Symbol] {
			return fmt.Errorf("strategy %s: symbol %s is not in SYMBOLS", r.ID, r.Symbol)
		}
	}
	return nil
}

// lastPrice feeds the paper gateway from the pipelines.
func (e *Engine) lastPrice(symbol string) (float64, bool) {
	p, ok := e.Pipelines[symbol]
	if !ok {
		return 0, false
	}
	return p.LastPrice()
}

// Run starts the bot and blocks until ctx ends or a fatal error occurs.
// Authentication failures are fatal; everything else is logged and retried.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.Client.TimeSync().Start(ctx)

	if err := e.Balance.Sync(ctx); err != nil {
		if common.IsAuthentication(err) {
			return fmt.Errorf("balance: %w", err)
		}
		e.log.Warn().Err(err).Msg("initial balance sync failed")
	}
	e.Trader.ResetEquity()
	e.Status.Update(func(s *status.Snapshot) { s.Balance = e.Balance.Capital() })

	if err := e.setLeverage(ctx); err != nil {
		return err
	}
	e.warmUp(ctx)

	var bg sync.WaitGroup
	if e.journal != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			e.journal.Run(ctx)
		}()
	}
	bg.Add(1)
	go func() {
		defer bg.Done()
		e.Status.Run(ctx, e.cfg.StatusInterval)
	}()
	bg.Add(1)
	go func() {
		defer bg.Done()
		e.refreshBalance(ctx)
	}()
	if e.Reconcile != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			e.Reconcile.Run(ctx)
		}()
	}

	fatal := make(chan error, 1)
	var feeds sync.WaitGroup
	for sym, f := range e.Feeds {
		feeds.Add(1)
		go func(sym string, f *market.Feed, p *Pipeline) {
			defer feeds.Done()
			e.runFeed(ctx, sym, f, p, fatal)
		}(sym, f, e.Pipelines[sym])
	}

	e.Status.MarkStarted()
	e.Status.Report(ctx, "started")
	e.log.Info().Strs("symbols", e.cfg.Symbols).Bool("dry_run", e.cfg.DryRun).Msg("engine running")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-fatal:
		e.log.Error().Err(runErr).Msg("fatal error, shutting down")
		e.Status.RecordError(runErr)
	}
	cancel()
	for _, f := range e.Feeds {
		f.Stop()
	}
	feeds.Wait()
	bg.Wait()
	e.log.Info().Msg("engine stopped")
	return runErr
}

func (e *Engine) runFeed(ctx context.Context, sym string, f *market.Feed, p *Pipeline, fatal chan<- error) {
	f.OnTick = func(t market.Tick) {
		if err := p.OnTick(ctx, t); err != nil {
			select {
			case fatal <- err:
			default:
			}
		}
	}
	f.OnState = func(s market.FeedState) {
		e.Metrics.FeedState(sym, int(s))
		if s == market.StateError {
			e.Metrics.Reconnect(sym)
		}
	}
	f.OnError = func(err error) {
		e.Status.RecordError(err)
		e.Status.Update(func(s *status.Snapshot) { s.Message = "market feed down for " + sym })
	}
	if err := f.Run(ctx); err != nil && !errors.Is(err, market.ErrFeedStopped) {
		e.log.Error().Err(err).Str("symbol", sym).Msg("feed ended")
	}
}

// setLeverage applies the configured leverage to both sides of every symbol.
func (e *Engine) setLeverage(ctx context.Context) error {
	if e.cfg.DryRun || e.cfg.Leverage <= 0 {
		return nil
	}
	for _, sym := range e.cfg.Symbols {
		for _, side := range []common.PositionSide{common.PositionLong, common.PositionShort} {
			err := e.Client.SetLeverage(ctx, sym, side, e.cfg.Leverage)
			if err == nil {
				continue
			}
			if common.IsAuthentication(err) {
				return fmt.Errorf("set leverage %s: %w", sym, err)
			}
			e.log.Warn().Err(err).Str("symbol", sym).Str("side", string(side)).Msg("set leverage failed")
		}
	}
	return nil
}

// warmUp seeds every pipeline with closed history. Failures leave the pipeline cold.
func (e *Engine) warmUp(ctx context.Context) {
	if e.cfg.WarmupCandles <= 0 {
		return
	}
	bf := market.NewBackfiller(e.Client, e.log)
	for sym, p := range e.Pipelines {
		n, err := p.WarmUp(ctx, bf, e.cfg.WarmupCandles)
		if err != nil {
			e.log.Warn().Err(err).Str("symbol", sym).Msg("warm-up failed, starting cold")
			continue
		}
		e.log.Info().Str("symbol", sym).Int("candles", n).Msg("warmed up")
	}
}

// refreshBalance resyncs the venue balance and mirrors it into the status snapshot.
func (e *Engine) refreshBalance(ctx context.Context) {
	interval := e.cfg.BalanceSyncInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Balance.Sync(ctx); err != nil {
				if common.IsAuthentication(err) {
					e.Status.RecordError(err)
				}
				e.log.Warn().Err(err).Msg("balance sync failed")
			}
			capital := e.Balance.Capital()
			e.Status.Update(func(s *status.Snapshot) { s.Balance = capital })
		}
	}
}

// Close releases the journal, redis and venue connections. Call after Run returns.
func (e *Engine) Close() error {
	var errs []error
	if e.writer != nil {
		errs = append(errs, e.writer.Close())
	}
	if e.database != nil {
		errs = append(errs, e.database.Close())
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	if e.Client != nil {
		errs = append(errs, e.Client.Close())
	}
	if e.Bus != nil {
		e.Bus.Close()
	}
	return errors.Join(errs...)
}
