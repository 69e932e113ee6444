package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"intrabot/internal/agent"
	"intrabot/internal/agent/engine"
	"intrabot/internal/config"
	cfgloader "intrabot/internal/config/loader"
	"intrabot/internal/decision"
	"intrabot/internal/executor"
	"intrabot/internal/gateway"
	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
	"intrabot/internal/market"
	"intrabot/internal/metrics"
	"intrabot/internal/pkg/circuit"
	"intrabot/internal/pkg/pricing"
	"intrabot/internal/pkg/retry"
	"intrabot/internal/scheduler"
	"intrabot/internal/session"
	"intrabot/internal/store"
	"intrabot/internal/store/sqlite"
	"intrabot/internal/strategy"
	"intrabot/internal/trader"
	livehttp "intrabot/internal/transport/http/live"
)

type AppBuilder struct {
	cfg *config.Config

	calendarFn  func(config.SessionConfig) (*session.Calendar, error)
	storeFn     func(config.StoreConfig, *time.Location) (*sqlite.SqliteStore, error)
	gatewayFn   func(*config.Config, *session.Calendar) (venue.Gateway, error)
	watchlistFn func(string) (*cfgloader.WatchlistLoader, error)
	liveHTTPFn  func(config.AppConfig, livehttp.LiveHandler) (*livehttp.Server, error)

	approver decision.Approver
}

type AppBuilderOption func(*AppBuilder)

// WithGateway supplies a venue session built by the embedding program; it
// replaces gateway.mode.
func WithGateway(gw venue.Gateway) AppBuilderOption {
	return func(b *AppBuilder) {
		b.gatewayFn = func(*config.Config, *session.Calendar) (venue.Gateway, error) { return gw, nil }
	}
}

// WithApprover puts an approval step in front of every order decision.
func WithApprover(a decision.Approver) AppBuilderOption {
	return func(b *AppBuilder) { b.approver = a }
}

func WithStorePath(path string) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(_ config.StoreConfig, loc *time.Location) (*sqlite.SqliteStore, error) {
			return sqlite.NewSqliteStore(path, loc)
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		calendarFn:  buildCalendar,
		storeFn:     buildStore,
		gatewayFn:   gateway.NewGatewayFromConfig,
		watchlistFn: cfgloader.NewWatchlistLoader,
		liveHTTPFn:  buildLiveHTTPServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppBuilder(cfg *config.Config, opts []AppBuilderOption) *AppBuilder {
	return NewAppBuilder(cfg, opts...)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func buildCalendar(cfg config.SessionConfig) (*session.Calendar, error) {
	return session.NewCalendar(cfg.Timezone, cfg.Open, cfg.Close, cfg.Cutoff, time.Duration(cfg.WarmupMinutes)*time.Minute)
}

func buildStore(cfg config.StoreConfig, loc *time.Location) (*sqlite.SqliteStore, error) {
	return sqlite.NewSqliteStore(cfg.Path, loc)
}

func buildLiveHTTPServer(cfg config.AppConfig, h livehttp.LiveHandler) (*livehttp.Server, error) {
	return livehttp.NewServer(livehttp.ServerConfig{Addr: cfg.HTTPAddr, Handler: h})
}

func (b *AppBuilder) Build(ctx context.Context) (_ *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	cal, err := b.calendarFn(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("session calendar: %w", err)
	}
	db, err := b.storeFn(cfg.Store, cal.Location)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	closers = append(closers, db.Close)

	instruments := cfg.Trading.NormalizedInstruments()
	var watchlist *cfgloader.WatchlistLoader
	if cfg.Trading.WatchlistPath != "" {
		watchlist, err = b.watchlistFn(cfg.Trading.WatchlistPath)
		if err != nil {
			return nil, fmt.Errorf("load watchlist: %w", err)
		}
		instruments = config.NormalizeInstruments(append(instruments, watchlist.Snapshot().Instruments...))
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("no instruments configured")
	}
	logger.Infof("Loaded %d instrument(s): %v", len(instruments), instruments)

	gw, err := b.gatewayFn(cfg, cal)
	if err != nil {
		return nil, fmt.Errorf("venue gateway: %w", err)
	}
	closers = append(closers, gw.Close)

	buffer := store.NewBarBuffer(cfg.Store.BufferSize)
	book := trader.NewTrader(db)
	breaker := circuit.NewCircuitBreaker("venue", cfg.Gateway.BreakerThreshold, time.Duration(cfg.Gateway.BreakerCooldownSecond)*time.Second)
	breaker.SetStateChangeHandler(func(name string, from, to circuit.State) {
		metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		level := slog.LevelInfo
		if to == circuit.StateOpen {
			level = slog.LevelError
		}
		logger.Event(level, "breaker_state", "name", name, "from", from.String(), "to", to.String())
	})

	mgr := executor.NewManager(gw, book, db, breaker, executor.Config{
		Quantity: cfg.Trading.Quantity,
		Offsets: pricing.Offsets{
			Mode:   pricing.Mode(cfg.Trading.OffsetMode),
			Entry:  cfg.Trading.EntryOffset,
			Target: cfg.Trading.TargetOffset,
			Stop:   cfg.Trading.StopOffset,
			Tick:   cfg.Trading.TickSize,
		},
		OutsideRTH:    cfg.Trading.AllowOutsideRTH,
		SubmitTimeout: cfg.Gateway.SubmitTimeout(),
		Backoff: retry.Backoff{
			Min:    cfg.Gateway.ReconnectDelay(),
			Max:    time.Duration(cfg.Gateway.ReconnectMaxMillis) * time.Millisecond,
			Factor: 2,
			Jitter: 0.2,
		},
	})
	coord := decision.NewCoordinator(mgr, book, decision.Options{
		QueueSize:       cfg.Coordinator.QueueSize,
		PollTimeout:     cfg.Coordinator.PollTimeout(),
		AllowOutsideRTH: cfg.Trading.AllowOutsideRTH,
		Calendar:        cal,
		Approver:        b.approver,
	})

	entryEvery := scheduler.MustInterval(cfg.Trading.EntryInterval)
	exitEvery := scheduler.MustInterval(cfg.Trading.ExitInterval)
	pool := engine.NewPool(engine.ProducerParams{
		Bars:          buffer,
		Positions:     book,
		Sink:          coord,
		Strategy:      strategy.NewEngine(cal),
		BaseInterval:  time.Minute,
		EntryInterval: entryEvery,
		ExitInterval:  exitEvery,
		Reevaluate:    cfg.Coordinator.ReevaluateEvery(),
	})
	aggregator := market.NewAggregator(market.FanOut(buffer, db, pool))
	backfill := market.NewBackfiller(db, gw, buffer,
		time.Duration(cfg.Store.LookbackDays)*24*time.Hour, cfg.Store.BackfillTimeout())

	live, err := agent.NewLiveService(agent.LiveServiceParams{
		Gateway:     gw,
		Trader:      book,
		Executor:    mgr,
		Coordinator: coord,
		Aggregator:  aggregator,
		Backfiller:  backfill,
		Producers:   pool,
		Journal:     db,
		Watchlist:   watchlist,
		Instruments: instruments,
		Calendar:    cal,
		BarInterval: time.Minute,
	})
	if err != nil {
		return nil, err
	}
	httpSrv, err := b.liveHTTPFn(cfg.App, live)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		live:     live,
		liveHTTP: httpSrv,
		closers:  closers,
		Summary: &StartupSummary{
			Env:         cfg.App.Env,
			HTTPAddr:    httpSrv.Addr(),
			GatewayMode: cfg.Gateway.Mode,
			StorePath:   cfg.Store.Path,
			Instruments: instruments,
			Watchlist:   cfg.Trading.WatchlistPath,
			Session: SessionSummary{
				Timezone: cfg.Session.Timezone,
				Open:     cfg.Session.Open,
				Close:    cfg.Session.Close,
				Cutoff:   cfg.Session.Cutoff,
				Warmup:   time.Duration(cfg.Session.WarmupMinutes) * time.Minute,
			},
			Trading: TradingSummary{
				EntryInterval:   entryEvery,
				ExitInterval:    exitEvery,
				Quantity:        cfg.Trading.Quantity,
				OffsetMode:      cfg.Trading.OffsetMode,
				EntryOffset:     cfg.Trading.EntryOffset,
				TargetOffset:    cfg.Trading.TargetOffset,
				StopOffset:      cfg.Trading.StopOffset,
				AllowOutsideRTH: cfg.Trading.AllowOutsideRTH,
			},
		},
	}, nil
}
