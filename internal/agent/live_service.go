package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"intrabot/internal/agent/engine"
	"intrabot/internal/config/loader"
	"intrabot/internal/decision"
	"intrabot/internal/executor"
	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
	"intrabot/internal/market"
	"intrabot/internal/scheduler"
	"intrabot/internal/session"
	"intrabot/internal/store"
	"intrabot/internal/trader"

	"golang.org/x/sync/errgroup"
)

const (
	defaultShutdownTimeout     = 30 * time.Second
	defaultBackfillConcurrency = 4
)

type LiveServiceParams struct {
	Gateway     venue.Gateway
	Trader      *trader.Trader
	Executor    *executor.Manager
	Coordinator *decision.Coordinator
	Aggregator  *market.Aggregator
	Backfiller  *market.Backfiller
	Producers   *engine.Pool
	Journal     store.OrderJournal
	// Watchlist is optional; new instruments in a reloaded file are started live.
	Watchlist   *loader.WatchlistLoader
	Instruments []string
	// Calendar enables the once-a-day flatten at the late-day cutoff.
	Calendar    *session.Calendar

	BarInterval         time.Duration
	ShutdownTimeout     time.Duration
	BackfillConcurrency int
}

// LiveService owns the running pipeline: venue callbacks feed the bar
// aggregator, the history backfiller and the position actors; producers feed
// the coordinator which drives the order manager.
type LiveService struct {
	gateway     venue.Gateway
	trader      *trader.Trader
	exec        *executor.Manager
	coordinator *decision.Coordinator
	aggregator  *market.Aggregator
	backfill    *market.Backfiller
	producers   *engine.Pool
	journal     store.OrderJournal
	watchlist   *loader.WatchlistLoader
	instruments []string
	calendar    *session.Calendar

	barInterval     time.Duration
	shutdownTimeout time.Duration
	concurrency     int

	nowFn     func() time.Time
	mu        sync.Mutex
	tracked   map[string]struct{}
	lastSweep string

	closeOnce sync.Once
	closeErr  error
}

func NewLiveService(p LiveServiceParams) (*LiveService, error) {
	if p.Gateway == nil {
		return nil, fmt.Errorf("live service requires a gateway")
	}
	if p.Trader == nil || p.Coordinator == nil || p.Producers == nil || p.Aggregator == nil {
		return nil, fmt.Errorf("live service requires trader, coordinator, producers and aggregator")
	}
	svc := &LiveService{
		gateway:         p.Gateway,
		trader:          p.Trader,
		exec:            p.Executor,
		coordinator:     p.Coordinator,
		aggregator:      p.Aggregator,
		backfill:        p.Backfiller,
		producers:       p.Producers,
		journal:         p.Journal,
		watchlist:       p.Watchlist,
		instruments:     normalizeInstruments(p.Instruments),
		calendar:        p.Calendar,
		barInterval:     p.BarInterval,
		shutdownTimeout: p.ShutdownTimeout,
		concurrency:     p.BackfillConcurrency,
		tracked:         make(map[string]struct{}),
		nowFn:           time.Now,
	}
	if svc.barInterval <= 0 {
		svc.barInterval = time.Minute
	}
	if svc.shutdownTimeout <= 0 {
		svc.shutdownTimeout = defaultShutdownTimeout
	}
	if svc.concurrency <= 0 {
		svc.concurrency = defaultBackfillConcurrency
	}
	return svc, nil
}

func normalizeInstruments(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		inst := strings.ToUpper(strings.TrimSpace(raw))
		if inst == "" {
			continue
		}
		if _, ok := seen[inst]; ok {
			continue
		}
		seen[inst] = struct{}{}
		out = append(out, inst)
	}
	return out
}

// Run connects the venue, backfills and subscribes every configured instrument
// and blocks until ctx is done. Shutdown drains the coordinator and cancels the
// open orders before the venue is closed.
func (s *LiveService) Run(ctx context.Context) error {
	s.gateway.SetHandler(s)
	if err := s.gateway.Connect(ctx); err != nil {
		logger.Event(slog.LevelError, "gateway_connect_failed", "error", err.Error())
		return fmt.Errorf("connect gateway: %w", err)
	}
	s.startInstruments(ctx, s.instruments)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.coordinator.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error { return s.producers.Run(gctx) })
	group.Go(func() error {
		sched := scheduler.NewAlignedScheduler("bar-close", s.barInterval, 0)
		sched.Start(gctx, func(boundary time.Time) {
			s.aggregator.CloseAll(boundary)
			s.sweepCutoff(gctx, boundary)
		})
		return nil
	})
	if s.watchlist != nil {
		s.watchlist.Subscribe(func(snap loader.WatchlistSnapshot) {
			go s.startInstruments(gctx, snap.Instruments)
		})
		group.Go(func() error { return s.watchlist.Watch(gctx) })
	}
	logger.Infof("LiveService: running %d instrument(s)", len(s.Instruments()))

	err := group.Wait()
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *LiveService) startInstruments(ctx context.Context, instruments []string) {
	var eg errgroup.Group
	eg.SetLimit(s.concurrency)
	for _, inst := range instruments {
		inst := inst
		eg.Go(func() error {
			if err := s.AddInstrument(ctx, inst); err != nil {
				logger.Errorf("LiveService: start %s failed: %v", inst, err)
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// sweepCutoff flattens every instrument once per session, on the first bar
// boundary past the late-day cutoff. It reports whether a sweep was started.
func (s *LiveService) sweepCutoff(ctx context.Context, at time.Time) bool {
	if s.calendar == nil || !s.calendar.IsOpen(at) || !s.calendar.AfterCutoff(at) {
		return false
	}
	day := at.In(s.calendar.Location).Format("2006-01-02")
	s.mu.Lock()
	if s.lastSweep == day {
		s.mu.Unlock()
		return false
	}
	s.lastSweep = day
	s.mu.Unlock()

	logger.Infof("LiveService: cutoff reached, flattening all positions")
	go func() {
		err := s.coordinator.FlattenAll(ctx)
		if err != nil && ctx.Err() == nil && !errors.Is(err, decision.ErrClosed) {
			logger.Event(slog.LevelError, "cutoff_flatten_failed", "error", err.Error())
		}
	}()
	return true
}

// AddInstrument backfills the history of instrument, subscribes its ticks and
// registers its producer. Known instruments are ignored.
func (s *LiveService) AddInstrument(ctx context.Context, instrument string) error {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if instrument == "" {
		return fmt.Errorf("empty instrument")
	}
	s.mu.Lock()
	if _, ok := s.tracked[instrument]; ok {
		s.mu.Unlock()
		return nil
	}
	s.tracked[instrument] = struct{}{}
	s.mu.Unlock()

	if s.backfill != nil {
		if err := s.backfill.Run(ctx, instrument); err != nil {
			logger.Warnf("LiveService: backfill %s: %v", instrument, err)
		}
	}
	if err := s.gateway.SubscribeTicks(ctx, instrument); err != nil {
		s.mu.Lock()
		delete(s.tracked, instrument)
		s.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", instrument, err)
	}
	s.producers.Add(instrument)
	logger.Infof("LiveService: %s live", instrument)
	return nil
}

// Instruments lists the instruments currently tracked.
func (s *LiveService) Instruments() []string {
	return s.producers.Instruments()
}

// Close drains the coordinator, cancels open orders, closes the venue and stops
// the position actors. It is safe to call more than once.
func (s *LiveService) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		logger.Infof("LiveService: shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		var errs []error
		if err := s.coordinator.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("coordinator: %w", err))
			// The consumer is stuck past the deadline; cancel the orders directly.
			if errors.Is(err, context.DeadlineExceeded) && s.exec != nil {
				cctx, ccancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
				if cerr := s.exec.CancelAll(cctx); cerr != nil {
					errs = append(errs, fmt.Errorf("cancel open orders: %w", cerr))
				}
				ccancel()
			}
		}
		if err := s.gateway.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gateway: %w", err))
		}
		s.trader.Stop()
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			logger.Warnf("LiveService: shutdown finished with errors: %v", s.closeErr)
			return
		}
		logger.Infof("LiveService: shutdown complete")
	})
	return s.closeErr
}
