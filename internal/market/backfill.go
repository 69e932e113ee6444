package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"intrabot/internal/logger"
)

// BarHistory is the slice of the history store the backfiller needs.
type BarHistory interface {
	FetchBars(ctx context.Context, instrument string, start, end time.Time) ([]Bar, error)
	AppendBar(ctx context.Context, instrument string, bar Bar) error
	LastTimestamp(ctx context.Context, instrument string) (time.Time, bool, error)
}

// HistoryRequester asks the venue for bars since a point in time; bars arrive
// asynchronously through OnHistoricalBar and OnHistoricalBarsEnd.
type HistoryRequester interface {
	RequestHistoricalBars(ctx context.Context, instrument string, since time.Time) error
}

// BarSeeder receives the bars loaded at start-up.
type BarSeeder interface {
	Seed(instrument string, bars []Bar)
}

// Backfiller brings the history store up to date for an instrument and seeds the
// in-memory buffer from it.
type Backfiller struct {
	History  BarHistory
	Venue    HistoryRequester
	Buffer   BarSeeder
	Lookback time.Duration
	Timeout  time.Duration

	mu      sync.Mutex
	waiters map[string]chan struct{}
	counts  map[string]int
	nowFn   func() time.Time
}

func NewBackfiller(history BarHistory, venue HistoryRequester, buffer BarSeeder, lookback, timeout time.Duration) *Backfiller {
	if lookback <= 0 {
		lookback = 4 * 24 * time.Hour
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Backfiller{
		History:  history,
		Venue:    venue,
		Buffer:   buffer,
		Lookback: lookback,
		Timeout:  timeout,
		waiters:  make(map[string]chan struct{}),
		counts:   make(map[string]int),
		nowFn:    time.Now,
	}
}

// Run requests the missing history of instrument, waits for the end marker and
// seeds the buffer with the lookback window. A timed-out request still seeds the
// buffer with whatever the store holds.
func (b *Backfiller) Run(ctx context.Context, instrument string) error {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if b.History == nil {
		return fmt.Errorf("backfill %s: history store missing", instrument)
	}
	now := b.nowFn()
	since := now.Add(-b.Lookback)
	last, ok, err := b.History.LastTimestamp(ctx, instrument)
	if err != nil {
		return fmt.Errorf("backfill %s: last timestamp: %w", instrument, err)
	}
	if ok && last.After(since) {
		since = last
	}

	if b.Venue != nil {
		done := b.register(instrument)
		if err := b.Venue.RequestHistoricalBars(ctx, instrument, since); err != nil {
			b.unregister(instrument)
			return fmt.Errorf("backfill %s: request: %w", instrument, err)
		}
		timer := time.NewTimer(b.Timeout)
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			logger.Warnf("backfill: %s timed out after %s, using stored bars", instrument, b.Timeout)
			b.unregister(instrument)
		case <-ctx.Done():
			timer.Stop()
			b.unregister(instrument)
			return ctx.Err()
		}
	}

	bars, err := b.History.FetchBars(ctx, instrument, now.Add(-b.Lookback), now)
	if err != nil {
		return fmt.Errorf("backfill %s: fetch: %w", instrument, err)
	}
	if b.Buffer != nil {
		b.Buffer.Seed(instrument, bars)
	}
	logger.Infof("backfill: %s since=%s loaded=%d", instrument, since.Format(time.RFC3339), len(bars))
	return nil
}

// OnHistoricalBar persists one delivered bar.
func (b *Backfiller) OnHistoricalBar(instrument string, bar Bar) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	bar.Instrument = instrument
	if err := b.History.AppendBar(context.Background(), instrument, bar); err != nil {
		logger.Warnf("backfill: append %s %s failed: %v", instrument, bar.Time.Format(time.RFC3339), err)
		return
	}
	b.mu.Lock()
	b.counts[instrument]++
	b.mu.Unlock()
}

// OnHistoricalBarsEnd releases the Run waiting on instrument.
func (b *Backfiller) OnHistoricalBarsEnd(instrument string) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	b.mu.Lock()
	ch := b.waiters[instrument]
	delete(b.waiters, instrument)
	n := b.counts[instrument]
	delete(b.counts, instrument)
	b.mu.Unlock()
	if ch != nil {
		close(ch)
	}
	logger.Debugf("backfill: %s delivery finished, %d bars", instrument, n)
}

func (b *Backfiller) register(instrument string) <-chan struct{} {
	ch := make(chan struct{})
	b.mu.Lock()
	if old := b.waiters[instrument]; old != nil {
		close(old)
	}
	b.waiters[instrument] = ch
	b.mu.Unlock()
	return ch
}

func (b *Backfiller) unregister(instrument string) {
	b.mu.Lock()
	delete(b.waiters, instrument)
	b.mu.Unlock()
}
