// Package decision serializes candidate signals from every producer into one
// consumer that acts on them through the order lifecycle manager.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
	"intrabot/internal/metrics"
	"intrabot/internal/session"
	"intrabot/internal/strategy"
	"intrabot/internal/trader"
)

var (
	ErrPendingState = errors.New("decision: instrument has a pending order")
	ErrLatchHeld    = errors.New("decision: signal already in flight")
	ErrQueueFull    = errors.New("decision: queue full")
	ErrClosed       = errors.New("decision: coordinator closed")
)

const (
	defaultQueueSize   = 64
	defaultPollTimeout = 30 * time.Second
)

// Executor is the order side of the coordinator.
type Executor interface {
	SubmitEntry(ctx context.Context, instrument string, side trader.Side, ref float64) (venue.BracketOrder, error)
	SubmitExit(ctx context.Context, instrument string) (venue.Order, error)
	Flatten(ctx context.Context, instrument string) error
	FlattenAll(ctx context.Context) error
	CancelAll(ctx context.Context) error
}

// PositionReader exposes the latest position phase of an instrument.
type PositionReader interface {
	State(instrument string) trader.PositionState
}

type Options struct {
	QueueSize       int
	PollTimeout     time.Duration
	AllowOutsideRTH bool
	Calendar        *session.Calendar
	Approver        Approver
}

type request struct {
	sig     strategy.Signal
	flatten bool
	reply   chan error
}

// Coordinator is the bounded FIFO between producers and the single consumer.
// A per-instrument latch guarantees at most one outstanding signal per
// instrument; it is set by Offer and released once the consumer is done.
type Coordinator struct {
	exec      Executor
	positions PositionReader
	opts      Options

	queue   chan request
	latches sync.Map // instrument -> *atomic.Bool

	mu      sync.RWMutex
	closed  bool
	stopCh  chan struct{}
	running atomic.Bool
	runDone chan struct{}

	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewCoordinator(exec Executor, positions PositionReader, opts Options) *Coordinator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.Approver == nil {
		opts.Approver = AutoApprove
	}
	return &Coordinator{
		exec:      exec,
		positions: positions,
		opts:      opts,
		queue:     make(chan request, opts.QueueSize),
		stopCh:    make(chan struct{}),
		runDone:   make(chan struct{}),
		nowFn:     time.Now,
		sleepFn:   sleepCtx,
	}
}

func normalize(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}

func (c *Coordinator) latch(instrument string) *atomic.Bool {
	v, _ := c.latches.LoadOrStore(instrument, new(atomic.Bool))
	return v.(*atomic.Bool)
}

// Latched reports whether a signal for instrument is in flight.
func (c *Coordinator) Latched(instrument string) bool {
	v, ok := c.latches.Load(normalize(instrument))
	return ok && v.(*atomic.Bool).Load()
}

// LatchedInstruments lists the instruments whose latch is currently held.
func (c *Coordinator) LatchedInstruments() []string {
	var out []string
	c.latches.Range(func(k, v any) bool {
		if v.(*atomic.Bool).Load() {
			out = append(out, k.(string))
		}
		return true
	})
	return out
}

// Depth is the number of queued requests.
func (c *Coordinator) Depth() int {
	return len(c.queue)
}

func (c *Coordinator) state(instrument string) trader.PositionState {
	if c.positions == nil {
		return trader.PositionState{Instrument: instrument, Phase: trader.PhaseFlat}
	}
	return c.positions.State(instrument)
}

func (c *Coordinator) release(instrument string) {
	c.latch(instrument).Store(false)
}

// Offer enqueues sig without blocking. A rejected signal is dropped and leaves
// the queue untouched.
func (c *Coordinator) Offer(sig strategy.Signal) error {
	sig.Instrument = normalize(sig.Instrument)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if st := c.state(sig.Instrument); st.Phase.Pending() {
		metrics.LatchRejections.WithLabelValues("pending").Inc()
		logger.Event(logLevelWarn, "signal_rejected", "reason", "pending", "instrument", sig.Instrument, "phase", string(st.Phase), "kind", string(sig.Kind))
		return fmt.Errorf("%w: %s is %s", ErrPendingState, sig.Instrument, st.Phase)
	}
	if !c.latch(sig.Instrument).CompareAndSwap(false, true) {
		metrics.LatchRejections.WithLabelValues("latch_held").Inc()
		logger.Debugf("Coordinator: %s dropped, latch held", sig)
		return ErrLatchHeld
	}
	select {
	case c.queue <- request{sig: sig}:
		metrics.QueueDepth.Set(float64(len(c.queue)))
		metrics.Signals.WithLabelValues(sig.Instrument, string(sig.Kind)).Inc()
		return nil
	default:
		c.release(sig.Instrument)
		metrics.LatchRejections.WithLabelValues("queue_full").Inc()
		logger.Event(logLevelWarn, "signal_rejected", "reason", "queue_full", "instrument", sig.Instrument, "kind", string(sig.Kind))
		return ErrQueueFull
	}
}

// Flatten force-closes instrument through the consumer, so it is serialized with
// signal handling, and waits for the result.
func (c *Coordinator) Flatten(ctx context.Context, instrument string) error {
	instrument = normalize(instrument)
	if instrument == "" {
		return trader.ErrEmptyInstrument
	}
	return c.submitFlatten(ctx, instrument)
}

// FlattenAll force-closes every instrument through the consumer.
func (c *Coordinator) FlattenAll(ctx context.Context) error {
	return c.submitFlatten(ctx, "")
}

func (c *Coordinator) submitFlatten(ctx context.Context, instrument string) error {
	req := request{sig: strategy.Signal{Instrument: instrument}, flatten: true, reply: make(chan error, 1)}
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClosed
	}
	select {
	case c.queue <- req:
		c.mu.RUnlock()
	case <-ctx.Done():
		c.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes the queue until ctx is done or Close is called.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("decision: coordinator already running")
	}
	defer close(c.runDone)
	logger.Infof("Coordinator: consumer started queue=%d poll=%s", cap(c.queue), c.opts.PollTimeout)
	timer := time.NewTimer(c.opts.PollTimeout)
	defer timer.Stop()
	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.opts.PollTimeout)
		select {
		case <-ctx.Done():
			c.drain()
			return ctx.Err()
		case <-c.stopCh:
			c.drain()
			return nil
		case req := <-c.queue:
			metrics.QueueDepth.Set(float64(len(c.queue)))
			c.handle(ctx, req)
		case <-timer.C:
			metrics.IdleTicks.Inc()
			logger.Debugf("Coordinator: idle, no signal in %s", c.opts.PollTimeout)
		}
	}
}

// drain discards every queued request, releasing its latch.
func (c *Coordinator) drain() int {
	n := 0
	for {
		select {
		case req := <-c.queue:
			n++
			if req.flatten {
				req.reply <- ErrClosed
				continue
			}
			c.release(req.sig.Instrument)
			metrics.Decisions.WithLabelValues("drained").Inc()
		default:
			metrics.QueueDepth.Set(0)
			if n > 0 {
				logger.Infof("Coordinator: drained %d queued request(s)", n)
			}
			return n
		}
	}
}

// Close stops accepting signals, drains the queue and cancels every open
// order. It waits for a running consumer to finish its current signal.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.running.Load() {
		select {
		case <-c.runDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.drain()
	if c.exec == nil {
		return nil
	}
	if err := c.exec.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancel open orders: %w", err)
	}
	return nil
}

func (c *Coordinator) handle(ctx context.Context, req request) {
	if req.flatten {
		target := req.sig.Instrument
		err := c.safeDo(func() error {
			if target == "" {
				target = "all"
				return c.exec.FlattenAll(ctx)
			}
			return c.exec.Flatten(ctx, target)
		})
		if err != nil {
			logger.Errorf("Coordinator: flatten %s failed: %v", target, err)
		}
		req.reply <- err
		return
	}
	sig := req.sig
	defer c.release(sig.Instrument)
	outcome, err := c.act(ctx, sig)
	metrics.Decisions.WithLabelValues(outcome).Inc()
	if err != nil {
		logger.Event(logLevelError, "signal_failed", "instrument", sig.Instrument, "kind", string(sig.Kind), "signal", sig.ID, "outcome", outcome, "error", err.Error())
		return
	}
	logger.Infof("Coordinator: %s -> %s", sig, outcome)
}

func (c *Coordinator) safeDo(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decision: panic: %v", r)
		}
	}()
	return fn()
}

// act runs one signal through approval, the session gate and the executor.
func (c *Coordinator) act(ctx context.Context, sig strategy.Signal) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			err = fmt.Errorf("decision: panic handling %s: %v", sig.ID, r)
		}
	}()
	ok, err := c.opts.Approver.Approve(ctx, sig)
	if err != nil {
		return "approval_error", err
	}
	if !ok {
		return "rejected", nil
	}

	if !sig.Kind.Entry() {
		st := c.state(sig.Instrument)
		if !st.Phase.Holding() || st.Side != sig.Kind.Side() {
			return "stale", nil
		}
		if _, err := c.exec.SubmitExit(ctx, sig.Instrument); err != nil {
			return "exit_failed", err
		}
		return "exit_submitted", nil
	}

	gate, err := c.gate(ctx)
	if err != nil {
		return "cancelled", err
	}
	switch gate {
	case gateCutoff:
		if err := c.exec.Flatten(ctx, sig.Instrument); err != nil {
			return "cutoff_flatten_failed", err
		}
		return "cutoff_flatten", nil
	case gateClosed:
		return "outside_rth", nil
	}
	if st := c.state(sig.Instrument); st.Phase != trader.PhaseFlat {
		return "stale", nil
	}
	if _, err := c.exec.SubmitEntry(ctx, sig.Instrument, sig.Kind.Side(), sig.ReferencePrice); err != nil {
		return "entry_failed", err
	}
	return "entry_submitted", nil
}

type gateResult int

const (
	gateOpen gateResult = iota
	gateClosed
	gateCutoff
)

// gate applies the trading hours to a new entry. Inside the warm-up it waits
// for the warm-up to end.
func (c *Coordinator) gate(ctx context.Context) (gateResult, error) {
	cal := c.opts.Calendar
	if cal == nil {
		return gateOpen, nil
	}
	now := c.nowFn()
	if cal.InWarmup(now) {
		wait := cal.WarmupEnd(now).Sub(now)
		logger.Infof("Coordinator: warm-up, waiting %s", wait.Round(time.Second))
		if err := c.sleepFn(ctx, wait); err != nil {
			return gateClosed, err
		}
		now = c.nowFn()
	}
	switch {
	case cal.IsOpen(now) && cal.AfterCutoff(now):
		return gateCutoff, nil
	case !cal.IsOpen(now) && !c.opts.AllowOutsideRTH:
		return gateClosed, nil
	}
	return gateOpen, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
