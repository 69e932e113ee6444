package trader

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
	"intrabot/internal/metrics"
	"intrabot/internal/store"
)

// Trader owns the position state of every instrument.
//
// Each instrument is served by its own actor goroutine that applies events in
// mailbox order, so a decision-path transition and a broker callback for the
// same instrument never interleave, while different instruments never wait on
// each other. Readers use the snapshot each actor publishes after every event.
type Trader struct {
	journal  store.OrderJournal
	registry *HandlerRegistry
	mailbox  int

	mu     sync.Mutex
	actors map[string]*actor

	// order id -> instrument, for venues that do not echo the instrument
	orders sync.Map

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	nowFn func() time.Time
}

type actor struct {
	instrument string
	msgCh      chan EventEnvelope
	state      PositionState
	terminal   map[int64]venue.OrderStatus
	snapshot   atomic.Pointer[actorSnapshot]
}

type actorSnapshot struct {
	State PositionState
	Open  []int64
}

// NewTrader builds a Trader. journal may be nil.
func NewTrader(journal store.OrderJournal) *Trader {
	reg := NewHandlerRegistry()
	reg.RegisterDefaultHandlers()
	return &Trader{
		journal:  journal,
		registry: reg,
		mailbox:  64,
		actors:   make(map[string]*actor),
		stopCh:   make(chan struct{}),
		nowFn:    time.Now,
	}
}

func normalizeInstrument(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}

// actorFor returns the actor of instrument, starting it on first use.
func (t *Trader) actorFor(instrument string) (*actor, error) {
	if instrument == "" {
		return nil, ErrEmptyInstrument
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.stopCh:
		return nil, ErrStopped
	default:
	}
	if a, ok := t.actors[instrument]; ok {
		return a, nil
	}
	a := &actor{
		instrument: instrument,
		msgCh:      make(chan EventEnvelope, t.mailbox),
		state:      flatState(instrument),
		terminal:   make(map[int64]venue.OrderStatus),
	}
	a.publish()
	t.actors[instrument] = a
	t.wg.Add(1)
	go t.runLoop(a)
	logger.Debugf("Trader: actor started for %s", instrument)
	return a, nil
}

func (t *Trader) lookup(instrument string) *actor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actors[instrument]
}

// Stop ends every actor loop. Events still queued are dropped.
func (t *Trader) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		close(t.stopCh)
		t.mu.Unlock()
	})
	t.wg.Wait()
}

func (t *Trader) Send(evt EventEnvelope) error {
	evt.Instrument = normalizeInstrument(evt.Instrument)
	a, err := t.actorFor(evt.Instrument)
	if err != nil {
		return err
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = t.nowFn()
	}
	select {
	case a.msgCh <- evt:
		return nil
	case <-t.stopCh:
		return ErrStopped
	}
}

// SendSync delivers evt and waits for its handler result.
func (t *Trader) SendSync(ctx context.Context, evt EventEnvelope) error {
	if evt.ReplyCh == nil {
		evt.ReplyCh = make(chan error, 1)
	}
	if err := t.Send(evt); err != nil {
		return err
	}
	select {
	case err := <-evt.ReplyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stopCh:
		return fmt.Errorf("trader stopped during sync call: %w", ErrStopped)
	}
}

func (t *Trader) runLoop(a *actor) {
	defer t.wg.Done()
	for {
		select {
		case evt := <-a.msgCh:
			t.handleEvent(a, evt)
		case <-t.stopCh:
			logger.Debugf("Trader: actor %s stopping", a.instrument)
			return
		}
	}
}

// handleEvent runs one handler. Panics are turned into errors so one bad event
// cannot take the actor down; the caller of SendSync always gets a reply.
func (t *Trader) handleEvent(a *actor, evt EventEnvelope) {
	var err error
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Trader panic handling %s for %s: %v", evt.Type, a.instrument, r)
			debug.PrintStack()
			err = fmt.Errorf("panic: %v", r)
		}
		a.publish()
		if evt.ReplyCh != nil {
			evt.ReplyCh <- err
			close(evt.ReplyCh)
		}
		if dur := time.Since(start); dur > 100*time.Millisecond {
			logger.Warnf("Slow event %s for %s took %v", evt.Type, a.instrument, dur)
		}
	}()

	handler, ok := t.registry.Get(evt.Type)
	if !ok {
		err = fmt.Errorf("no handler registered for event type %s", evt.Type)
		logger.Warnf("Trader: %v", err)
		return
	}
	err = handler.Handle(newHandlerContext(t, a), evt.Payload, evt.ID)
	if err != nil {
		logger.Warnf("Trader: %s %s rejected: %v", a.instrument, evt.Type, err)
	}
}

func (a *actor) publish() {
	a.snapshot.Store(&actorSnapshot{State: a.state, Open: a.openOrders()})
}

// openOrders lists the ids of the current position that have not reached a
// terminal status.
func (a *actor) openOrders() []int64 {
	ids := append(a.state.Bracket.IDs(), a.state.ExitOrderID)
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, done := a.terminal[id]; done {
			continue
		}
		out = append(out, id)
	}
	return out
}

// transition moves the actor to phase to. Moving to Flat clears the order ids.
func (t *Trader) transition(a *actor, to Phase, reason string) {
	from := a.state.Phase
	a.state.Phase = to
	a.state.LastTransition = t.nowFn()
	if to == PhaseFlat {
		a.state.Side = ""
		a.state.ActiveOrderID = 0
		a.state.Bracket = Bracket{}
		a.state.ExitOrderID = 0
	}
	metrics.StateTransitions.WithLabelValues(string(from), string(to)).Inc()
	logger.Infof("Trader: %s %s -> %s (%s) active=%d", a.instrument, from, to, reason, a.state.ActiveOrderID)
}

func (t *Trader) indexOrders(instrument string, ids ...int64) {
	for _, id := range ids {
		if id > 0 {
			t.orders.Store(id, instrument)
		}
	}
}

// InstrumentOf returns the instrument an order id was registered for.
func (t *Trader) InstrumentOf(orderID int64) (string, bool) {
	v, ok := t.orders.Load(orderID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// State returns the latest published state of instrument; Flat when unknown.
func (t *Trader) State(instrument string) PositionState {
	instrument = normalizeInstrument(instrument)
	a := t.lookup(instrument)
	if a == nil {
		return flatState(instrument)
	}
	return a.snapshot.Load().State
}

// OpenOrders returns the non-terminal order ids of instrument.
func (t *Trader) OpenOrders(instrument string) []int64 {
	a := t.lookup(normalizeInstrument(instrument))
	if a == nil {
		return nil
	}
	snap := a.snapshot.Load()
	out := make([]int64, len(snap.Open))
	copy(out, snap.Open)
	return out
}

// Snapshot returns the state of every known instrument, sorted by instrument.
func (t *Trader) Snapshot() []PositionState {
	t.mu.Lock()
	actors := make([]*actor, 0, len(t.actors))
	for _, a := range t.actors {
		actors = append(actors, a)
	}
	t.mu.Unlock()
	out := make([]PositionState, 0, len(actors))
	for _, a := range actors {
		out = append(out, a.snapshot.Load().State)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// AllOpenOrders maps every instrument with live orders to their ids.
func (t *Trader) AllOpenOrders() map[string][]int64 {
	out := make(map[string][]int64)
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, a := range t.actors {
		if open := a.snapshot.Load().Open; len(open) > 0 {
			cp := make([]int64, len(open))
			copy(cp, open)
			out[name] = cp
		}
	}
	return out
}
