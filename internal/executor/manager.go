// Package executor turns approved signals into venue orders.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
	"intrabot/internal/metrics"
	"intrabot/internal/pkg/circuit"
	"intrabot/internal/pkg/pricing"
	"intrabot/internal/pkg/retry"
	"intrabot/internal/store"
	"intrabot/internal/trader"
)

var (
	// ErrGatewayUnavailable means the gateway stayed down after the reconnect attempt.
	ErrGatewayUnavailable = errors.New("executor: gateway unavailable")
	ErrBreakerOpen        = fmt.Errorf("executor: submissions paused: %w", circuit.ErrOpen)
	ErrNoPosition         = errors.New("executor: no open position")
)

// PositionBook is the part of the position state machine the manager drives.
type PositionBook interface {
	State(instrument string) trader.PositionState
	Snapshot() []trader.PositionState
	OpenOrders(instrument string) []int64
	AllOpenOrders() map[string][]int64
	BeginEntry(ctx context.Context, instrument string, side trader.Side, bracket trader.Bracket) error
	BeginExit(ctx context.Context, instrument string, exitOrderID int64) error
	SubmitFailed(ctx context.Context, instrument string, orderID int64, reason string) error
}

type Config struct {
	Quantity      float64
	Offsets       pricing.Offsets
	OutsideRTH    bool
	SubmitTimeout time.Duration
	Backoff       retry.Backoff
}

// Manager is the order lifecycle manager.
type Manager struct {
	gw      venue.Gateway
	book    PositionBook
	journal store.OrderJournal
	breaker *circuit.CircuitBreaker
	cfg     Config

	connMu sync.Mutex
}

// NewManager builds a manager. journal and breaker may be nil.
func NewManager(gw venue.Gateway, book PositionBook, journal store.OrderJournal, breaker *circuit.CircuitBreaker, cfg Config) *Manager {
	if cfg.Quantity <= 0 {
		cfg.Quantity = 1
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	return &Manager{gw: gw, book: book, journal: journal, breaker: breaker, cfg: cfg}
}

// ensureConnected makes exactly one reconnect attempt, after the backoff delay,
// when the gateway is down.
func (m *Manager) ensureConnected(ctx context.Context) error {
	if m.gw.Connected() {
		return nil
	}
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.gw.Connected() {
		return nil
	}
	logger.Event(logLevelWarn, "gateway_disconnected", "action", "reconnect")
	if err := m.cfg.Backoff.Sleep(ctx, 1); err != nil {
		return err
	}
	err := m.gw.Connect(ctx)
	if err == nil && m.gw.Connected() {
		metrics.Reconnects.WithLabelValues("ok").Inc()
		logger.Event(logLevelInfo, "gateway_reconnected")
		return nil
	}
	metrics.Reconnects.WithLabelValues("failed").Inc()
	logger.Event(logLevelError, "gateway_unavailable", "error", fmt.Sprint(err))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return ErrGatewayUnavailable
}

func (m *Manager) allow() error {
	if m.breaker != nil && !m.breaker.Allow() {
		metrics.SubmissionFailures.WithLabelValues("breaker_open").Inc()
		return ErrBreakerOpen
	}
	return nil
}

func (m *Manager) recordResult(err error) {
	if m.breaker == nil {
		return
	}
	if err != nil {
		m.breaker.RecordFailure()
		return
	}
	m.breaker.RecordSuccess()
}

// BuildBracket prices and assembles the three legs of an entry.
func (m *Manager) BuildBracket(instrument string, side trader.Side, ref float64, ids [3]int64) (venue.BracketOrder, error) {
	lv, err := pricing.BracketLevels(ref, string(side), m.cfg.Offsets)
	if err != nil {
		return venue.BracketOrder{}, err
	}
	open := side.EntryAction()
	closeAct := open.Opposite()
	entry := venue.Order{
		ID: ids[0], Instrument: instrument, Action: open, Type: venue.OrderTypeLimit,
		Quantity: m.cfg.Quantity, LimitPrice: lv.Entry, Transmit: false, OutsideRTH: m.cfg.OutsideRTH,
	}
	tp := venue.Order{
		ID: ids[1], ParentID: ids[0], Instrument: instrument, Action: closeAct, Type: venue.OrderTypeLimit,
		Quantity: m.cfg.Quantity, LimitPrice: lv.Target, Transmit: false, OutsideRTH: m.cfg.OutsideRTH,
	}
	sl := venue.Order{
		ID: ids[2], ParentID: ids[0], Instrument: instrument, Action: closeAct, Type: venue.OrderTypeStop,
		Quantity: m.cfg.Quantity, AuxPrice: lv.Stop, Transmit: true, OutsideRTH: m.cfg.OutsideRTH,
	}
	return venue.BracketOrder{Entry: entry, TakeProfit: tp, StopLoss: sl}, nil
}

// SubmitEntry places a bracket for instrument. The position moves to
// PendingEntry before the first leg is sent so early callbacks find their ids;
// any failure afterwards reverts it.
func (m *Manager) SubmitEntry(ctx context.Context, instrument string, side trader.Side, ref float64) (venue.BracketOrder, error) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if st := m.book.State(instrument); st.Phase != trader.PhaseFlat {
		return venue.BracketOrder{}, fmt.Errorf("%w: %s is %s", trader.ErrInvalidTransition, instrument, st.Phase)
	}
	if err := m.allow(); err != nil {
		return venue.BracketOrder{}, err
	}
	if err := m.ensureConnected(ctx); err != nil {
		metrics.SubmissionFailures.WithLabelValues("gateway_unavailable").Inc()
		return venue.BracketOrder{}, err
	}

	var ids [3]int64
	for i := range ids {
		id, err := m.gw.NextOrderID(ctx)
		if err != nil {
			m.recordResult(err)
			metrics.SubmissionFailures.WithLabelValues("order_id").Inc()
			return venue.BracketOrder{}, fmt.Errorf("reserve order id: %w", err)
		}
		ids[i] = id
	}
	bracket, err := m.BuildBracket(instrument, side, ref, ids)
	if err != nil {
		metrics.SubmissionFailures.WithLabelValues("pricing").Inc()
		return venue.BracketOrder{}, err
	}

	if err := m.book.BeginEntry(ctx, instrument, side, trader.Bracket{
		ParentID: ids[0], TakeProfitID: ids[1], StopLossID: ids[2],
	}); err != nil {
		return venue.BracketOrder{}, err
	}

	roles := []string{"entry", "take_profit", "stop_loss"}
	placed := make([]int64, 0, 3)
	for i, leg := range bracket.Legs() {
		if err := m.place(ctx, leg, roles[i]); err != nil {
			m.rollbackEntry(instrument, ids[0], placed, err)
			m.recordResult(err)
			return venue.BracketOrder{}, err
		}
		placed = append(placed, leg.ID)
	}
	m.recordResult(nil)
	logger.Infof("executor: %s %s bracket placed entry=%.2f target=%.2f stop=%.2f rr=%.2f ids=%v",
		instrument, side, bracket.Entry.LimitPrice, bracket.TakeProfit.LimitPrice, bracket.StopLoss.AuxPrice,
		pricing.Ratio(pricing.Levels{
			Entry:  bracket.Entry.LimitPrice,
			Target: bracket.TakeProfit.LimitPrice,
			Stop:   bracket.StopLoss.AuxPrice,
		}), ids)
	return bracket, nil
}

func (m *Manager) rollbackEntry(instrument string, parentID int64, placed []int64, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SubmitTimeout)
	defer cancel()
	for _, id := range placed {
		if err := m.gw.CancelOrder(ctx, id); err != nil {
			logger.Warnf("executor: rollback cancel %d failed: %v", id, err)
		}
	}
	if err := m.book.SubmitFailed(ctx, instrument, parentID, cause.Error()); err != nil {
		logger.Errorf("executor: %s revert after failed entry: %v", instrument, err)
	}
}

// SubmitExit cancels the open bracket legs of instrument and liquidates with a
// market order on the opposite side.
func (m *Manager) SubmitExit(ctx context.Context, instrument string) (venue.Order, error) {
	st := m.book.State(instrument)
	if !st.Phase.Holding() {
		return venue.Order{}, fmt.Errorf("%w: %s is %s", ErrNoPosition, instrument, st.Phase)
	}
	if err := m.allow(); err != nil {
		return venue.Order{}, err
	}
	if err := m.ensureConnected(ctx); err != nil {
		metrics.SubmissionFailures.WithLabelValues("gateway_unavailable").Inc()
		return venue.Order{}, err
	}

	legs := m.book.OpenOrders(instrument)
	id, err := m.gw.NextOrderID(ctx)
	if err != nil {
		m.recordResult(err)
		return venue.Order{}, fmt.Errorf("reserve order id: %w", err)
	}
	order := venue.Order{
		ID:         id,
		Instrument: st.Instrument,
		Action:     st.Side.EntryAction().Opposite(),
		Type:       venue.OrderTypeMarket,
		Quantity:   m.cfg.Quantity,
		Transmit:   true,
		OutsideRTH: m.cfg.OutsideRTH,
	}
	// PendingExit first, so the bracket cancellations below cannot flatten the book.
	if err := m.book.BeginExit(ctx, instrument, id); err != nil {
		return venue.Order{}, err
	}
	m.cancelOrders(ctx, legs)
	if err := m.place(ctx, order, "exit"); err != nil {
		rctx, cancel := context.WithTimeout(context.Background(), m.cfg.SubmitTimeout)
		defer cancel()
		if ferr := m.book.SubmitFailed(rctx, instrument, id, err.Error()); ferr != nil {
			logger.Errorf("executor: %s revert after failed exit: %v", instrument, ferr)
		}
		if len(legs) > 0 {
			// The legs are already cancelled; the position stays open with no stop.
			metrics.UnprotectedPositions.WithLabelValues(st.Instrument).Inc()
			logger.Event(logLevelError, "position_unprotected",
				"instrument", st.Instrument, "side", string(st.Side), "cancelled_legs", fmt.Sprint(legs), "error", err.Error())
		}
		m.recordResult(err)
		return venue.Order{}, err
	}
	m.recordResult(nil)
	logger.Infof("executor: %s exit placed %s", instrument, order)
	return order, nil
}

// Flatten closes whatever instrument holds: a position is exited and a pending
// entry is cancelled. A pending exit is left to finish.
func (m *Manager) Flatten(ctx context.Context, instrument string) error {
	st := m.book.State(instrument)
	switch {
	case st.Phase.Holding():
		_, err := m.SubmitExit(ctx, instrument)
		return err
	case st.Phase == trader.PhasePendingEntry:
		if err := m.ensureConnected(ctx); err != nil {
			return err
		}
		return m.cancelOrders(ctx, m.book.OpenOrders(instrument))
	}
	return nil
}

// FlattenAll runs Flatten for every known instrument.
func (m *Manager) FlattenAll(ctx context.Context) error {
	var errs []error
	for _, st := range m.book.Snapshot() {
		if err := m.Flatten(ctx, st.Instrument); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.Instrument, err))
		}
	}
	return errors.Join(errs...)
}

// CancelAll cancels every non-terminal order the position book knows about.
func (m *Manager) CancelAll(ctx context.Context) error {
	open := m.book.AllOpenOrders()
	if len(open) == 0 {
		return nil
	}
	if err := m.ensureConnected(ctx); err != nil {
		return err
	}
	var errs []error
	for instrument, ids := range open {
		if err := m.cancelOrders(ctx, ids); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", instrument, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) cancelOrders(ctx context.Context, ids []int64) error {
	var errs []error
	for _, id := range ids {
		cctx, cancel := context.WithTimeout(ctx, m.cfg.SubmitTimeout)
		err := m.gw.CancelOrder(cctx, id)
		cancel()
		if err != nil && !errors.Is(err, venue.ErrUnknownOrder) {
			logger.Warnf("executor: cancel %d failed: %v", id, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// place journals and sends one order.
func (m *Manager) place(ctx context.Context, o venue.Order, role string) error {
	m.journalOrder(o, role)
	pctx, cancel := context.WithTimeout(ctx, m.cfg.SubmitTimeout)
	defer cancel()
	if _, err := m.gw.PlaceOrder(pctx, o); err != nil {
		reason := "place"
		if errors.Is(err, venue.ErrNotConnected) {
			reason = "gateway_unavailable"
			err = fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		metrics.SubmissionFailures.WithLabelValues(reason).Inc()
		m.journalStatus(o.ID, venue.StatusInactive)
		logger.Event(logLevelError, "order_submit_failed", "order", o.String(), "error", err.Error())
		return fmt.Errorf("place %s %s: %w", role, o, err)
	}
	metrics.Orders.WithLabelValues(string(o.Type), string(o.Action)).Inc()
	return nil
}
