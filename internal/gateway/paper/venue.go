// Package paper is an in-process simulated venue. It honours the transmit
// flag of bracket groups, fills market orders at once and limit or stop
// orders on crossing ticks, cancels the OCA sibling of a filled child and
// reports every status asynchronously in the order it happened.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
	"intrabot/internal/market"
)

const eventBufferSize = 1024

var errInvalidOrder = errors.New("paper: invalid order")

type simOrder struct {
	venue.Order
	status  venue.OrderStatus
	fillPx  float64
	updated time.Time
}

// Venue implements venue.Gateway.
type Venue struct {
	cfg Config

	mu        sync.Mutex
	handler   venue.EventHandler
	connected bool
	closed    bool
	nextID    int64
	orders    map[int64]*simOrder
	prices    map[string]float64
	feeds     map[string]context.CancelFunc
	rng       *rand.Rand

	// ConnectErr, when set, makes Connect fail. Used to simulate an outage.
	ConnectErr error

	events chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup
	nowFn  func() time.Time
}

var _ venue.Gateway = (*Venue)(nil)

func New(cfg Config) *Venue {
	final := cfg.withDefaults()
	v := &Venue{
		cfg:    final,
		nextID: 1,
		orders: make(map[int64]*simOrder),
		prices: make(map[string]float64),
		feeds:  make(map[string]context.CancelFunc),
		rng:    rand.New(rand.NewSource(final.Seed)),
		events: make(chan func(), eventBufferSize),
		stopCh: make(chan struct{}),
		nowFn:  time.Now,
	}
	v.wg.Add(1)
	go v.dispatch()
	return v
}

// dispatch delivers callbacks from one goroutine so they keep their order.
func (v *Venue) dispatch() {
	defer v.wg.Done()
	for {
		select {
		case <-v.stopCh:
			return
		case fn := <-v.events:
			fn()
		}
	}
}

// emit must be called with v.mu held.
func (v *Venue) emit(fn func(h venue.EventHandler)) {
	h := v.handler
	if h == nil || v.closed {
		return
	}
	select {
	case v.events <- func() { fn(h) }:
	default:
		logger.Warnf("paper: event buffer full, callback dropped")
	}
}

func (v *Venue) SetHandler(h venue.EventHandler) {
	v.mu.Lock()
	v.handler = h
	v.mu.Unlock()
}

func (v *Venue) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return venue.ErrClosed
	}
	if v.ConnectErr != nil {
		return v.ConnectErr
	}
	v.connected = true
	return nil
}

func (v *Venue) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected && !v.closed
}

// Disconnect drops the session without closing the venue.
func (v *Venue) Disconnect() {
	v.mu.Lock()
	v.connected = false
	v.mu.Unlock()
}

func (v *Venue) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.connected = false
	for _, cancel := range v.feeds {
		cancel()
	}
	v.feeds = map[string]context.CancelFunc{}
	v.mu.Unlock()
	close(v.stopCh)
	v.wg.Wait()
	return nil
}

func (v *Venue) ready() error {
	if v.closed {
		return venue.ErrClosed
	}
	if !v.connected {
		return venue.ErrNotConnected
	}
	return nil
}

func (v *Venue) NextOrderID(ctx context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ready(); err != nil {
		return 0, err
	}
	id := v.nextID
	v.nextID++
	return id, nil
}

// PlaceOrder accepts o. Orders with Transmit=false are held until an order of
// the same group transmits, which releases the whole group.
func (v *Venue) PlaceOrder(ctx context.Context, o venue.Order) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	o.Instrument = strings.ToUpper(strings.TrimSpace(o.Instrument))
	if err := validate(o); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ready(); err != nil {
		return 0, err
	}
	if o.ID <= 0 {
		o.ID = v.nextID
		v.nextID++
	} else if o.ID >= v.nextID {
		v.nextID = o.ID + 1
	}
	if _, dup := v.orders[o.ID]; dup {
		return 0, fmt.Errorf("%w: duplicate id %d", errInvalidOrder, o.ID)
	}
	so := &simOrder{Order: o, status: venue.StatusPendingSubmit, updated: v.nowFn()}
	v.orders[o.ID] = so
	if !o.Transmit {
		return o.ID, nil
	}
	v.transmitGroup(groupID(o))
	return o.ID, nil
}

func validate(o venue.Order) error {
	if o.Instrument == "" {
		return fmt.Errorf("%w: empty instrument", errInvalidOrder)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %.4f", errInvalidOrder, o.Quantity)
	}
	switch o.Type {
	case venue.OrderTypeMarket:
	case venue.OrderTypeLimit:
		if o.LimitPrice <= 0 {
			return fmt.Errorf("%w: limit price %.4f", errInvalidOrder, o.LimitPrice)
		}
	case venue.OrderTypeStop:
		if o.AuxPrice <= 0 {
			return fmt.Errorf("%w: stop price %.4f", errInvalidOrder, o.AuxPrice)
		}
	default:
		return fmt.Errorf("%w: type %q", errInvalidOrder, o.Type)
	}
	return nil
}

func groupID(o venue.Order) int64 {
	if o.ParentID > 0 {
		return o.ParentID
	}
	return o.ID
}

// transmitGroup activates every held order of the group. Children wait as
// PreSubmitted until their parent fills. Caller holds v.mu.
func (v *Venue) transmitGroup(group int64) {
	parent := v.orders[group]
	if parent != nil && parent.status == venue.StatusPendingSubmit {
		v.setStatus(parent, venue.StatusSubmitted, 0)
	}
	for _, so := range v.children(group) {
		if so.status != venue.StatusPendingSubmit {
			continue
		}
		if parent != nil && parent.status != venue.StatusFilled {
			v.setStatus(so, venue.StatusPreSubmitted, 0)
			continue
		}
		v.setStatus(so, venue.StatusSubmitted, 0)
	}
	if parent != nil {
		if px, ok := v.prices[parent.Instrument]; ok {
			v.match(parent.Instrument, px)
		} else if parent.Type == venue.OrderTypeMarket {
			v.match(parent.Instrument, v.cfg.StartPrice)
		}
	}
}

func (v *Venue) children(parentID int64) []*simOrder {
	var out []*simOrder
	for _, so := range v.orders {
		if so.ParentID == parentID && so.ID != parentID {
			out = append(out, so)
		}
	}
	return out
}

// setStatus records and reports a status. Caller holds v.mu.
func (v *Venue) setStatus(so *simOrder, st venue.OrderStatus, px float64) {
	so.status = st
	so.updated = v.nowFn()
	evt := venue.OrderStatusEvent{
		OrderID:    so.ID,
		Instrument: so.Instrument,
		Status:     st,
		Remaining:  so.Quantity,
		Time:       so.updated,
	}
	if st == venue.StatusFilled {
		so.fillPx = px
		evt.Filled = so.Quantity
		evt.Remaining = 0
		evt.AvgFillPrice = px
	}
	v.emit(func(h venue.EventHandler) { h.OnOrderStatus(evt) })
}

// CancelOrder cancels a live order; cancelling a parent cancels its children.
// Cancelling an order that already finished is a no-op.
func (v *Venue) CancelOrder(ctx context.Context, orderID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ready(); err != nil {
		return err
	}
	so, ok := v.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %d", venue.ErrUnknownOrder, orderID)
	}
	v.cancel(so)
	if so.ParentID == 0 {
		for _, child := range v.children(so.ID) {
			v.cancel(child)
		}
	}
	return nil
}

func (v *Venue) cancel(so *simOrder) {
	if so.status.Terminal() {
		return
	}
	v.setStatus(so, venue.StatusCancelled, 0)
}

// Tick publishes a trade print and matches resting orders against it.
func (v *Venue) Tick(instrument string, price, size float64) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if instrument == "" || price <= 0 || math.IsNaN(price) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.prices[instrument] = price
	evt := market.TickEvent{Instrument: instrument, Price: price, Time: v.nowFn()}
	if size > 0 {
		evt.Size = &size
	}
	v.emit(func(h venue.EventHandler) { h.OnTick(evt) })
	v.match(instrument, price)
}

// LastPrice returns the latest simulated price of instrument.
func (v *Venue) LastPrice(instrument string) (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	px, ok := v.prices[strings.ToUpper(instrument)]
	return px, ok
}

// match fills every working order of instrument the price crosses. Caller
// holds v.mu.
func (v *Venue) match(instrument string, price float64) {
	for {
		so := v.nextCrossed(instrument, price)
		if so == nil {
			return
		}
		v.fill(so, price)
	}
}

func (v *Venue) nextCrossed(instrument string, price float64) *simOrder {
	var best *simOrder
	for _, so := range v.orders {
		if so.Instrument != instrument || so.status != venue.StatusSubmitted {
			continue
		}
		if !crosses(so.Order, price) {
			continue
		}
		if best == nil || so.ID < best.ID {
			best = so
		}
	}
	return best
}

func crosses(o venue.Order, price float64) bool {
	switch o.Type {
	case venue.OrderTypeMarket:
		return true
	case venue.OrderTypeLimit:
		if o.Action == venue.ActionBuy {
			return price <= o.LimitPrice
		}
		return price >= o.LimitPrice
	case venue.OrderTypeStop:
		if o.Action == venue.ActionBuy {
			return price >= o.AuxPrice
		}
		return price <= o.AuxPrice
	}
	return false
}

func fillPrice(o venue.Order, price float64) float64 {
	if o.Type == venue.OrderTypeLimit {
		if o.Action == venue.ActionBuy {
			return math.Min(price, o.LimitPrice)
		}
		return math.Max(price, o.LimitPrice)
	}
	return price
}

func (v *Venue) fill(so *simOrder, price float64) {
	v.setStatus(so, venue.StatusFilled, fillPrice(so.Order, price))
	if so.ParentID == 0 {
		for _, child := range v.children(so.ID) {
			if child.status == venue.StatusPreSubmitted {
				v.setStatus(child, venue.StatusSubmitted, 0)
			}
		}
		return
	}
	// one-cancels-all between the children of a bracket
	for _, sib := range v.children(so.ParentID) {
		if sib.ID != so.ID {
			v.cancel(sib)
		}
	}
}

// OrderStatus returns the current simulated status of an order.
func (v *Venue) OrderStatus(orderID int64) (venue.OrderStatus, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	so, ok := v.orders[orderID]
	if !ok {
		return "", false
	}
	return so.status, true
}
