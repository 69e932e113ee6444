package paper

import (
	"context"
	"sync"
	"testing"
	"time"

	"intrabot/internal/gateway/venue"
	"intrabot/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	statuses []venue.OrderStatusEvent
	ticks    []market.TickEvent
	bars     []market.Bar
	ended    []string
}

func (r *recorder) OnTick(evt market.TickEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, evt)
}

func (r *recorder) OnHistoricalBar(_ string, bar market.Bar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bars = append(r.bars, bar)
}

func (r *recorder) OnHistoricalBarsEnd(instrument string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, instrument)
}

func (r *recorder) OnOrderStatus(evt venue.OrderStatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, evt)
}

// last returns the latest status reported for id.
func (r *recorder) last(id int64) venue.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st venue.OrderStatus
	for _, evt := range r.statuses {
		if evt.OrderID == id {
			st = evt.Status
		}
	}
	return st
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func newTestVenue(t *testing.T) (*Venue, *recorder) {
	t.Helper()
	v := New(Config{Seed: 7})
	rec := &recorder{}
	v.SetHandler(rec)
	require.NoError(t, v.Connect(context.Background()))
	t.Cleanup(func() { _ = v.Close() })
	return v, rec
}

func placeBracket(t *testing.T, v *Venue) (int64, int64, int64) {
	t.Helper()
	ctx := context.Background()
	parent, err := v.NextOrderID(ctx)
	require.NoError(t, err)
	tp, _ := v.NextOrderID(ctx)
	sl, _ := v.NextOrderID(ctx)
	_, err = v.PlaceOrder(ctx, venue.Order{ID: parent, Instrument: "AAPL", Action: venue.ActionBuy, Type: venue.OrderTypeLimit, Quantity: 10, LimitPrice: 99})
	require.NoError(t, err)
	_, err = v.PlaceOrder(ctx, venue.Order{ID: tp, ParentID: parent, Instrument: "AAPL", Action: venue.ActionSell, Type: venue.OrderTypeLimit, Quantity: 10, LimitPrice: 102})
	require.NoError(t, err)
	_, err = v.PlaceOrder(ctx, venue.Order{ID: sl, ParentID: parent, Instrument: "AAPL", Action: venue.ActionSell, Type: venue.OrderTypeStop, Quantity: 10, AuxPrice: 98, Transmit: true})
	require.NoError(t, err)
	return parent, tp, sl
}

func TestVenue_BracketHeldUntilTransmit(t *testing.T) {
	v, rec := newTestVenue(t)
	ctx := context.Background()
	_, err := v.PlaceOrder(ctx, venue.Order{ID: 1, Instrument: "AAPL", Action: venue.ActionBuy, Type: venue.OrderTypeLimit, Quantity: 10, LimitPrice: 99})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count())

	_, err = v.PlaceOrder(ctx, venue.Order{ID: 2, ParentID: 1, Instrument: "AAPL", Action: venue.ActionSell, Type: venue.OrderTypeStop, Quantity: 10, AuxPrice: 98, Transmit: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, venue.StatusSubmitted, rec.last(1))
	assert.Equal(t, venue.StatusPreSubmitted, rec.last(2))
}

func TestVenue_FillsOnCrossingAndCancelsSibling(t *testing.T) {
	v, rec := newTestVenue(t)
	parent, tp, sl := placeBracket(t, v)

	v.Tick("AAPL", 100, 50)
	st, _ := v.OrderStatus(parent)
	assert.Equal(t, venue.StatusSubmitted, st)

	v.Tick("AAPL", 98.9, 50)
	require.Eventually(t, func() bool { return rec.last(parent) == venue.StatusFilled }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return rec.last(tp) == venue.StatusSubmitted }, time.Second, 5*time.Millisecond)
	assert.Equal(t, venue.StatusSubmitted, rec.last(sl))

	v.Tick("AAPL", 102.5, 50)
	require.Eventually(t, func() bool { return rec.last(sl) == venue.StatusCancelled }, time.Second, 5*time.Millisecond)
	assert.Equal(t, venue.StatusFilled, rec.last(tp))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var fill venue.OrderStatusEvent
	for _, evt := range rec.statuses {
		if evt.OrderID == tp && evt.Status == venue.StatusFilled {
			fill = evt
		}
	}
	assert.InDelta(t, 102.5, fill.AvgFillPrice, 1e-9)
	assert.Len(t, rec.ticks, 3)
}

func TestVenue_StopTriggers(t *testing.T) {
	v, rec := newTestVenue(t)
	parent, tp, sl := placeBracket(t, v)
	v.Tick("AAPL", 98.5, 1)
	require.Eventually(t, func() bool { return rec.last(parent) == venue.StatusFilled }, time.Second, 5*time.Millisecond)

	v.Tick("AAPL", 97.9, 1)
	require.Eventually(t, func() bool { return rec.last(sl) == venue.StatusFilled }, time.Second, 5*time.Millisecond)
	assert.Equal(t, venue.StatusCancelled, rec.last(tp))
}

func TestVenue_MarketOrderFillsImmediately(t *testing.T) {
	v, rec := newTestVenue(t)
	v.Tick("MSFT", 50, 1)
	id, err := v.PlaceOrder(context.Background(), venue.Order{Instrument: "msft", Action: venue.ActionSell, Type: venue.OrderTypeMarket, Quantity: 5, Transmit: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.last(id) == venue.StatusFilled }, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var seq []venue.OrderStatus
	for _, evt := range rec.statuses {
		if evt.OrderID == id {
			seq = append(seq, evt.Status)
			assert.Equal(t, "MSFT", evt.Instrument)
		}
	}
	assert.Equal(t, []venue.OrderStatus{venue.StatusSubmitted, venue.StatusFilled}, seq)
}

func TestVenue_CancelParentCancelsChildren(t *testing.T) {
	v, rec := newTestVenue(t)
	parent, tp, sl := placeBracket(t, v)
	require.NoError(t, v.CancelOrder(context.Background(), parent))
	require.Eventually(t, func() bool {
		return rec.last(parent) == venue.StatusCancelled &&
			rec.last(tp) == venue.StatusCancelled &&
			rec.last(sl) == venue.StatusCancelled
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, v.CancelOrder(context.Background(), parent))
	assert.ErrorIs(t, v.CancelOrder(context.Background(), 999), venue.ErrUnknownOrder)
}

func TestVenue_RequiresConnection(t *testing.T) {
	v := New(Config{Seed: 1})
	t.Cleanup(func() { _ = v.Close() })
	ctx := context.Background()

	_, err := v.NextOrderID(ctx)
	assert.ErrorIs(t, err, venue.ErrNotConnected)
	_, err = v.PlaceOrder(ctx, venue.Order{Instrument: "AAPL", Action: venue.ActionBuy, Type: venue.OrderTypeMarket, Quantity: 1, Transmit: true})
	assert.ErrorIs(t, err, venue.ErrNotConnected)

	require.NoError(t, v.Connect(ctx))
	assert.True(t, v.Connected())
	v.Disconnect()
	assert.False(t, v.Connected())

	require.NoError(t, v.Close())
	assert.ErrorIs(t, v.Connect(ctx), venue.ErrClosed)
}

func TestVenue_RejectsInvalidOrders(t *testing.T) {
	v, _ := newTestVenue(t)
	ctx := context.Background()
	_, err := v.PlaceOrder(ctx, venue.Order{Instrument: "AAPL", Action: venue.ActionBuy, Type: venue.OrderTypeLimit, Quantity: 1})
	assert.ErrorIs(t, err, errInvalidOrder)
	_, err = v.PlaceOrder(ctx, venue.Order{Instrument: "AAPL", Action: venue.ActionBuy, Type: venue.OrderTypeStop, Quantity: 1, LimitPrice: 5})
	assert.ErrorIs(t, err, errInvalidOrder)
	_, err = v.PlaceOrder(ctx, venue.Order{Action: venue.ActionBuy, Type: venue.OrderTypeMarket, Quantity: 1})
	assert.ErrorIs(t, err, errInvalidOrder)
}

func TestVenue_HistoricalBars(t *testing.T) {
	v, rec := newTestVenue(t)
	now := time.Date(2026, 10, 19, 14, 30, 20, 0, time.UTC)
	v.nowFn = func() time.Time { return now }

	require.NoError(t, v.RequestHistoricalBars(context.Background(), "SPY", now.Add(-10*time.Minute)))
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.ended) == 1
	}, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	// [14:20:20 truncated to 14:20, 14:30) is ten minutes
	require.Len(t, rec.bars, 10)
	for i, b := range rec.bars {
		assert.Equal(t, "SPY", b.Instrument)
		assert.Equal(t, now.Add(-10*time.Minute).Truncate(time.Minute).Add(time.Duration(i)*time.Minute), b.Time)
		assert.GreaterOrEqual(t, b.High, b.Low)
		assert.GreaterOrEqual(t, b.High, b.Open)
		assert.LessOrEqual(t, b.Low, b.Close)
		assert.Positive(t, b.Volume)
	}
	last, ok := v.LastPrice("SPY")
	require.True(t, ok)
	assert.Equal(t, rec.bars[len(rec.bars)-1].Close, last)
}
