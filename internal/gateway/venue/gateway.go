// Package venue is the contract between the pipeline and the broker gateway.
package venue

import (
	"context"
	"errors"
	"time"

	"intrabot/internal/market"
)

var (
	ErrNotConnected = errors.New("venue: not connected")
	ErrClosed       = errors.New("venue: closed")
	ErrUnknownOrder = errors.New("venue: unknown order")
)

// Gateway is the broker client. Historical bars and order statuses are delivered
// asynchronously to the EventHandler set with SetHandler.
type Gateway interface {
	Connect(ctx context.Context) error
	Connected() bool
	SubscribeTicks(ctx context.Context, instrument string) error
	RequestHistoricalBars(ctx context.Context, instrument string, since time.Time) error
	// NextOrderID reserves one order id; consecutive calls return increasing ids.
	NextOrderID(ctx context.Context) (int64, error)
	PlaceOrder(ctx context.Context, order Order) (int64, error)
	CancelOrder(ctx context.Context, orderID int64) error
	SetHandler(h EventHandler)
	Close() error
}

// EventHandler receives gateway callbacks. Calls may come from any goroutine.
type EventHandler interface {
	OnTick(evt market.TickEvent)
	OnHistoricalBar(instrument string, bar market.Bar)
	OnHistoricalBarsEnd(instrument string)
	OnOrderStatus(evt OrderStatusEvent)
}

// OrderStatusEvent is one broker status report. Instrument may be empty when the
// venue does not echo it.
type OrderStatusEvent struct {
	OrderID      int64
	Instrument   string
	Status       OrderStatus
	Filled       float64
	Remaining    float64
	AvgFillPrice float64
	Time         time.Time
}
