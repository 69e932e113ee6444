package venue

import "fmt"

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Opposite returns the closing action.
func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

type OrderType string

const (
	OrderTypeLimit  OrderType = "LMT"
	OrderTypeStop   OrderType = "STP"
	OrderTypeMarket OrderType = "MKT"
)

type OrderStatus string

const (
	StatusPendingSubmit OrderStatus = "PendingSubmit"
	StatusPreSubmitted  OrderStatus = "PreSubmitted"
	StatusSubmitted     OrderStatus = "Submitted"
	StatusFilled        OrderStatus = "Filled"
	StatusCancelled     OrderStatus = "Cancelled"
	StatusInactive      OrderStatus = "Inactive"
)

// Terminal reports whether no further status can follow s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusInactive:
		return true
	}
	return false
}

// Order mirrors a broker order ticket. LimitPrice is used by LMT orders and
// AuxPrice is the trigger of STP orders.
type Order struct {
	ID         int64     `json:"id"`
	ParentID   int64     `json:"parent_id,omitempty"`
	Instrument string    `json:"instrument"`
	Action     Action    `json:"action"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"quantity"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	AuxPrice   float64   `json:"aux_price,omitempty"`
	Transmit   bool      `json:"transmit"`
	OutsideRTH bool      `json:"outside_rth"`
}

func (o Order) String() string {
	switch o.Type {
	case OrderTypeStop:
		return fmt.Sprintf("#%d %s %s %.0f %s @stop %.2f", o.ID, o.Action, o.Instrument, o.Quantity, o.Type, o.AuxPrice)
	case OrderTypeMarket:
		return fmt.Sprintf("#%d %s %s %.0f %s", o.ID, o.Action, o.Instrument, o.Quantity, o.Type)
	default:
		return fmt.Sprintf("#%d %s %s %.0f %s @%.2f", o.ID, o.Action, o.Instrument, o.Quantity, o.Type, o.LimitPrice)
	}
}

// BracketOrder is an entry with its take-profit and stop-loss children. The
// children carry the entry id as ParentID and only the stop-loss transmits, which
// releases the whole group at the venue.
type BracketOrder struct {
	Entry      Order `json:"entry"`
	TakeProfit Order `json:"take_profit"`
	StopLoss   Order `json:"stop_loss"`
}

// Legs returns the orders in submission order.
func (b BracketOrder) Legs() []Order {
	return []Order{b.Entry, b.TakeProfit, b.StopLoss}
}
