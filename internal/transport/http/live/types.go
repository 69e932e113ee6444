package livehttp

import (
	"time"

	"intrabot/internal/trader"
)

// PositionView is the JSON shape of one instrument's position.
type PositionView struct {
	Instrument     string    `json:"instrument"`
	Phase          string    `json:"phase"`
	Side           string    `json:"side,omitempty"`
	ActiveOrderID  int64     `json:"active_order_id,omitempty"`
	ParentID       int64     `json:"parent_id,omitempty"`
	TakeProfitID   int64     `json:"take_profit_id,omitempty"`
	StopLossID     int64     `json:"stop_loss_id,omitempty"`
	ExitOrderID    int64     `json:"exit_order_id,omitempty"`
	OpenOrders     []int64   `json:"open_orders,omitempty"`
	LastTransition time.Time `json:"last_transition,omitempty"`
}

func NewPositionView(st trader.PositionState, open []int64) PositionView {
	return PositionView{
		Instrument:     st.Instrument,
		Phase:          string(st.Phase),
		Side:           string(st.Side),
		ActiveOrderID:  st.ActiveOrderID,
		ParentID:       st.Bracket.ParentID,
		TakeProfitID:   st.Bracket.TakeProfitID,
		StopLossID:     st.Bracket.StopLossID,
		ExitOrderID:    st.ExitOrderID,
		OpenOrders:     open,
		LastTransition: st.LastTransition,
	}
}

type CoordinatorStatus struct {
	QueueDepth  int      `json:"queue_depth"`
	Latched     []string `json:"latched"`
	Instruments []string `json:"instruments"`
	// EntriesOpen is false outside the session, during the warm-up and after the cutoff.
	EntriesOpen bool `json:"entries_open"`
}

// OrderView is a journaled order that has not reached a terminal status.
type OrderView struct {
	OrderID     int64     `json:"order_id"`
	ParentID    int64     `json:"parent_id,omitempty"`
	Instrument  string    `json:"instrument"`
	Role        string    `json:"role"`
	Action      string    `json:"action"`
	Type        string    `json:"type"`
	Quantity    float64   `json:"quantity"`
	LimitPrice  float64   `json:"limit_price,omitempty"`
	AuxPrice    float64   `json:"aux_price,omitempty"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}
