package trader

import (
	"errors"
	"time"

	"intrabot/internal/gateway/venue"
)

var (
	ErrInvalidTransition = errors.New("trader: invalid transition")
	ErrStopped           = errors.New("trader: stopped")
	ErrEmptyInstrument   = errors.New("trader: empty instrument")
)

// Phase is the lifecycle position of one instrument.
type Phase string

const (
	PhaseFlat         Phase = "Flat"
	PhasePendingEntry Phase = "PendingEntry"
	PhaseLong         Phase = "Long"
	PhaseShort        Phase = "Short"
	PhasePendingExit  Phase = "PendingExit"
)

// Pending reports whether an order is in flight and no new signal may be acted on.
func (p Phase) Pending() bool {
	return p == PhasePendingEntry || p == PhasePendingExit
}

// Holding reports Long or Short.
func (p Phase) Holding() bool {
	return p == PhaseLong || p == PhaseShort
}

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Phase is the holding phase of a filled position on this side.
func (s Side) Phase() Phase {
	if s == SideShort {
		return PhaseShort
	}
	return PhaseLong
}

// EntryAction is the opening order action of the side.
func (s Side) EntryAction() venue.Action {
	if s == SideShort {
		return venue.ActionSell
	}
	return venue.ActionBuy
}

// Bracket holds the ids of the three legs of an entry.
type Bracket struct {
	ParentID     int64 `json:"parent_id"`
	TakeProfitID int64 `json:"take_profit_id"`
	StopLossID   int64 `json:"stop_loss_id"`
}

func (b Bracket) IDs() []int64 {
	out := make([]int64, 0, 3)
	for _, id := range []int64{b.ParentID, b.TakeProfitID, b.StopLossID} {
		if id > 0 {
			out = append(out, id)
		}
	}
	return out
}

// PositionState is the authoritative state of one instrument.
type PositionState struct {
	Instrument     string    `json:"instrument"`
	Phase          Phase     `json:"phase"`
	Side           Side      `json:"side,omitempty"`
	ActiveOrderID  int64     `json:"active_order_id,omitempty"`
	Bracket        Bracket   `json:"bracket"`
	ExitOrderID    int64     `json:"exit_order_id,omitempty"`
	LastTransition time.Time `json:"last_transition"`
}

func flatState(instrument string) PositionState {
	return PositionState{Instrument: instrument, Phase: PhaseFlat}
}

// EventType names what an envelope carries.
type EventType string

const (
	EvtBeginEntry   EventType = "BEGIN_ENTRY"
	EvtBeginExit    EventType = "BEGIN_EXIT"
	EvtSubmitFailed EventType = "SUBMIT_FAILED"
	EvtOrderStatus  EventType = "ORDER_STATUS"
)

// EventEnvelope is one message for an instrument actor. ReplyCh, when set, gets
// the handler result and is closed afterwards.
type EventEnvelope struct {
	ID         string
	Type       EventType
	Instrument string
	Payload    any
	CreatedAt  time.Time
	ReplyCh    chan error
}

type BeginEntryPayload struct {
	Side    Side
	Bracket Bracket
}

type BeginExitPayload struct {
	ExitOrderID int64
}

type SubmitFailedPayload struct {
	OrderID int64
	Reason  string
}

type OrderStatusPayload struct {
	OrderID int64
	Status  venue.OrderStatus
}
