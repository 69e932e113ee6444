package trader

import (
	"context"
	"fmt"
	"time"

	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
)

type BeginEntryHandler struct{}

func (h *BeginEntryHandler) Type() EventType { return EvtBeginEntry }

func (h *BeginEntryHandler) Handle(ctx *HandlerContext, payload any, _ string) error {
	p, ok := payload.(BeginEntryPayload)
	if !ok {
		return fmt.Errorf("begin entry: unexpected payload %T", payload)
	}
	st := ctx.State()
	if st.Phase != PhaseFlat {
		return fmt.Errorf("%w: begin entry from %s", ErrInvalidTransition, st.Phase)
	}
	if p.Bracket.ParentID <= 0 {
		return fmt.Errorf("begin entry: parent order id missing")
	}
	if p.Side != SideLong && p.Side != SideShort {
		return fmt.Errorf("begin entry: invalid side %q", p.Side)
	}
	t := ctx.Trader()
	t.indexOrders(st.Instrument, p.Bracket.IDs()...)
	st.Side = p.Side
	st.Bracket = p.Bracket
	st.ActiveOrderID = p.Bracket.ParentID
	st.ExitOrderID = 0
	t.transition(ctx.actor, PhasePendingEntry, "entry submitted")
	return nil
}

type BeginExitHandler struct{}

func (h *BeginExitHandler) Type() EventType { return EvtBeginExit }

func (h *BeginExitHandler) Handle(ctx *HandlerContext, payload any, _ string) error {
	p, ok := payload.(BeginExitPayload)
	if !ok {
		return fmt.Errorf("begin exit: unexpected payload %T", payload)
	}
	st := ctx.State()
	if !st.Phase.Holding() {
		return fmt.Errorf("%w: begin exit from %s", ErrInvalidTransition, st.Phase)
	}
	if p.ExitOrderID <= 0 {
		return fmt.Errorf("begin exit: exit order id missing")
	}
	t := ctx.Trader()
	t.indexOrders(st.Instrument, p.ExitOrderID)
	st.ExitOrderID = p.ExitOrderID
	st.ActiveOrderID = p.ExitOrderID
	t.transition(ctx.actor, PhasePendingExit, "exit submitted")
	return nil
}

// SubmitFailedHandler undoes a Begin* whose orders never reached the venue.
type SubmitFailedHandler struct{}

func (h *SubmitFailedHandler) Type() EventType { return EvtSubmitFailed }

func (h *SubmitFailedHandler) Handle(ctx *HandlerContext, payload any, _ string) error {
	p, ok := payload.(SubmitFailedPayload)
	if !ok {
		return fmt.Errorf("submit failed: unexpected payload %T", payload)
	}
	st := ctx.State()
	t := ctx.Trader()
	reason := "submit failed"
	if p.Reason != "" {
		reason = "submit failed: " + p.Reason
	}
	switch st.Phase {
	case PhasePendingEntry:
		if p.OrderID > 0 && p.OrderID != st.Bracket.ParentID {
			return fmt.Errorf("submit failed: order %d is not the pending entry %d", p.OrderID, st.Bracket.ParentID)
		}
		t.transition(ctx.actor, PhaseFlat, reason)
	case PhasePendingExit:
		if p.OrderID > 0 && p.OrderID != st.ExitOrderID {
			return fmt.Errorf("submit failed: order %d is not the pending exit %d", p.OrderID, st.ExitOrderID)
		}
		st.ExitOrderID = 0
		st.ActiveOrderID = st.Bracket.ParentID
		t.transition(ctx.actor, st.Side.Phase(), reason)
	default:
		return fmt.Errorf("%w: submit failed in %s", ErrInvalidTransition, st.Phase)
	}
	return nil
}

// OrderStatusHandler folds broker statuses into the phase.
//
// A status for an id already seen in a terminal status is stale and ignored,
// which makes redelivered or reordered callbacks harmless.
type OrderStatusHandler struct{}

func (h *OrderStatusHandler) Type() EventType { return EvtOrderStatus }

func (h *OrderStatusHandler) Handle(ctx *HandlerContext, payload any, _ string) error {
	p, ok := payload.(OrderStatusPayload)
	if !ok {
		return fmt.Errorf("order status: unexpected payload %T", payload)
	}
	a := ctx.actor
	t := ctx.Trader()
	if prev, done := a.terminal[p.OrderID]; done {
		logger.Debugf("Trader: %s order %d %s ignored, already %s", a.instrument, p.OrderID, p.Status, prev)
		return nil
	}
	if p.Status.Terminal() {
		a.terminal[p.OrderID] = p.Status
	}
	t.journalStatus(p.OrderID, p.Status)

	st := ctx.State()
	role := roleOf(st, p.OrderID)
	if role == roleNone {
		logger.Debugf("Trader: %s order %d %s not part of %s position, ignored", a.instrument, p.OrderID, p.Status, st.Phase)
		return nil
	}

	switch st.Phase {
	case PhasePendingEntry:
		if role == roleTakeProfit || role == roleStopLoss {
			// A child fill can be delivered before the parent's own status.
			if p.Status == venue.StatusFilled {
				t.transition(a, PhaseFlat, string(role)+" filled")
			}
			return nil
		}
		if role != roleParent {
			return nil
		}
		switch p.Status {
		case venue.StatusSubmitted, venue.StatusFilled:
			t.transition(a, st.Side.Phase(), "entry "+string(p.Status))
		case venue.StatusCancelled, venue.StatusInactive:
			t.transition(a, PhaseFlat, "entry "+string(p.Status))
		}
	case PhaseLong, PhaseShort:
		switch {
		case role == roleParent && (p.Status == venue.StatusCancelled || p.Status == venue.StatusInactive):
			t.transition(a, PhaseFlat, "entry "+string(p.Status))
		case (role == roleTakeProfit || role == roleStopLoss) && p.Status == venue.StatusFilled:
			t.transition(a, PhaseFlat, string(role)+" filled")
		}
	case PhasePendingExit:
		switch {
		case role == roleExit && p.Status.Terminal():
			t.transition(a, PhaseFlat, "exit "+string(p.Status))
		case (role == roleTakeProfit || role == roleStopLoss) && p.Status == venue.StatusFilled:
			t.transition(a, PhaseFlat, string(role)+" filled")
		}
	}
	return nil
}

type orderRole string

const (
	roleNone       orderRole = ""
	roleParent     orderRole = "entry"
	roleTakeProfit orderRole = "take_profit"
	roleStopLoss   orderRole = "stop_loss"
	roleExit       orderRole = "exit"
)

func roleOf(st *PositionState, id int64) orderRole {
	if id <= 0 {
		return roleNone
	}
	switch id {
	case st.Bracket.ParentID:
		return roleParent
	case st.Bracket.TakeProfitID:
		return roleTakeProfit
	case st.Bracket.StopLossID:
		return roleStopLoss
	case st.ExitOrderID:
		return roleExit
	}
	return roleNone
}

func (t *Trader) journalStatus(orderID int64, status venue.OrderStatus) {
	if t.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := t.journal.UpdateOrderStatus(ctx, orderID, string(status)); err != nil {
		logger.Warnf("Trader: journal status %d %s failed: %v", orderID, status, err)
	}
}
