package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
)

func newEventID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// BeginEntry records a bracket about to be placed: Flat -> PendingEntry.
func (t *Trader) BeginEntry(ctx context.Context, instrument string, side Side, bracket Bracket) error {
	return t.SendSync(ctx, EventEnvelope{
		ID:         newEventID("entry"),
		Type:       EvtBeginEntry,
		Instrument: instrument,
		Payload:    BeginEntryPayload{Side: side, Bracket: bracket},
	})
}

// BeginExit records a liquidating order about to be placed: Long|Short -> PendingExit.
func (t *Trader) BeginExit(ctx context.Context, instrument string, exitOrderID int64) error {
	return t.SendSync(ctx, EventEnvelope{
		ID:         newEventID("exit"),
		Type:       EvtBeginExit,
		Instrument: instrument,
		Payload:    BeginExitPayload{ExitOrderID: exitOrderID},
	})
}

// SubmitFailed reverts the pending phase entered for orderID.
func (t *Trader) SubmitFailed(ctx context.Context, instrument string, orderID int64, reason string) error {
	return t.SendSync(ctx, EventEnvelope{
		ID:         newEventID("failed"),
		Type:       EvtSubmitFailed,
		Instrument: instrument,
		Payload:    SubmitFailedPayload{OrderID: orderID, Reason: reason},
	})
}

// OnOrderStatus queues a broker status for the owning instrument. Statuses of
// unknown orders are logged and dropped.
func (t *Trader) OnOrderStatus(evt venue.OrderStatusEvent) error {
	instrument := normalizeInstrument(evt.Instrument)
	if instrument == "" {
		var ok bool
		instrument, ok = t.InstrumentOf(evt.OrderID)
		if !ok {
			logger.Warnf("Trader: status %s for unknown order %d ignored", evt.Status, evt.OrderID)
			return nil
		}
	}
	created := evt.Time
	if created.IsZero() {
		created = time.Now()
	}
	if err := t.Send(EventEnvelope{
		ID:         fmt.Sprintf("status-%d-%s", evt.OrderID, evt.Status),
		Type:       EvtOrderStatus,
		Instrument: instrument,
		Payload:    OrderStatusPayload{OrderID: evt.OrderID, Status: evt.Status},
		CreatedAt:  created,
	}); err != nil {
		return fmt.Errorf("order status %d: %w", evt.OrderID, err)
	}
	return nil
}

// ApplyOrderStatus is OnOrderStatus that waits until the status was applied.
func (t *Trader) ApplyOrderStatus(ctx context.Context, evt venue.OrderStatusEvent) error {
	instrument := normalizeInstrument(evt.Instrument)
	if instrument == "" {
		var ok bool
		if instrument, ok = t.InstrumentOf(evt.OrderID); !ok {
			return nil
		}
	}
	return t.SendSync(ctx, EventEnvelope{
		ID:         fmt.Sprintf("status-%d-%s", evt.OrderID, evt.Status),
		Type:       EvtOrderStatus,
		Instrument: instrument,
		Payload:    OrderStatusPayload{OrderID: evt.OrderID, Status: evt.Status},
	})
}
