package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
	"intrabot/internal/store"
)

const (
	logLevelInfo  = slog.LevelInfo
	logLevelWarn  = slog.LevelWarn
	logLevelError = slog.LevelError
)

func (m *Manager) journalOrder(o venue.Order, role string) {
	if m.journal == nil {
		return
	}
	raw, err := json.Marshal(o)
	if err != nil {
		logger.Warnf("executor: marshal order %d: %v", o.ID, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.journal.RecordOrder(ctx, store.OrderRecord{
		OrderID:     o.ID,
		ParentID:    o.ParentID,
		Instrument:  o.Instrument,
		Role:        role,
		Action:      string(o.Action),
		Type:        string(o.Type),
		Quantity:    o.Quantity,
		LimitPrice:  o.LimitPrice,
		AuxPrice:    o.AuxPrice,
		Status:      string(venue.StatusPendingSubmit),
		Raw:         raw,
		SubmittedAt: time.Now(),
	}); err != nil {
		logger.Warnf("executor: journal order %d failed: %v", o.ID, err)
	}
}

func (m *Manager) journalStatus(orderID int64, status venue.OrderStatus) {
	if m.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.journal.UpdateOrderStatus(ctx, orderID, string(status)); err != nil {
		logger.Warnf("executor: journal status %d failed: %v", orderID, err)
	}
}
