package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"intrabot/internal/logger"
	"intrabot/internal/market"
	"intrabot/internal/store"
	"intrabot/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// RecordOrder saves or replaces the journal row of rec.OrderID.
func (s *SqliteStore) RecordOrder(ctx context.Context, rec store.OrderRecord) error {
	if rec.OrderID <= 0 {
		return errors.New("order id must be positive")
	}
	submitted := rec.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}
	status := rec.Status
	if status == "" {
		status = string(model.OrderStatusPendingSubmit)
	}
	row := model.OrderModel{
		OrderID:       rec.OrderID,
		ParentID:      rec.ParentID,
		Instrument:    strings.ToUpper(rec.Instrument),
		Role:          rec.Role,
		Action:        rec.Action,
		OrderType:     rec.Type,
		Quantity:      rec.Quantity,
		LimitPrice:    rec.LimitPrice,
		AuxPrice:      rec.AuxPrice,
		Status:        status,
		RawJSON:       datatypes.JSON(rec.Raw),
		SubmittedUnix: submitted.Unix(),
		UpdatedUnix:   time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// UpdateOrderStatus moves a journaled order to status. Terminal rows are left alone.
func (s *SqliteStore) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	return s.db.WithContext(ctx).
		Model(&model.OrderModel{}).
		Where("order_id = ? AND status NOT IN ?", orderID, model.TerminalOrderStatuses).
		Updates(map[string]any{"status": status, "updated_at": time.Now().Unix()}).Error
}

func (s *SqliteStore) ListOpen(ctx context.Context) ([]store.OrderRecord, error) {
	var rows []model.OrderModel
	if err := s.db.WithContext(ctx).
		Where("status NOT IN ?", model.TerminalOrderStatuses).
		Order("order_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.OrderRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.OrderRecord{
			OrderID:     r.OrderID,
			ParentID:    r.ParentID,
			Instrument:  r.Instrument,
			Role:        r.Role,
			Action:      r.Action,
			Type:        r.OrderType,
			Quantity:    r.Quantity,
			LimitPrice:  r.LimitPrice,
			AuxPrice:    r.AuxPrice,
			Status:      r.Status,
			Raw:         []byte(r.RawJSON),
			SubmittedAt: time.Unix(r.SubmittedUnix, 0).In(s.loc),
			UpdatedAt:   time.Unix(r.UpdatedUnix, 0).In(s.loc),
		})
	}
	return out, nil
}

func logBarError(bar market.Bar, err error) {
	logger.Warnf("sqlite: append bar %s %s failed: %v", bar.Instrument, bar.Time.Format(time.RFC3339), err)
}
