package model

import (
	"gorm.io/datatypes"
)

// BarModel is one stored minute bar. (instrument, ts) is unique.
type BarModel struct {
	ID         int64   `gorm:"column:id;primaryKey"`
	Instrument string  `gorm:"column:instrument;uniqueIndex:idx_bar_instrument_ts,priority:1"`
	TS         int64   `gorm:"column:ts;uniqueIndex:idx_bar_instrument_ts,priority:2"`
	Open       float64 `gorm:"column:open"`
	High       float64 `gorm:"column:high"`
	Low        float64 `gorm:"column:low"`
	Close      float64 `gorm:"column:close"`
	Volume     float64 `gorm:"column:volume"`
}

func (BarModel) TableName() string { return "bars" }

type OrderStatus string

const (
	OrderStatusPendingSubmit OrderStatus = "PendingSubmit"
	OrderStatusPreSubmitted  OrderStatus = "PreSubmitted"
	OrderStatusSubmitted     OrderStatus = "Submitted"
	OrderStatusFilled        OrderStatus = "Filled"
	OrderStatusCancelled     OrderStatus = "Cancelled"
	OrderStatusInactive      OrderStatus = "Inactive"
)

// TerminalOrderStatuses never change again once reached.
var TerminalOrderStatuses = []string{
	string(OrderStatusFilled),
	string(OrderStatusCancelled),
	string(OrderStatusInactive),
}

type OrderModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	OrderID       int64          `gorm:"column:order_id;uniqueIndex"`
	ParentID      int64          `gorm:"column:parent_id;index"`
	Instrument    string         `gorm:"column:instrument;index"`
	Role          string         `gorm:"column:role"`
	Action        string         `gorm:"column:action"`
	OrderType     string         `gorm:"column:order_type"`
	Quantity      float64        `gorm:"column:quantity"`
	LimitPrice    float64        `gorm:"column:limit_price"`
	AuxPrice      float64        `gorm:"column:aux_price"`
	Status        string         `gorm:"column:status;index"`
	RawJSON       datatypes.JSON `gorm:"column:raw_json;type:TEXT"`
	SubmittedUnix int64          `gorm:"column:submitted_at"`
	UpdatedUnix   int64          `gorm:"column:updated_at"`
}

func (OrderModel) TableName() string { return "orders" }
