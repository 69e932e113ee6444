package store

import (
	"context"
	"time"

	"intrabot/internal/market"
)

// HistoryStore persists closed bars and answers range queries over them.
type HistoryStore interface {
	FetchBars(ctx context.Context, instrument string, start, end time.Time) ([]market.Bar, error)
	AppendBar(ctx context.Context, instrument string, bar market.Bar) error
	// LastTimestamp returns the start of the newest stored bar; false when none exists.
	LastTimestamp(ctx context.Context, instrument string) (time.Time, bool, error)
}

// OrderRecord is one journaled order leg.
type OrderRecord struct {
	OrderID     int64
	ParentID    int64
	Instrument  string
	Role        string // entry | take_profit | stop_loss | exit
	Action      string
	Type        string
	Quantity    float64
	LimitPrice  float64
	AuxPrice    float64
	Status      string
	Raw         []byte
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// OrderJournal records every order handed to the venue and its latest status.
type OrderJournal interface {
	RecordOrder(ctx context.Context, rec OrderRecord) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	// ListOpen returns journaled orders whose last status is not terminal.
	ListOpen(ctx context.Context) ([]OrderRecord, error)
}

// Store is the durable backend: bar history plus the order journal.
type Store interface {
	HistoryStore
	OrderJournal
	Close() error
}
