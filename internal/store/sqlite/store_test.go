package sqlite

import (
	"context"
	"testing"
	"time"

	"intrabot/internal/market"
	"intrabot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	s, err := NewSqliteStore(MemoryPath, loc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSqliteStore_AppendDedupAndFetch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		bar := market.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}
		require.NoError(t, s.AppendBar(ctx, "aapl", bar))
	}
	require.NoError(t, s.AppendBar(ctx, "AAPL", market.Bar{Time: t0, Close: 99}))

	bars, err := s.FetchBars(ctx, "AAPL", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 1.5, bars[0].Close, "duplicate bar must not overwrite")
	assert.Equal(t, "America/New_York", bars[0].Time.Location().String())
	assert.True(t, bars[2].Time.Equal(t0.Add(2*time.Minute)))

	last, ok, err := s.LastTimestamp(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(t0.Add(2*time.Minute)))

	_, ok, err = s.LastTimestamp(ctx, "MSFT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSqliteStore_OrderJournal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, rec := range []store.OrderRecord{
		{OrderID: 10, Instrument: "AAPL", Role: "entry", Action: "BUY", Type: "LMT", Quantity: 100, LimitPrice: 99.95},
		{OrderID: 11, ParentID: 10, Instrument: "AAPL", Role: "take_profit", Action: "SELL", Type: "LMT", Quantity: 100, LimitPrice: 102},
		{OrderID: 12, ParentID: 10, Instrument: "AAPL", Role: "stop_loss", Action: "SELL", Type: "STP", Quantity: 100, AuxPrice: 99, Raw: []byte(`{"transmit":true}`)},
	} {
		require.NoError(t, s.RecordOrder(ctx, rec))
	}
	require.NoError(t, s.UpdateOrderStatus(ctx, 10, "Filled"))
	require.NoError(t, s.UpdateOrderStatus(ctx, 10, "Cancelled"))

	open, err := s.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, int64(11), open[0].OrderID)
	assert.Equal(t, int64(10), open[1].ParentID)
	assert.JSONEq(t, `{"transmit":true}`, string(open[1].Raw))
	assert.Equal(t, "PendingSubmit", open[0].Status)
}
