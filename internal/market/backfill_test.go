package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memHistory struct {
	mu   sync.Mutex
	bars map[string][]Bar
}

func (m *memHistory) FetchBars(_ context.Context, instrument string, start, end time.Time) ([]Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Bar
	for _, b := range m.bars[instrument] {
		if !b.Time.Before(start) && !b.Time.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memHistory) AppendBar(_ context.Context, instrument string, bar Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bars == nil {
		m.bars = make(map[string][]Bar)
	}
	m.bars[instrument] = append(m.bars[instrument], bar)
	return nil
}

func (m *memHistory) LastTimestamp(_ context.Context, instrument string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars := m.bars[instrument]
	if len(bars) == 0 {
		return time.Time{}, false, nil
	}
	return bars[len(bars)-1].Time, true, nil
}

type asyncVenue struct {
	bf    *Backfiller
	bars  []Bar
	since time.Time
}

func (v *asyncVenue) RequestHistoricalBars(_ context.Context, instrument string, since time.Time) error {
	v.since = since
	go func() {
		for _, b := range v.bars {
			v.bf.OnHistoricalBar(instrument, b)
		}
		v.bf.OnHistoricalBarsEnd(instrument)
	}()
	return nil
}

type seedRecorder struct {
	instrument string
	bars       []Bar
}

func (s *seedRecorder) Seed(instrument string, bars []Bar) {
	s.instrument = instrument
	s.bars = bars
}

func TestBackfiller_RequestsSinceLastStoredBar(t *testing.T) {
	now := time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC)
	last := now.Add(-30 * time.Minute)
	hist := &memHistory{bars: map[string][]Bar{"AAPL": {{Instrument: "AAPL", Time: last, Close: 1}}}}
	seed := &seedRecorder{}
	venue := &asyncVenue{bars: minuteBars(last.Add(time.Minute), 5)}

	bf := NewBackfiller(hist, venue, seed, 24*time.Hour, time.Second)
	bf.nowFn = func() time.Time { return now }
	venue.bf = bf

	require.NoError(t, bf.Run(context.Background(), "aapl"))
	assert.Equal(t, last, venue.since)
	assert.Equal(t, "AAPL", seed.instrument)
	assert.Len(t, seed.bars, 6)
}

func TestBackfiller_EmptyStoreUsesLookback(t *testing.T) {
	now := time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC)
	hist := &memHistory{}
	venue := &asyncVenue{}
	bf := NewBackfiller(hist, venue, nil, 4*24*time.Hour, time.Second)
	bf.nowFn = func() time.Time { return now }
	venue.bf = bf

	require.NoError(t, bf.Run(context.Background(), "MSFT"))
	assert.Equal(t, now.Add(-4*24*time.Hour), venue.since)
}

type silentVenue struct{}

func (silentVenue) RequestHistoricalBars(context.Context, string, time.Time) error { return nil }

func TestBackfiller_TimeoutStillSeeds(t *testing.T) {
	now := time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC)
	hist := &memHistory{bars: map[string][]Bar{"SPY": minuteBars(now.Add(-10*time.Minute), 3)}}
	seed := &seedRecorder{}
	bf := NewBackfiller(hist, silentVenue{}, seed, time.Hour, 20*time.Millisecond)
	bf.nowFn = func() time.Time { return now }

	require.NoError(t, bf.Run(context.Background(), "SPY"))
	assert.Len(t, seed.bars, 3)
}
