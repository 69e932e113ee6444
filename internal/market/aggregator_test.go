package market

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectSink struct {
	mu   sync.Mutex
	bars []Bar
}

func (c *collectSink) OnBarClosed(b Bar) {
	c.mu.Lock()
	c.bars = append(c.bars, b)
	c.mu.Unlock()
}

func sz(v float64) *float64 { return &v }

func TestAggregator_FoldsTicksIntoBar(t *testing.T) {
	sink := &collectSink{}
	agg := NewAggregator(sink)
	base := time.Date(2024, 3, 4, 10, 0, 5, 0, time.UTC)

	agg.OnTick("aapl", 100, nil, base)
	agg.OnTick("AAPL", 101.5, nil, base.Add(10*time.Second))
	agg.OnTick("AAPL", 0, sz(300), base.Add(11*time.Second))
	agg.OnTick("AAPL", 99.25, nil, base.Add(20*time.Second))
	agg.OnTick("AAPL", 0, sz(200), base.Add(21*time.Second))
	agg.OnTick("AAPL", 100.5, nil, base.Add(30*time.Second))

	bar, ok := agg.CloseBar("AAPL")
	require.True(t, ok)
	assert.Equal(t, "AAPL", bar.Instrument)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), bar.Time)
	assert.Equal(t, 100.0, bar.Open)
	assert.Equal(t, 101.5, bar.High)
	assert.Equal(t, 99.25, bar.Low)
	assert.Equal(t, 100.5, bar.Close)
	assert.Equal(t, 500.0, bar.Volume)
	require.Len(t, sink.bars, 1)

	_, ok = agg.CloseBar("AAPL")
	assert.False(t, ok, "accumulator must reset after close")
}

func TestAggregator_SizeBeforePrice(t *testing.T) {
	agg := NewAggregator(nil)
	ts := time.Date(2024, 3, 4, 10, 1, 0, 0, time.UTC)
	agg.OnTick("MSFT", 0, sz(50), ts)

	_, ok := agg.CloseBar("MSFT")
	assert.False(t, ok, "size-only accumulator has no prices yet")

	agg.OnTick("MSFT", 0, sz(50), ts)
	agg.OnTick("MSFT", 410, nil, ts.Add(time.Second))
	bar, ok := agg.CloseBar("MSFT")
	require.True(t, ok)
	assert.Equal(t, 410.0, bar.Open)
	assert.Equal(t, 410.0, bar.Low)
	assert.Equal(t, 50.0, bar.Volume)
}

func TestAggregator_OutOfOrderStillAppended(t *testing.T) {
	sink := &collectSink{}
	agg := NewAggregator(sink)
	t1 := time.Date(2024, 3, 4, 10, 5, 0, 0, time.UTC)

	agg.OnTick("SPY", 500, nil, t1)
	_, ok := agg.CloseBar("SPY")
	require.True(t, ok)

	agg.OnTick("SPY", 501, nil, t1.Add(-2*time.Minute))
	_, ok = agg.CloseBar("SPY")
	require.True(t, ok)

	require.Len(t, sink.bars, 2)
	assert.True(t, sink.bars[1].Time.Before(sink.bars[0].Time))
}

func TestAggregator_CloseAllIndependentInstruments(t *testing.T) {
	sink := &collectSink{}
	agg := NewAggregator(sink)
	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for _, sym := range []string{"AAPL", "MSFT", "SPY"} {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				agg.OnTick(sym, 100+float64(i), sz(1), ts.Add(time.Duration(i)*100*time.Millisecond))
			}
		}(sym)
	}
	wg.Wait()

	bars := agg.CloseAll(ts.Add(time.Minute))
	require.Len(t, bars, 3)
	assert.Equal(t, "AAPL", bars[0].Instrument)
	for _, b := range bars {
		assert.Equal(t, 100.0, b.Volume)
		assert.Equal(t, 199.0, b.Close)
	}
	assert.Len(t, sink.bars, 3)
}

func TestAggregator_TickFromNextMinuteRollsBar(t *testing.T) {
	sink := &collectSink{}
	agg := NewAggregator(sink)
	t0 := time.Date(2024, 3, 4, 10, 0, 30, 0, time.UTC)

	agg.OnTick("AAPL", 100, sz(10), t0)
	agg.OnTick("AAPL", 105, sz(20), t0.Add(45*time.Second))

	require.Len(t, sink.bars, 1)
	first := sink.bars[0]
	assert.Equal(t, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), first.Time)
	assert.Equal(t, 100.0, first.Close)
	assert.Equal(t, 10.0, first.Volume)

	// the 10:01 bar is still in progress at the 10:01 boundary
	assert.Empty(t, agg.CloseAll(time.Date(2024, 3, 4, 10, 1, 0, 0, time.UTC)))

	bars := agg.CloseAll(time.Date(2024, 3, 4, 10, 2, 0, 0, time.UTC))
	require.Len(t, bars, 1)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 1, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 105.0, bars[0].Open)
	assert.Equal(t, 105.0, bars[0].Close)
	assert.Equal(t, 20.0, bars[0].Volume)
	assert.Len(t, sink.bars, 2)
}

func TestAggregator_LateTickFoldsIntoCurrentBar(t *testing.T) {
	agg := NewAggregator(nil)
	t0 := time.Date(2024, 3, 4, 10, 1, 5, 0, time.UTC)

	agg.OnTick("SPY", 500, nil, t0)
	agg.OnTick("SPY", 498, nil, t0.Add(-10*time.Second))

	bar, ok := agg.CloseBar("SPY")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 1, 0, 0, time.UTC), bar.Time)
	assert.Equal(t, 498.0, bar.Low)
	assert.Equal(t, 498.0, bar.Close)
}
