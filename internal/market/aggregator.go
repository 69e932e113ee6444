package market

import (
	"sort"
	"strings"
	"sync"
	"time"

	"intrabot/internal/logger"
	"intrabot/internal/metrics"
)

// Aggregator folds ticks into per-instrument minute bars. Each instrument has its
// own accumulator lock, so a busy instrument never blocks another.
type Aggregator struct {
	Period time.Duration

	mu   sync.RWMutex
	accs map[string]*accumulator
	sink BarSink
}

type accumulator struct {
	mu         sync.Mutex
	bar        Bar
	active     bool
	hasPrice   bool
	lastClosed time.Time
}

func NewAggregator(sink BarSink) *Aggregator {
	return &Aggregator{
		Period: time.Minute,
		accs:   make(map[string]*accumulator),
		sink:   sink,
	}
}

func (a *Aggregator) accFor(instrument string) *accumulator {
	a.mu.RLock()
	acc := a.accs[instrument]
	a.mu.RUnlock()
	if acc != nil {
		return acc
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if acc = a.accs[instrument]; acc == nil {
		acc = &accumulator{}
		a.accs[instrument] = acc
	}
	return acc
}

// OnTick folds one tick into the in-progress bar of instrument. A tick from a
// later period closes the in-progress bar first; a late tick from an earlier
// period folds into whatever bar is in progress.
func (a *Aggregator) OnTick(instrument string, price float64, size *float64, ts time.Time) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if instrument == "" {
		return
	}
	if price <= 0 && size == nil {
		return
	}
	bucket := ts.Truncate(a.period())
	acc := a.accFor(instrument)
	acc.mu.Lock()

	var rolled closedBar
	if acc.active && bucket.After(acc.bar.Time) {
		rolled = acc.take()
	}
	if !acc.active {
		acc.bar = Bar{Instrument: instrument, Time: bucket}
		acc.active = true
		acc.hasPrice = false
	}
	if price > 0 {
		if !acc.hasPrice {
			acc.bar.Open, acc.bar.High, acc.bar.Low, acc.bar.Close = price, price, price, price
			acc.hasPrice = true
		} else {
			if price > acc.bar.High {
				acc.bar.High = price
			}
			if price < acc.bar.Low {
				acc.bar.Low = price
			}
			acc.bar.Close = price
		}
	}
	if size != nil && *size > 0 {
		acc.bar.Volume += *size
	}
	acc.mu.Unlock()

	if rolled.ok {
		a.emit(rolled)
	}
}

// OnTickEvent is OnTick for a gateway event.
func (a *Aggregator) OnTickEvent(evt TickEvent) {
	a.OnTick(evt.Instrument, evt.Price, evt.Size, evt.Time)
}

type closedBar struct {
	bar        Bar
	prev       time.Time
	outOfOrder bool
	ok         bool
}

// take resets the accumulator and returns its bar. Caller holds acc.mu.
func (acc *accumulator) take() closedBar {
	if !acc.active || !acc.hasPrice {
		acc.active = false
		acc.hasPrice = false
		return closedBar{}
	}
	out := closedBar{bar: acc.bar, prev: acc.lastClosed, ok: true}
	out.outOfOrder = !acc.lastClosed.IsZero() && out.bar.Time.Before(acc.lastClosed)
	if !out.outOfOrder {
		acc.lastClosed = out.bar.Time
	}
	acc.bar = Bar{}
	acc.active = false
	acc.hasPrice = false
	return out
}

func (a *Aggregator) emit(c closedBar) {
	bar := c.bar
	if c.outOfOrder {
		logger.Warnf("aggregator: %s bar %s older than previous %s, appending anyway",
			bar.Instrument, bar.Time.Format(time.RFC3339), c.prev.Format(time.RFC3339))
		metrics.BarsOutOfOrder.WithLabelValues(bar.Instrument).Inc()
	}
	metrics.BarsClosed.WithLabelValues(bar.Instrument).Inc()
	if a.sink != nil {
		a.sink.OnBarClosed(bar)
	}
}

// CloseBar emits the in-progress bar of instrument and resets the accumulator.
// Returns false when nothing with a price was accumulated.
func (a *Aggregator) CloseBar(instrument string) (Bar, bool) {
	return a.closeBefore(strings.ToUpper(strings.TrimSpace(instrument)), time.Time{})
}

// closeBefore closes the in-progress bar when its period ends at or before
// boundary; a zero boundary closes unconditionally.
func (a *Aggregator) closeBefore(instrument string, boundary time.Time) (Bar, bool) {
	a.mu.RLock()
	acc := a.accs[instrument]
	a.mu.RUnlock()
	if acc == nil {
		return Bar{}, false
	}

	acc.mu.Lock()
	if !boundary.IsZero() && acc.active && acc.bar.Time.Add(a.period()).After(boundary) {
		acc.mu.Unlock()
		return Bar{}, false
	}
	c := acc.take()
	acc.mu.Unlock()
	if !c.ok {
		return Bar{}, false
	}
	a.emit(c)
	return c.bar, true
}

// CloseAll closes every bar whose period has ended by boundary; driven by the
// minute scheduler.
func (a *Aggregator) CloseAll(boundary time.Time) []Bar {
	a.mu.RLock()
	names := make([]string, 0, len(a.accs))
	for name := range a.accs {
		names = append(names, name)
	}
	a.mu.RUnlock()
	sort.Strings(names)

	out := make([]Bar, 0, len(names))
	for _, name := range names {
		if bar, ok := a.closeBefore(name, boundary); ok {
			out = append(out, bar)
		}
	}
	if len(out) > 0 {
		logger.Debugf("aggregator: closed %d bars at %s", len(out), boundary.Format(time.RFC3339))
	}
	return out
}

func (a *Aggregator) period() time.Duration {
	if a.Period <= 0 {
		return time.Minute
	}
	return a.Period
}
