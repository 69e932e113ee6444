package market

import "time"

// Bar is one closed OHLCV period. Time is the period start in exchange-local time.
type Bar struct {
	Instrument string    `json:"instrument"`
	Time       time.Time `json:"time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
}

// TickEvent is a trade price or size update from the venue. Price <= 0 marks a
// size-only tick.
type TickEvent struct {
	Instrument string
	Price      float64
	Size       *float64
	Time       time.Time
}

// BarSink receives every bar the aggregator closes.
type BarSink interface {
	OnBarClosed(bar Bar)
}

// BarSinkFunc adapts a function to BarSink.
type BarSinkFunc func(Bar)

func (f BarSinkFunc) OnBarClosed(bar Bar) { f(bar) }

// FanOut delivers each closed bar to every non-nil sink in order.
func FanOut(sinks ...BarSink) BarSink {
	out := make([]BarSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return BarSinkFunc(func(b Bar) {
		for _, s := range out {
			s.OnBarClosed(b)
		}
	})
}
