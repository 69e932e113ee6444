// Package indicator enriches an ordered bar series with EMA 9/20/200, session
// VWAP, Bollinger bands (20, 2σ) and MACD (12, 26, 9).
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"intrabot/internal/market"
)

const (
	// MinBars is the history EMA200 needs before any derived field is published.
	MinBars = 200

	bbPeriod   = 20
	bbDev      = 2.0
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// Bands is one Bollinger band reading.
type Bands struct {
	Upper float64 `json:"upper"`
	Mid   float64 `json:"mid"`
	Lower float64 `json:"lower"`
}

// Indicators are the derived fields of one bar. BB is nil until its window is full.
type Indicators struct {
	EMA9       float64 `json:"ema9"`
	EMA20      float64 `json:"ema20"`
	EMA200     float64 `json:"ema200"`
	VWAP       float64 `json:"vwap"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	BB         *Bands  `json:"bb,omitempty"`
}

// EnrichedBar is a bar plus its indicators. Ind is nil while the series is too short.
type EnrichedBar struct {
	market.Bar
	Ind *Indicators `json:"ind,omitempty"`
}

// Series is the output of Enrich. Ready is false when fewer than MinBars bars
// were supplied; every Ind is nil in that case.
type Series struct {
	Ready bool
	Items []EnrichedBar
}

// Bars returns the underlying bars in order.
func (s Series) Bars() []market.Bar {
	out := make([]market.Bar, len(s.Items))
	for i, it := range s.Items {
		out[i] = it.Bar
	}
	return out
}

// Tail returns the last n items, or all of them when fewer exist.
func (s Series) Tail(n int) []EnrichedBar {
	if n <= 0 || n >= len(s.Items) {
		return s.Items
	}
	return s.Items[len(s.Items)-n:]
}

func (s Series) Len() int { return len(s.Items) }

// Enrich computes the indicators of bars. The input is not modified and the
// result depends only on it, so re-enriching Series.Bars() gives identical values.
func Enrich(bars []market.Bar) Series {
	items := make([]EnrichedBar, len(bars))
	for i, b := range bars {
		items[i] = EnrichedBar{Bar: b}
	}
	if len(bars) < MinBars {
		return Series{Ready: false, Items: items}
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	ema9 := EMA(closes, 9)
	ema20 := EMA(closes, 20)
	ema200 := EMA(closes, 200)
	macd, signal := MACD(closes, macdFast, macdSlow, macdSignal)
	vwap := SessionVWAP(bars)
	upper, mid, lower := talib.BBands(closes, bbPeriod, bbDev, bbDev, talib.SMA)

	for i := range items {
		ind := &Indicators{
			EMA9:       ema9[i],
			EMA20:      ema20[i],
			EMA200:     ema200[i],
			VWAP:       vwap[i],
			MACD:       macd[i],
			MACDSignal: signal[i],
		}
		if i >= bbPeriod-1 && finite(upper[i]) && finite(mid[i]) && finite(lower[i]) {
			ind.BB = &Bands{Upper: upper[i], Mid: mid[i], Lower: lower[i]}
		}
		items[i].Ind = ind
	}
	return Series{Ready: true, Items: items}
}

// EMA is the exponential moving average with alpha 2/(span+1), seeded with the
// first value and applied in input order.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || span <= 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACD returns EMA(fast)-EMA(slow) and the EMA(signal) of that line.
func MACD(values []float64, fast, slow, signal int) ([]float64, []float64) {
	f := EMA(values, fast)
	s := EMA(values, slow)
	line := make([]float64, len(values))
	for i := range values {
		line[i] = f[i] - s[i]
	}
	return line, EMA(line, signal)
}

// SessionVWAP accumulates typical price times volume over each run of bars that
// share a calendar date in the bars' own location. A session with no volume yet
// reports 0.
func SessionVWAP(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	var pv, vol float64
	session := -1
	for i, b := range bars {
		y, m, d := b.Time.Date()
		if key := y*10000 + int(m)*100 + d; key != session {
			pv, vol = 0, 0
			session = key
		}
		tp := (b.High + b.Low + b.Close) / 3
		pv += tp * b.Volume
		vol += b.Volume
		if vol == 0 {
			out[i] = 0
			continue
		}
		out[i] = pv / vol
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
