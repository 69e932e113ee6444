package strategy

import (
	"math"
	"time"

	"intrabot/internal/analysis/indicator"
	"intrabot/internal/logger"
	"intrabot/internal/session"
	"intrabot/internal/trader"
)

// confirmBars is how many consecutive entry bars must satisfy the entry rules.
const confirmBars = 2

// Engine turns an entry/exit series pair into at most one signal per cycle.
// It never returns an error and never panics on bad data; problems show up as
// the Outcome.
type Engine struct {
	// Calendar, when set, suppresses signals whose bar lies in the opening warm-up.
	Calendar *session.Calendar
}

func NewEngine(cal *session.Calendar) *Engine {
	return &Engine{Calendar: cal}
}

type conditions struct {
	longEntry  bool
	shortEntry bool
	longExit   bool
	shortExit  bool
}

// Evaluate inspects the closed bars of both timeframes against state. The
// returned Signal is only meaningful when the Outcome is OutcomeSignal.
func (e *Engine) Evaluate(entry, exit indicator.Series, state trader.PositionState) (Signal, Outcome) {
	if state.Phase.Pending() {
		return Signal{}, OutcomeSuppressed
	}

	var (
		c        conditions
		entryBar indicator.EnrichedBar
		exitBar  indicator.EnrichedBar
	)
	entryOK := false
	if tail, ok := lastReady(entry, confirmBars); ok {
		entryOK = true
		entryBar = tail[len(tail)-1]
		c.longEntry, c.shortEntry = entryRules(tail)
	}

	switch {
	case state.Phase == trader.PhaseFlat:
		if !entryOK {
			return Signal{}, OutcomeInsufficientData
		}
	case state.Phase.Holding():
		tail, ok := lastReady(exit, 1)
		if !ok {
			return Signal{}, OutcomeInsufficientData
		}
		exitBar = tail[0]
		c.longExit, c.shortExit = exitRules(exitBar)
	}

	kind, outcome := decide(c, state.Phase)
	if outcome == OutcomeConflict {
		logger.Infof("strategy: %s conflicting conditions in %s (%+v), no signal", state.Instrument, state.Phase, c)
	}
	if outcome != OutcomeSignal {
		return Signal{}, outcome
	}

	bar := entryBar
	if !kind.Entry() {
		bar = exitBar
	}
	if e.Calendar != nil && e.Calendar.InWarmup(bar.Time) {
		logger.Debugf("strategy: %s %s at %s suppressed in opening warm-up", state.Instrument, kind, bar.Time.Format(time.Kitchen))
		return Signal{}, OutcomeWarmup
	}
	instrument := state.Instrument
	if instrument == "" {
		instrument = bar.Instrument
	}
	return NewSignal(instrument, kind, bar.Close, bar.Time), OutcomeSignal
}

// decide applies the phase gate and the conflict policy to the raw conditions.
func decide(c conditions, phase trader.Phase) (Kind, Outcome) {
	switch {
	case phase == trader.PhaseFlat:
		switch {
		case c.longEntry && c.shortEntry:
			return "", OutcomeConflict
		case c.longEntry:
			return KindLongEntry, OutcomeSignal
		case c.shortEntry:
			return KindShortEntry, OutcomeSignal
		}
		return "", OutcomeNone
	case phase.Holding():
		exitFires := (phase == trader.PhaseLong && c.longExit) || (phase == trader.PhaseShort && c.shortExit)
		if !exitFires {
			return "", OutcomeNone
		}
		if c.longEntry || c.shortEntry {
			return "", OutcomeConflict
		}
		if phase == trader.PhaseLong {
			return KindLongExit, OutcomeSignal
		}
		return KindShortExit, OutcomeSignal
	}
	return "", OutcomeSuppressed
}

// entryRules require every rule on every bar of tail.
func entryRules(tail []indicator.EnrichedBar) (long, short bool) {
	long, short = true, true
	for _, b := range tail {
		in := b.Ind
		long = long &&
			in.EMA9 > in.EMA20 &&
			in.EMA9 > in.EMA200 &&
			in.EMA20 > in.EMA200 &&
			b.Close > in.VWAP &&
			in.MACD > in.MACDSignal
		short = short &&
			in.EMA9 < in.EMA20 &&
			in.EMA9 < in.EMA200 &&
			in.EMA20 < in.EMA200 &&
			b.Close < in.VWAP &&
			in.MACD < in.MACDSignal
	}
	return long, short
}

// exitRules fire on any weakening rule of the last exit bar.
func exitRules(b indicator.EnrichedBar) (long, short bool) {
	in := b.Ind
	long = in.EMA9 < in.EMA20 || b.Close < in.VWAP || in.MACD < in.MACDSignal
	short = in.EMA9 > in.EMA20 || b.Close > in.VWAP || in.MACD > in.MACDSignal
	return long, short
}

// lastReady returns the last n bars when all of them carry finite indicators.
func lastReady(s indicator.Series, n int) ([]indicator.EnrichedBar, bool) {
	if !s.Ready || s.Len() < n {
		return nil, false
	}
	tail := s.Tail(n)
	for _, b := range tail {
		if b.Ind == nil || !finiteBar(b) {
			return nil, false
		}
	}
	return tail, true
}

func finiteBar(b indicator.EnrichedBar) bool {
	for _, v := range []float64{b.Close, b.Ind.EMA9, b.Ind.EMA20, b.Ind.EMA200, b.Ind.VWAP, b.Ind.MACD, b.Ind.MACDSignal} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
