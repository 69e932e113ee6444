// Package engine runs one signal producer per instrument.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"intrabot/internal/analysis/indicator"
	"intrabot/internal/decision"
	"intrabot/internal/logger"
	"intrabot/internal/market"
	"intrabot/internal/metrics"
	"intrabot/internal/strategy"
	"intrabot/internal/trader"
)

// BarSource returns the buffered base bars of an instrument, oldest first.
type BarSource interface {
	Get(instrument string) []market.Bar
}

type PositionReader interface {
	State(instrument string) trader.PositionState
}

// SignalSink accepts candidate signals without blocking.
type SignalSink interface {
	Offer(sig strategy.Signal) error
}

type ProducerParams struct {
	Instrument    string
	Bars          BarSource
	Positions     PositionReader
	Sink          SignalSink
	Strategy      *strategy.Engine
	BaseInterval  time.Duration
	EntryInterval time.Duration
	ExitInterval  time.Duration
	// Reevaluate wakes the producer periodically in addition to closed bars.
	Reevaluate time.Duration
}

// Producer evaluates one instrument whenever it is woken. It only ever blocks
// on its own wake channel.
type Producer struct {
	instrument string
	bars       BarSource
	positions  PositionReader
	sink       SignalSink
	strategy   *strategy.Engine
	base       time.Duration
	entry      time.Duration
	exit       time.Duration
	reevaluate time.Duration

	wake chan struct{}
}

func NewProducer(p ProducerParams) *Producer {
	base := p.BaseInterval
	if base <= 0 {
		base = time.Minute
	}
	entry := p.EntryInterval
	if entry <= 0 {
		entry = 5 * time.Minute
	}
	exit := p.ExitInterval
	if exit <= 0 {
		exit = base
	}
	eng := p.Strategy
	if eng == nil {
		eng = strategy.NewEngine(nil)
	}
	return &Producer{
		instrument: strings.ToUpper(strings.TrimSpace(p.Instrument)),
		bars:       p.Bars,
		positions:  p.Positions,
		sink:       p.Sink,
		strategy:   eng,
		base:       base,
		entry:      entry,
		exit:       exit,
		reevaluate: p.Reevaluate,
		wake:       make(chan struct{}, 1),
	}
}

func (p *Producer) Instrument() string { return p.instrument }

// Wake schedules one evaluation. Wakes that arrive while one is pending are
// coalesced.
func (p *Producer) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run evaluates on every wake until ctx is done.
func (p *Producer) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if p.reevaluate > 0 {
		t := time.NewTicker(p.reevaluate)
		defer t.Stop()
		tick = t.C
	}
	logger.Infof("Producer: %s started entry=%s exit=%s reevaluate=%s", p.instrument, p.entry, p.exit, p.reevaluate)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("Producer: %s stopped", p.instrument)
			return nil
		case <-p.wake:
		case <-tick:
		}
		p.Cycle()
	}
}

// Cycle runs one evaluation and offers the resulting signal, if any.
func (p *Producer) Cycle() (strategy.Signal, strategy.Outcome) {
	bars := p.bars.Get(p.instrument)
	entry := indicator.Enrich(market.Resample(bars, p.entry, p.base))
	exit := indicator.Enrich(market.Resample(bars, p.exit, p.base))

	state := p.positions.State(p.instrument)
	sig, outcome := p.strategy.Evaluate(entry, exit, state)
	metrics.SignalOutcomes.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case strategy.OutcomeSignal:
	case strategy.OutcomeConflict:
		logger.Infof("Producer: %s conflicting conditions, no signal", p.instrument)
		return strategy.Signal{}, outcome
	default:
		logger.Debugf("Producer: %s %s (entry=%d exit=%d bars)", p.instrument, outcome, entry.Len(), exit.Len())
		return strategy.Signal{}, outcome
	}

	if err := p.sink.Offer(sig); err != nil {
		// the signal of this cycle is dropped
		if errors.Is(err, decision.ErrLatchHeld) {
			logger.Debugf("Producer: %s not queued: %v", sig, err)
		} else {
			logger.Warnf("Producer: %s not queued: %v", sig, err)
		}
		return sig, outcome
	}
	logger.Infof("Producer: queued %s", sig)
	return sig, outcome
}
