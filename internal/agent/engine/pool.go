package engine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"intrabot/internal/logger"
	"intrabot/internal/market"

	"golang.org/x/sync/errgroup"
)

// Pool owns the producers. Instruments can be added while it runs.
type Pool struct {
	newProducer func(instrument string) *Producer

	mu        sync.Mutex
	producers map[string]*Producer
	group     *errgroup.Group
	gctx      context.Context
}

// NewPool builds producers from template, overriding only the instrument.
func NewPool(template ProducerParams) *Pool {
	return &Pool{
		newProducer: func(instrument string) *Producer {
			p := template
			p.Instrument = instrument
			return NewProducer(p)
		},
		producers: make(map[string]*Producer),
	}
}

// Add registers instrument and starts its producer if the pool is running.
// Adding a known instrument is a no-op.
func (p *Pool) Add(instrument string) bool {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if instrument == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.producers[instrument]; ok {
		return false
	}
	prod := p.newProducer(instrument)
	p.producers[instrument] = prod
	if p.group != nil && p.gctx.Err() == nil {
		ctx := p.gctx
		p.group.Go(func() error { return prod.Run(ctx) })
	}
	return true
}

// Run starts every registered producer and blocks until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	p.mu.Lock()
	p.group = group
	p.gctx = gctx
	for _, prod := range p.producers {
		prod := prod
		group.Go(func() error { return prod.Run(gctx) })
	}
	n := len(p.producers)
	p.mu.Unlock()
	logger.Infof("Producers: running %d instrument(s)", n)

	group.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err := group.Wait()
	p.mu.Lock()
	p.group = nil
	p.mu.Unlock()
	return err
}

// OnBarClosed wakes the producer of the bar's instrument.
func (p *Pool) OnBarClosed(bar market.Bar) {
	p.Wake(bar.Instrument)
}

func (p *Pool) Wake(instrument string) {
	p.mu.Lock()
	prod := p.producers[strings.ToUpper(instrument)]
	p.mu.Unlock()
	if prod != nil {
		prod.Wake()
	}
}

func (p *Pool) Instruments() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.producers))
	for name := range p.producers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
