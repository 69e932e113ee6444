package paper

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
	"intrabot/internal/market"
)

// SubscribeTicks starts a random-walk trade feed for instrument. With a zero
// TickInterval no feed runs and prices only move through Tick.
func (v *Venue) SubscribeTicks(ctx context.Context, instrument string) error {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if instrument == "" {
		return fmt.Errorf("paper: empty instrument")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ready(); err != nil {
		return err
	}
	if _, ok := v.feeds[instrument]; ok || v.cfg.TickInterval <= 0 {
		return nil
	}
	if _, ok := v.prices[instrument]; !ok {
		v.prices[instrument] = v.cfg.StartPrice
	}
	feedCtx, cancel := context.WithCancel(ctx)
	v.feeds[instrument] = cancel
	v.wg.Add(1)
	go v.walk(feedCtx, instrument)
	logger.Infof("paper: tick feed started for %s every %s", instrument, v.cfg.TickInterval)
	return nil
}

func (v *Venue) walk(ctx context.Context, instrument string) {
	defer v.wg.Done()
	ticker := time.NewTicker(v.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.stopCh:
			return
		case <-ticker.C:
			px, size := v.step(instrument)
			v.Tick(instrument, px, size)
		}
	}
}

// step draws the next price of the walk and a trade size.
func (v *Venue) step(instrument string) (float64, float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	last, ok := v.prices[instrument]
	if !ok {
		last = v.cfg.StartPrice
	}
	next := last * math.Exp(v.cfg.Volatility*v.rng.NormFloat64())
	size := float64(1 + v.rng.Intn(500))
	return roundCents(next), size
}

func roundCents(px float64) float64 {
	return math.Round(px*100) / 100
}

// RequestHistoricalBars generates one-minute bars from since up to the current
// minute and delivers them asynchronously, followed by OnHistoricalBarsEnd.
// The walk ends at the instrument's current price so live ticks continue it.
func (v *Venue) RequestHistoricalBars(ctx context.Context, instrument string, since time.Time) error {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if instrument == "" {
		return fmt.Errorf("paper: empty instrument")
	}
	v.mu.Lock()
	if err := v.ready(); err != nil {
		v.mu.Unlock()
		return err
	}
	now := v.nowFn()
	bars := v.history(instrument, since, now)
	if len(bars) > 0 {
		v.prices[instrument] = bars[len(bars)-1].Close
	}
	v.emit(func(h venue.EventHandler) {
		for _, b := range bars {
			if ctx.Err() != nil {
				break
			}
			h.OnHistoricalBar(instrument, b)
		}
		h.OnHistoricalBarsEnd(instrument)
	})
	v.mu.Unlock()
	return nil
}

// history builds the bars of [since, now) truncated to minutes. Caller holds
// v.mu.
func (v *Venue) history(instrument string, since, now time.Time) []market.Bar {
	start := since.Truncate(time.Minute)
	if !start.Before(now) {
		return nil
	}
	end := now.Truncate(time.Minute)
	cal := v.cfg.Calendar
	px, ok := v.prices[instrument]
	if !ok {
		px = v.cfg.StartPrice
	}
	var bars []market.Bar
	for ts := start; ts.Before(end); ts = ts.Add(time.Minute) {
		if cal != nil && !cal.IsOpen(ts) {
			continue
		}
		open := px
		hi, lo := open, open
		for i := 0; i < 4; i++ {
			px *= math.Exp(v.cfg.Volatility * v.rng.NormFloat64())
			hi = math.Max(hi, px)
			lo = math.Min(lo, px)
		}
		at := ts
		if cal != nil {
			at = ts.In(cal.Location)
		}
		bars = append(bars, market.Bar{
			Instrument: instrument,
			Time:       at,
			Open:       roundCents(open),
			High:       roundCents(hi),
			Low:        roundCents(lo),
			Close:      roundCents(px),
			Volume:     float64(1000 + v.rng.Intn(20000)),
		})
	}
	if len(bars) > v.cfg.MaxHistoryBars {
		bars = bars[len(bars)-v.cfg.MaxHistoryBars:]
	}
	return bars
}
