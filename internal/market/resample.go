package market

import "time"

// Resample folds base-interval bars into interval buckets keyed by
// Time.Truncate(interval): open=first, high=max, low=min, close=last, volume=sum.
// Buckets with no bars are skipped. The trailing bucket is dropped while its last
// base bar has not closed yet, so callers only ever see closed bars.
func Resample(bars []Bar, interval, base time.Duration) []Bar {
	if len(bars) == 0 {
		return nil
	}
	if base <= 0 {
		base = time.Minute
	}
	if interval <= base {
		out := make([]Bar, len(bars))
		copy(out, bars)
		return out
	}

	out := make([]Bar, 0, len(bars)/int(interval/base)+1)
	var (
		cur     Bar
		lastRaw time.Time
		open    bool
	)
	for _, b := range bars {
		start := b.Time.Truncate(interval)
		if open && start.Equal(cur.Time) {
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume += b.Volume
			lastRaw = b.Time
			continue
		}
		if open {
			out = append(out, cur)
		}
		cur = Bar{
			Instrument: b.Instrument,
			Time:       start,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
		}
		lastRaw = b.Time
		open = true
	}
	if open && !lastRaw.Before(cur.Time.Add(interval-base)) {
		out = append(out, cur)
	}
	return out
}
