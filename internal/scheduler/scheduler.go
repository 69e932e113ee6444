package scheduler

import (
	"context"
	"time"

	"intrabot/internal/logger"
)

// AlignedScheduler fires a task right after every interval boundary
// (boundary + Offset). The task receives the boundary that just passed, which is
// the close time of the bar period that ended.
type AlignedScheduler struct {
	Name     string
	Interval time.Duration
	Offset   time.Duration

	nowFn func() time.Time
}

func NewAlignedScheduler(name string, interval, offset time.Duration) *AlignedScheduler {
	return &AlignedScheduler{
		Name:     name,
		Interval: interval,
		Offset:   offset,
		nowFn:    time.Now,
	}
}

// Start blocks until ctx is done.
func (s *AlignedScheduler) Start(ctx context.Context, task func(boundary time.Time)) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("AlignedScheduler[%s]: task is nil, exit", s.Name)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("AlignedScheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("AlignedScheduler[%s]: negative offset=%s, clamp to 0", s.Name, s.Offset)
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	logger.Infof("AlignedScheduler[%s]: started interval=%s offset=%s", s.Name, s.Interval, s.Offset)

	for {
		boundary, wait := s.nextTimes(s.nowFn())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("AlignedScheduler[%s]: ctx done, exit", s.Name)
			return
		case <-timer.C:
		}
		task(boundary)
	}
}

// nextTimes returns the next boundary and how long to wait until boundary+Offset.
func (s *AlignedScheduler) nextTimes(now time.Time) (boundary time.Time, wait time.Duration) {
	boundary = now.Truncate(s.Interval).Add(s.Interval)
	wait = boundary.Add(s.Offset).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return boundary, wait
}
