// Package session answers regular-trading-hours questions in the exchange timezone.
package session

import (
	"fmt"
	"time"
)

// Calendar is a weekday session with an opening warm-up and a late-day cutoff.
// Offsets are measured from local midnight.
type Calendar struct {
	Location *time.Location
	Open     time.Duration
	Close    time.Duration
	Cutoff   time.Duration
	Warmup   time.Duration
}

// NewCalendar builds a calendar from "HH:MM" clocks.
func NewCalendar(tz, open, closeAt, cutoff string, warmup time.Duration) (*Calendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("session timezone %q: %w", tz, err)
	}
	o, err := parseClock(open)
	if err != nil {
		return nil, err
	}
	c, err := parseClock(closeAt)
	if err != nil {
		return nil, err
	}
	cut, err := parseClock(cutoff)
	if err != nil {
		return nil, err
	}
	return &Calendar{Location: loc, Open: o, Close: c, Cutoff: cut, Warmup: warmup}, nil
}

// DefaultCalendar is the US equities session: 09:30-16:00 New York, 10 minute
// warm-up, cutoff 15:45.
func DefaultCalendar() *Calendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Calendar{
		Location: loc,
		Open:     9*time.Hour + 30*time.Minute,
		Close:    16 * time.Hour,
		Cutoff:   15*time.Hour + 45*time.Minute,
		Warmup:   10 * time.Minute,
	}
}

func parseClock(raw string) (time.Duration, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("session clock %q: expected HH:MM", raw)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// TradingDay reports whether t falls on a weekday in the session timezone.
func (c *Calendar) TradingDay(t time.Time) bool {
	switch t.In(c.Location).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// SessionOpen returns the open of the session on t's local date.
func (c *Calendar) SessionOpen(t time.Time) time.Time {
	return c.midnight(t).Add(c.Open)
}

func (c *Calendar) SessionClose(t time.Time) time.Time {
	return c.midnight(t).Add(c.Close)
}

// IsOpen reports open <= t < close on a trading day.
func (c *Calendar) IsOpen(t time.Time) bool {
	if !c.TradingDay(t) {
		return false
	}
	return !t.Before(c.SessionOpen(t)) && t.Before(c.SessionClose(t))
}

// InWarmup reports open <= t < open+warm-up on a trading day.
func (c *Calendar) InWarmup(t time.Time) bool {
	if !c.IsOpen(t) {
		return false
	}
	return t.Before(c.SessionOpen(t).Add(c.Warmup))
}

// WarmupEnd is the first instant orders may be placed on t's date.
func (c *Calendar) WarmupEnd(t time.Time) time.Time {
	return c.SessionOpen(t).Add(c.Warmup)
}

// AfterCutoff reports cutoff <= t on a trading day, including after the close.
func (c *Calendar) AfterCutoff(t time.Time) bool {
	if !c.TradingDay(t) {
		return false
	}
	return !t.Before(c.midnight(t).Add(c.Cutoff))
}

// TradableAt reports whether a new position may be opened at t: inside the
// session, past the warm-up and before the cutoff.
func (c *Calendar) TradableAt(t time.Time) bool {
	return c.IsOpen(t) && !c.InWarmup(t) && !c.AfterCutoff(t)
}

func (c *Calendar) midnight(t time.Time) time.Time {
	lt := t.In(c.Location)
	y, m, d := lt.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location)
}
