package paper

import (
	"time"

	"intrabot/internal/session"
)

type Config struct {
	Seed         int64
	TickInterval time.Duration
	StartPrice   float64
	Volatility   float64
	// Calendar limits generated history to session minutes when set.
	Calendar *session.Calendar
	// MaxHistoryBars bounds one historical request.
	MaxHistoryBars int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Seed == 0 {
		out.Seed = time.Now().UnixNano()
	}
	if out.StartPrice <= 0 {
		out.StartPrice = 100
	}
	if out.Volatility <= 0 {
		out.Volatility = 0.0008
	}
	if out.MaxHistoryBars <= 0 {
		out.MaxHistoryBars = 20000
	}
	return out
}
