package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ParseIntervalDuration parses bar intervals into a time.Duration. Both the short
// form ("1m", "5m", "1h", "1d") and the long form ("1min", "15min", "1H") are accepted.
// Returns (0, false) on invalid input.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 0, false
	}
	unit := time.Duration(0)
	numStr := ""
	switch {
	case strings.HasSuffix(interval, "min"):
		unit, numStr = time.Minute, strings.TrimSuffix(interval, "min")
	case strings.HasSuffix(interval, "m"):
		unit, numStr = time.Minute, strings.TrimSuffix(interval, "m")
	case strings.HasSuffix(interval, "h"):
		unit, numStr = time.Hour, strings.TrimSuffix(interval, "h")
	case strings.HasSuffix(interval, "d"):
		unit, numStr = 24*time.Hour, strings.TrimSuffix(interval, "d")
	default:
		return 0, false
	}
	numStr = strings.TrimSpace(numStr)
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// MustInterval is ParseIntervalDuration for values already validated by config.
func MustInterval(interval string) time.Duration {
	d, ok := ParseIntervalDuration(interval)
	if !ok {
		panic("scheduler: invalid interval " + interval)
	}
	return d
}
