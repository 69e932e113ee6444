package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":    time.Minute,
		"5m":    5 * time.Minute,
		"1min":  time.Minute,
		"15min": 15 * time.Minute,
		"1H":    time.Hour,
		"2h":    2 * time.Hour,
		"1d":    24 * time.Hour,
	}
	for in, want := range cases {
		got, ok := ParseIntervalDuration(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "m", "0m", "-5m", "5x", "abc"} {
		_, ok := ParseIntervalDuration(bad)
		assert.False(t, ok, bad)
	}
}

func TestAlignedScheduler_NextTimes(t *testing.T) {
	s := NewAlignedScheduler("bars", time.Minute, 2*time.Second)
	now := time.Date(2024, 3, 4, 14, 30, 40, 0, time.UTC)
	boundary, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2024, 3, 4, 14, 31, 0, 0, time.UTC), boundary)
	assert.Equal(t, 22*time.Second, wait)
}

func TestAlignedScheduler_FiresWithBoundary(t *testing.T) {
	s := NewAlignedScheduler("fast", 20*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan time.Time, 4)
	go s.Start(ctx, func(b time.Time) {
		select {
		case got <- b:
		default:
		}
	})
	defer cancel()

	select {
	case b := <-got:
		assert.True(t, b.Equal(b.Truncate(20*time.Millisecond)))
	case <-time.After(time.Second):
		t.Fatal("scheduler did not fire")
	}
}
