package store

import (
	"errors"
	"strings"
	"sync"

	"intrabot/internal/logger"
	"intrabot/internal/market"
)

var ErrEmptyInstrument = errors.New("instrument cannot be empty")

// BarBuffer keeps the most recent minute bars of every instrument in memory,
// sharded by instrument so writers of different instruments do not contend.
type BarBuffer struct {
	max    int
	shards []barShard
}

type barShard struct {
	mu   sync.RWMutex
	data map[string][]market.Bar
}

const defaultShardCount = 32

func NewBarBuffer(max int) *BarBuffer {
	return newBarBuffer(defaultShardCount, max)
}

func newBarBuffer(shards, max int) *BarBuffer {
	if shards <= 0 {
		shards = 1
	}
	if max <= 0 {
		max = 3000
	}
	out := &BarBuffer{
		max:    max,
		shards: make([]barShard, shards),
	}
	for i := range out.shards {
		out.shards[i] = barShard{data: make(map[string][]market.Bar)}
	}
	return out
}

func (s *BarBuffer) shardFor(instrument string) *barShard {
	idx := hashKey(instrument) % uint32(len(s.shards))
	return &s.shards[idx]
}

// Put appends bar to its instrument series. A bar with the same start as the
// last one replaces it. Older bars are appended as they arrive.
func (s *BarBuffer) Put(bar market.Bar) error {
	key := strings.ToUpper(strings.TrimSpace(bar.Instrument))
	if key == "" {
		return ErrEmptyInstrument
	}
	bar.Instrument = key
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur := sh.data[key]
	n := len(cur)
	if n > 0 && cur[n-1].Time.Equal(bar.Time) {
		cur[n-1] = bar
	} else {
		cur = append(cur, bar)
	}
	if len(cur) > s.max {
		cur = cur[len(cur)-s.max:]
	}
	sh.data[key] = cur
	return nil
}

// OnBarClosed lets the buffer sit behind the aggregator as a sink.
func (s *BarBuffer) OnBarClosed(bar market.Bar) {
	if err := s.Put(bar); err != nil {
		logger.Warnf("bar buffer: %v", err)
	}
}

// Seed replaces the series of instrument, keeping at most max bars.
func (s *BarBuffer) Seed(instrument string, bars []market.Bar) {
	key := strings.ToUpper(strings.TrimSpace(instrument))
	if key == "" {
		return
	}
	if len(bars) > s.max {
		bars = bars[len(bars)-s.max:]
	}
	dst := make([]market.Bar, len(bars))
	copy(dst, bars)
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.data[key] = dst
	sh.mu.Unlock()
}

// Get returns a copy of the full series of instrument.
func (s *BarBuffer) Get(instrument string) []market.Bar {
	return s.Last(instrument, 0)
}

// Last returns a copy of the newest n bars; n <= 0 means all.
func (s *BarBuffer) Last(instrument string, n int) []market.Bar {
	key := strings.ToUpper(strings.TrimSpace(instrument))
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	cur := sh.data[key]
	if n <= 0 || n > len(cur) {
		n = len(cur)
	}
	out := make([]market.Bar, n)
	copy(out, cur[len(cur)-n:])
	return out
}

func (s *BarBuffer) Len(instrument string) int {
	key := strings.ToUpper(strings.TrimSpace(instrument))
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.data[key])
}

// fnv-1a
func hashKey(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
