package config

import (
	"strings"
	"time"
)

// Config is the root configuration of intrabot.
type Config struct {
	App         AppConfig         `toml:"app"`
	Gateway     GatewayConfig     `toml:"gateway"`
	Store       StoreConfig       `toml:"store"`
	Session     SessionConfig     `toml:"session"`
	Trading     TradingConfig     `toml:"trading"`
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Paper       PaperConfig       `toml:"paper"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
}

// GatewayConfig describes how the venue gateway is reached. Mode "paper" runs the
// in-process simulated venue.
type GatewayConfig struct {
	Mode                  string `toml:"mode"`
	Host                  string `toml:"host"`
	Port                  int    `toml:"port"`
	ClientID              int    `toml:"client_id"`
	ReconnectMinMillis    int    `toml:"reconnect_min_ms"`
	ReconnectMaxMillis    int    `toml:"reconnect_max_ms"`
	SubmitTimeoutSeconds  int    `toml:"submit_timeout_seconds"`
	BreakerThreshold      int    `toml:"breaker_threshold"`
	BreakerCooldownSecond int    `toml:"breaker_cooldown_seconds"`
}

func (g GatewayConfig) ReconnectDelay() time.Duration {
	return time.Duration(g.ReconnectMinMillis) * time.Millisecond
}

func (g GatewayConfig) SubmitTimeout() time.Duration {
	return time.Duration(g.SubmitTimeoutSeconds) * time.Second
}

type StoreConfig struct {
	Path                   string `toml:"path"`
	LookbackDays           int    `toml:"lookback_days"`
	BackfillTimeoutSeconds int    `toml:"backfill_timeout_seconds"`
	BufferSize             int    `toml:"buffer_size"`
}

func (s StoreConfig) BackfillTimeout() time.Duration {
	return time.Duration(s.BackfillTimeoutSeconds) * time.Second
}

// SessionConfig holds the exchange-local regular trading hours.
type SessionConfig struct {
	Timezone      string `toml:"timezone"`
	Open          string `toml:"open"`
	Close         string `toml:"close"`
	Cutoff        string `toml:"cutoff"`
	WarmupMinutes int    `toml:"warmup_minutes"`
}

// TradingConfig is the operator-facing trading surface.
type TradingConfig struct {
	Instruments     []string `toml:"instruments"`
	WatchlistPath   string   `toml:"watchlist_path"`
	EntryInterval   string   `toml:"entry_interval"`
	ExitInterval    string   `toml:"exit_interval"`
	AllowOutsideRTH bool     `toml:"allow_outside_rth"`
	Quantity        float64  `toml:"quantity"`
	OffsetMode      string   `toml:"offset_mode"` // "percent" | "absolute"
	EntryOffset     float64  `toml:"entry_offset"`
	TargetOffset    float64  `toml:"target_offset"`
	StopOffset      float64  `toml:"stop_offset"`
	TickSize        float64  `toml:"tick_size"`
}

// NormalizedInstruments returns the upper-cased, de-duplicated instrument list.
func (t TradingConfig) NormalizedInstruments() []string {
	return NormalizeInstruments(t.Instruments)
}

func NormalizeInstruments(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

type CoordinatorConfig struct {
	QueueSize          int `toml:"queue_size"`
	PollTimeoutSeconds int `toml:"poll_timeout_seconds"`
	ReevaluateSeconds  int `toml:"reevaluate_seconds"`
}

func (c CoordinatorConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

func (c CoordinatorConfig) ReevaluateEvery() time.Duration {
	return time.Duration(c.ReevaluateSeconds) * time.Second
}

// PaperConfig drives the simulated venue and its random-walk tick feed.
type PaperConfig struct {
	Seed       int64   `toml:"seed"`
	TickMillis int     `toml:"tick_ms"`
	StartPrice float64 `toml:"start_price"`
	Volatility float64 `toml:"volatility"`
}

// keySet tracks the config paths explicitly present in the loaded files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
