package config

import (
	"fmt"
	"strings"
	"time"

	"intrabot/internal/scheduler"
)

func validate(c *Config) error {
	if err := c.Gateway.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Coordinator.validate(); err != nil {
		return err
	}
	return nil
}

func (g *GatewayConfig) validate() error {
	switch g.Mode {
	case "paper", "external":
	default:
		return fmt.Errorf("gateway.mode must be paper or external, got %q", g.Mode)
	}
	if g.Mode == "external" && strings.TrimSpace(g.Host) == "" {
		return fmt.Errorf("gateway.host is required in external mode")
	}
	if g.ReconnectMaxMillis < g.ReconnectMinMillis {
		return fmt.Errorf("gateway.reconnect_max_ms must be >= reconnect_min_ms")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	if s.BufferSize < 200 {
		return fmt.Errorf("store.buffer_size must hold at least 200 bars, got %d", s.BufferSize)
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("session.timezone invalid: %w", err)
	}
	open, err := ParseClock(s.Open)
	if err != nil {
		return fmt.Errorf("session.open: %w", err)
	}
	closeAt, err := ParseClock(s.Close)
	if err != nil {
		return fmt.Errorf("session.close: %w", err)
	}
	cutoff, err := ParseClock(s.Cutoff)
	if err != nil {
		return fmt.Errorf("session.cutoff: %w", err)
	}
	if closeAt <= open {
		return fmt.Errorf("session.close must be after session.open")
	}
	if cutoff <= open || cutoff > closeAt {
		return fmt.Errorf("session.cutoff must fall inside the session")
	}
	if s.WarmupMinutes < 0 {
		return fmt.Errorf("session.warmup_minutes must be >= 0")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if len(t.Instruments) == 0 && strings.TrimSpace(t.WatchlistPath) == "" {
		return fmt.Errorf("trading.instruments or trading.watchlist_path is required")
	}
	entry, ok := scheduler.ParseIntervalDuration(t.EntryInterval)
	if !ok {
		return fmt.Errorf("trading.entry_interval invalid: %q", t.EntryInterval)
	}
	exit, ok := scheduler.ParseIntervalDuration(t.ExitInterval)
	if !ok {
		return fmt.Errorf("trading.exit_interval invalid: %q", t.ExitInterval)
	}
	if entry%time.Minute != 0 || exit%time.Minute != 0 {
		return fmt.Errorf("trading intervals must be whole minutes")
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("trading.quantity must be > 0")
	}
	switch t.OffsetMode {
	case "percent":
		if t.TargetOffset >= 1 || t.StopOffset >= 1 || t.EntryOffset >= 1 {
			return fmt.Errorf("percent offsets must be fractions below 1")
		}
	case "absolute":
	default:
		return fmt.Errorf("trading.offset_mode must be percent or absolute, got %q", t.OffsetMode)
	}
	if t.EntryOffset < 0 || t.TargetOffset <= 0 || t.StopOffset <= 0 {
		return fmt.Errorf("trading offsets must be positive (entry may be 0)")
	}
	if t.TickSize <= 0 {
		return fmt.Errorf("trading.tick_size must be > 0")
	}
	return nil
}

func (c *CoordinatorConfig) validate() error {
	if c.QueueSize <= 0 {
		return fmt.Errorf("coordinator.queue_size must be > 0")
	}
	if c.PollTimeoutSeconds <= 0 {
		return fmt.Errorf("coordinator.poll_timeout_seconds must be > 0")
	}
	return nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(raw string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", raw)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
