package config

import (
	"strings"
)

const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppHTTPAddr        = ":9991"
	defaultGatewayMode        = "paper"
	defaultGatewayHost        = "127.0.0.1"
	defaultGatewayPort        = 7497
	defaultGatewayClientID    = 1
	defaultReconnectMinMillis = 500
	defaultReconnectMaxMillis = 5000
	defaultSubmitTimeout      = 15
	defaultBreakerThreshold   = 3
	defaultBreakerCooldown    = 60
	defaultStorePath          = "data/intrabot.db"
	defaultLookbackDays       = 4
	defaultBackfillTimeout    = 60
	defaultBufferSize         = 3000
	defaultSessionTimezone    = "America/New_York"
	defaultSessionOpen        = "09:30"
	defaultSessionClose       = "16:00"
	defaultSessionCutoff      = "15:45"
	defaultWarmupMinutes      = 10
	defaultEntryInterval      = "5m"
	defaultExitInterval       = "1m"
	defaultQuantity           = 100
	defaultOffsetMode         = "percent"
	defaultEntryOffset        = 0.0005
	defaultTargetOffset       = 0.02
	defaultStopOffset         = 0.01
	defaultTickSize           = 0.01
	defaultQueueSize          = 64
	defaultPollTimeout        = 30
	defaultReevaluate         = 15
	defaultPaperTickMillis    = 250
	defaultPaperStartPrice    = 100
	defaultPaperVolatility    = 0.0008
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Gateway.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Session.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Coordinator.applyDefaults(keys)
	c.Paper.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (g *GatewayConfig) applyDefaults(keys keySet) {
	if g == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("gateway.mode", &g.Mode, defaultGatewayMode),
		stringFieldDefault("gateway.host", &g.Host, defaultGatewayHost),
		intFieldDefault("gateway.port", &g.Port, defaultGatewayPort),
		intFieldDefault("gateway.client_id", &g.ClientID, defaultGatewayClientID),
		intFieldDefault("gateway.reconnect_min_ms", &g.ReconnectMinMillis, defaultReconnectMinMillis),
		intFieldDefault("gateway.reconnect_max_ms", &g.ReconnectMaxMillis, defaultReconnectMaxMillis),
		intFieldDefault("gateway.submit_timeout_seconds", &g.SubmitTimeoutSeconds, defaultSubmitTimeout),
		intFieldDefault("gateway.breaker_threshold", &g.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("gateway.breaker_cooldown_seconds", &g.BreakerCooldownSecond, defaultBreakerCooldown),
	)
	g.Mode = strings.ToLower(strings.TrimSpace(g.Mode))
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		intFieldDefault("store.lookback_days", &s.LookbackDays, defaultLookbackDays),
		intFieldDefault("store.backfill_timeout_seconds", &s.BackfillTimeoutSeconds, defaultBackfillTimeout),
		intFieldDefault("store.buffer_size", &s.BufferSize, defaultBufferSize),
	)
}

func (s *SessionConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("session.timezone", &s.Timezone, defaultSessionTimezone),
		stringFieldDefault("session.open", &s.Open, defaultSessionOpen),
		stringFieldDefault("session.close", &s.Close, defaultSessionClose),
		stringFieldDefault("session.cutoff", &s.Cutoff, defaultSessionCutoff),
		intFieldDefault("session.warmup_minutes", &s.WarmupMinutes, defaultWarmupMinutes),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("trading.entry_interval", &t.EntryInterval, defaultEntryInterval),
		stringFieldDefault("trading.exit_interval", &t.ExitInterval, defaultExitInterval),
		floatFieldDefault("trading.quantity", &t.Quantity, defaultQuantity),
		stringFieldDefault("trading.offset_mode", &t.OffsetMode, defaultOffsetMode),
		floatFieldDefault("trading.entry_offset", &t.EntryOffset, defaultEntryOffset),
		floatFieldDefault("trading.target_offset", &t.TargetOffset, defaultTargetOffset),
		floatFieldDefault("trading.stop_offset", &t.StopOffset, defaultStopOffset),
		floatFieldDefault("trading.tick_size", &t.TickSize, defaultTickSize),
	)
	t.OffsetMode = strings.ToLower(strings.TrimSpace(t.OffsetMode))
	t.Instruments = NormalizeInstruments(t.Instruments)
}

func (c *CoordinatorConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("coordinator.queue_size", &c.QueueSize, defaultQueueSize),
		intFieldDefault("coordinator.poll_timeout_seconds", &c.PollTimeoutSeconds, defaultPollTimeout),
		intFieldDefault("coordinator.reevaluate_seconds", &c.ReevaluateSeconds, defaultReevaluate),
	)
}

func (p *PaperConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("paper.tick_ms", &p.TickMillis, defaultPaperTickMillis),
		floatFieldDefault("paper.start_price", &p.StartPrice, defaultPaperStartPrice),
		floatFieldDefault("paper.volatility", &p.Volatility, defaultPaperVolatility),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
