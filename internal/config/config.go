package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"intrabot/internal/logger"
)

// EnvPrefix scopes environment overrides, e.g. INTRABOT_TRADING_QUANTITY=50.
const EnvPrefix = "INTRABOT"

// sectionKeys lists every recognised leaf key per top-level section. Each one is
// bound to INTRABOT_<SECTION>_<KEY>, and its presence decides whether a default
// may replace a zero value.
var sectionKeys = map[string][]string{
	"app": {"env", "log_level", "log_path", "http_addr"},
	"gateway": {"mode", "host", "port", "client_id", "reconnect_min_ms", "reconnect_max_ms",
		"submit_timeout_seconds", "breaker_threshold", "breaker_cooldown_seconds"},
	"store":   {"path", "lookback_days", "backfill_timeout_seconds", "buffer_size"},
	"session": {"timezone", "open", "close", "cutoff", "warmup_minutes"},
	"trading": {"instruments", "watchlist_path", "entry_interval", "exit_interval", "allow_outside_rth",
		"quantity", "offset_mode", "entry_offset", "target_offset", "stop_offset", "tick_size"},
	"coordinator": {"queue_size", "poll_timeout_seconds", "reevaluate_seconds"},
	"paper":       {"seed", "tick_ms", "start_price", "volatility"},
}

// Load reads the yaml file at path after the files it includes, applies
// environment overrides, fills defaults for keys that were not set and validates.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	files, err := newIncludeWalker().walk(root)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, file := range files {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	set, err := bindSections(v)
	if err != nil {
		return nil, err
	}
	warnUnknownKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults(set)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindSections binds the environment for every known key and reports the keys
// that the files or the environment set.
func bindSections(v *viper.Viper) (keySet, error) {
	set := make(keySet)
	for section, keys := range sectionKeys {
		for _, key := range keys {
			full := section + "." + key
			if err := v.BindEnv(full); err != nil {
				return nil, fmt.Errorf("bind env %s: %w", full, err)
			}
			if v.IsSet(full) {
				set.mark(full)
			}
		}
	}
	return set, nil
}

func warnUnknownKeys(v *viper.Viper) {
	var unknown []string
	for _, key := range v.AllKeys() {
		if key == "include" {
			continue
		}
		section, leaf, _ := strings.Cut(key, ".")
		if !knownKey(section, leaf) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		logger.Warnf("config: ignoring unknown keys %v", unknown)
	}
}

func knownKey(section, leaf string) bool {
	for _, k := range sectionKeys[section] {
		if k == leaf {
			return true
		}
	}
	return false
}

// includeWalker orders config files depth-first, each include before the file
// naming it, so later files override earlier ones.
type includeWalker struct {
	done     map[string]bool
	visiting map[string]bool
	order    []string
}

func newIncludeWalker() *includeWalker {
	return &includeWalker{done: make(map[string]bool), visiting: make(map[string]bool)}
}

func (w *includeWalker) walk(path string) ([]string, error) {
	if err := w.visit(filepath.Clean(path)); err != nil {
		return nil, err
	}
	return w.order, nil
}

func (w *includeWalker) visit(path string) error {
	if w.visiting[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if w.done[path] {
		return nil
	}
	w.visiting[path] = true
	includes, err := readIncludes(path)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := w.visit(filepath.Clean(inc)); err != nil {
			return err
		}
	}
	delete(w.visiting, path)
	w.done[path] = true
	w.order = append(w.order, path)
	return nil
}

func readIncludes(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var head struct {
		Include []string `yaml:"include"`
	}
	if err := yaml.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	out := head.Include[:0]
	for _, inc := range head.Include {
		if inc = strings.TrimSpace(inc); inc != "" {
			out = append(out, inc)
		}
	}
	return out, nil
}
