package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
trading:
  instruments: [" aapl", "MSFT", "aapl"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Trading.Instruments)
	assert.Equal(t, "paper", cfg.Gateway.Mode)
	assert.Equal(t, "America/New_York", cfg.Session.Timezone)
	assert.Equal(t, "15:45", cfg.Session.Cutoff)
	assert.Equal(t, 10, cfg.Session.WarmupMinutes)
	assert.Equal(t, "5m", cfg.Trading.EntryInterval)
	assert.Equal(t, "1m", cfg.Trading.ExitInterval)
	assert.Equal(t, "percent", cfg.Trading.OffsetMode)
	assert.Equal(t, 64, cfg.Coordinator.QueueSize)
	assert.Equal(t, 3000, cfg.Store.BufferSize)
}

func TestLoad_ExplicitZeroKeepsValue(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
session:
  warmup_minutes: 0
trading:
  instruments: [AAPL]
  entry_offset: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Session.WarmupMinutes)
	assert.Zero(t, cfg.Trading.EntryOffset)
}

func TestLoad_FollowsIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
trading:
  instruments: [SPY]
  quantity: 10
`)
	path := writeFile(t, dir, "config.yaml", `
include: [base.yaml]
trading:
  quantity: 25
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY"}, cfg.Trading.Instruments)
	assert.Equal(t, 25.0, cfg.Trading.Quantity)
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
trading:
  instruments: [AAPL]
  quantity: 100
`)
	t.Setenv("INTRABOT_TRADING_QUANTITY", "40")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40.0, cfg.Trading.Quantity)
}

func TestLoad_EnvOverridesKeysAbsentFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
trading:
  quantity: 100
`)
	t.Setenv("INTRABOT_TRADING_INSTRUMENTS", "spy,qqq")
	t.Setenv("INTRABOT_SESSION_WARMUP_MINUTES", "0")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY", "QQQ"}, cfg.Trading.Instruments)
	assert.Equal(t, 0, cfg.Session.WarmupMinutes)
	assert.Equal(t, 100.0, cfg.Trading.Quantity)
}

func TestLoad_UnknownKeysIgnored(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
trading:
  instruments: [AAPL]
  quantty: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100.0, cfg.Trading.Quantity)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"no instruments": `
trading:
  quantity: 1
`,
		"bad mode": `
gateway:
  mode: ftp
trading:
  instruments: [AAPL]
`,
		"cutoff after close": `
session:
  cutoff: "16:30"
trading:
  instruments: [AAPL]
`,
		"odd interval": `
trading:
  instruments: [AAPL]
  entry_interval: 90s
`,
		"percent offset too large": `
trading:
  instruments: [AAPL]
  stop_offset: 1.5
`,
		"bad timezone": `
session:
  timezone: Mars/Olympus
trading:
  instruments: [AAPL]
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, "9h30m0s", d.String())
	_, err = ParseClock("9.30")
	require.Error(t, err)
}
