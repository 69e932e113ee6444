package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intrabot/internal/config"
	"intrabot/internal/decision"
	"intrabot/internal/gateway"
	"intrabot/internal/strategy"
)

func loadTestConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	watchlist := filepath.Join(dir, "watchlist.yaml")
	require.NoError(t, os.WriteFile(watchlist, []byte("instruments: [spy, AAPL]\n"), 0o644))
	body := `
app:
  http_addr: "127.0.0.1:0"
store:
  path: ":memory:"
  lookback_days: 1
  backfill_timeout_seconds: 5
trading:
  instruments: [aapl, msft]
  watchlist_path: "` + watchlist + `"
paper:
  seed: 42
` + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNewApp_BuildsPaperPipeline(t *testing.T) {
	cfg := loadTestConfig(t, "")
	a, err := NewApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, a.LiveService())
	t.Cleanup(a.close)

	require.NotNil(t, a.Summary)
	assert.Equal(t, []string{"AAPL", "MSFT", "SPY"}, a.Summary.Instruments)
	assert.Equal(t, "paper", a.Summary.GatewayMode)
	assert.Equal(t, 5*time.Minute, a.Summary.Trading.EntryInterval)

	var buf bytes.Buffer
	a.Summary.Write(&buf)
	assert.Contains(t, buf.String(), "AAPL, MSFT, SPY")
}

func TestNewApp_ExternalGatewayNeedsOption(t *testing.T) {
	cfg := loadTestConfig(t, `
gateway:
  mode: external
  host: 10.0.0.5
`)
	_, err := NewApp(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrExternalGateway))
}

func TestNewApp_RejectsNilConfig(t *testing.T) {
	_, err := NewApp(nil)
	require.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := loadTestConfig(t, "")
	rejectAll := decision.ApproverFunc(func(context.Context, strategy.Signal) (bool, error) { return false, nil })
	a, err := NewApp(cfg, WithApprover(rejectAll))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(a.LiveService().Instruments()) == 3
	}, 10*time.Second, 20*time.Millisecond)
	assert.True(t, a.LiveService().GatewayConnected())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.False(t, a.LiveService().GatewayConnected())
}
