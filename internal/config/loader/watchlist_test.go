package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWatchlist(t *testing.T) {
	list, err := ParseWatchlist([]byte("instruments:\n  - aapl\n  - ' msft '\n  - AAPL\n  - ''\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, list)

	_, err = ParseWatchlist([]byte("instruments: [unclosed"))
	assert.Error(t, err)
}

func TestWatchlistLoader_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instruments: [AAPL]\n"), 0o644))

	l, err := NewWatchlistLoader(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, l.Snapshot().Instruments)

	got := make(chan WatchlistSnapshot, 4)
	l.Subscribe(func(s WatchlistSnapshot) {
		select {
		case got <- s:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Watch(ctx) }()
	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("instruments: [AAPL, spy]\n"), 0o644))
	// a truncating write may surface an empty intermediate snapshot first
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-got:
			if len(snap.Instruments) < 2 {
				continue
			}
			assert.Equal(t, []string{"AAPL", "SPY"}, snap.Instruments)
			assert.Greater(t, snap.Version, int64(1))
			return
		case <-deadline:
			t.Fatal("no reload after write")
		}
	}
}

func TestNewWatchlistLoader_MissingFile(t *testing.T) {
	_, err := NewWatchlistLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	_, err = NewWatchlistLoader(" ")
	assert.Error(t, err)
}
