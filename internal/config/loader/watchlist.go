// Package loader keeps the instrument watchlist in sync with its YAML file.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"intrabot/internal/config"
	"intrabot/internal/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// WatchlistFile is the on-disk shape:
//
//	instruments:
//	  - AAPL
//	  - MSFT
type WatchlistFile struct {
	Instruments []string `yaml:"instruments"`
}

// WatchlistSnapshot is a read-only view of the last successful load.
type WatchlistSnapshot struct {
	Version     int64
	LoadedAt    time.Time
	Instruments []string
}

type ChangeListener func(WatchlistSnapshot)

type WatchlistLoader struct {
	path string

	mu        sync.RWMutex
	snapshot  WatchlistSnapshot
	listeners []ChangeListener
}

// ParseWatchlist decodes and normalizes a watchlist document.
func ParseWatchlist(data []byte) ([]string, error) {
	var f WatchlistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse watchlist failed: %w", err)
	}
	return config.NormalizeInstruments(f.Instruments), nil
}

// NewWatchlistLoader reads path once. Call Watch to follow later edits.
func NewWatchlistLoader(path string) (*WatchlistLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("watchlist loader requires path")
	}
	l := &WatchlistLoader{path: filepath.Clean(path)}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *WatchlistLoader) Path() string { return l.path }

func (l *WatchlistLoader) Snapshot() WatchlistSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Subscribe registers fn for future reloads.
func (l *WatchlistLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *WatchlistLoader) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read watchlist failed: %w", err)
	}
	list, err := ParseWatchlist(data)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.snapshot = WatchlistSnapshot{
		Version:     l.snapshot.Version + 1,
		LoadedAt:    time.Now(),
		Instruments: list,
	}
	l.mu.Unlock()
	logger.Infof("Watchlist reloaded %d instrument(s) from %s", len(list), filepath.Base(l.path))
	return nil
}

func (l *WatchlistLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("watchlist listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

// Watch follows the file until ctx is done. The parent directory is watched so
// editors that replace the file by rename are picked up too. A file that fails
// to parse keeps the previous snapshot.
func (l *WatchlistLoader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watchlist watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(l.path), err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != l.path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			if err := l.reload(); err != nil {
				logger.Errorf("watchlist reload failed (%s): %v", evt.Name, err)
				continue
			}
			l.notify()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("watchlist watcher error: %v", err)
		}
	}
}

func cloneSnapshot(s WatchlistSnapshot) WatchlistSnapshot {
	out := s
	out.Instruments = append([]string(nil), s.Instruments...)
	return out
}
