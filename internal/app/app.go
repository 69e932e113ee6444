package app

import (
	"context"
	"fmt"

	"intrabot/internal/agent"
	"intrabot/internal/config"
	"intrabot/internal/logger"
	livehttp "intrabot/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App wires configuration, storage, the venue gateway and the live pipeline.
type App struct {
	cfg      *config.Config
	live     *agent.LiveService
	liveHTTP *livehttp.Server
	closers  []func() error
	Summary  *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg, opts)
}

// Run serves the HTTP surface and the live pipeline until ctx is done or one
// of them fails. Storage is closed after the pipeline has shut down.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.live == nil {
		return fmt.Errorf("live service not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	defer a.close()

	group, ctx := errgroup.WithContext(ctx)
	if a.liveHTTP != nil {
		group.Go(func() error {
			if err := a.liveHTTP.Start(ctx); err != nil {
				return fmt.Errorf("live http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		defer a.live.Close()
		return a.live.Run(ctx)
	})
	return group.Wait()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("App: close failed: %v", err)
		}
	}
	a.closers = nil
}

// LiveService exposes the live service for tests and embedding programs.
func (a *App) LiveService() *agent.LiveService {
	if a == nil {
		return nil
	}
	return a.live
}
