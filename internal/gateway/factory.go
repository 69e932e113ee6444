package gateway

import (
	"errors"
	"fmt"
	"time"

	"intrabot/internal/config"
	"intrabot/internal/gateway/paper"
	"intrabot/internal/gateway/venue"
	"intrabot/internal/session"
)

// ErrExternalGateway is returned for mode "external": the broker session is
// provided by the embedding program through app options.
var ErrExternalGateway = errors.New("gateway: external broker session not linked into this binary")

// NewGatewayFromConfig builds the venue gateway selected by gateway.mode.
func NewGatewayFromConfig(cfg *config.Config, cal *session.Calendar) (venue.Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	switch cfg.Gateway.Mode {
	case "", "paper":
		return paper.New(paper.Config{
			Seed:         cfg.Paper.Seed,
			TickInterval: time.Duration(cfg.Paper.TickMillis) * time.Millisecond,
			StartPrice:   cfg.Paper.StartPrice,
			Volatility:   cfg.Paper.Volatility,
			Calendar:     cal,
		}), nil
	case "external":
		return nil, fmt.Errorf("%w (%s:%d client %d)", ErrExternalGateway, cfg.Gateway.Host, cfg.Gateway.Port, cfg.Gateway.ClientID)
	default:
		return nil, fmt.Errorf("unsupported gateway mode: %s", cfg.Gateway.Mode)
	}
}
