package livehttp

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"intrabot/internal/decision"
	"intrabot/internal/logger"

	"github.com/gin-gonic/gin"
)

// LiveHandler is implemented by the live service.
type LiveHandler interface {
	GatewayConnected() bool
	Positions() []PositionView
	Position(instrument string) (PositionView, bool)
	CoordinatorStatus() CoordinatorStatus
	OpenOrders(ctx context.Context) ([]OrderView, error)
	Flatten(ctx context.Context, instrument string) error
}

// Router mounts the /api/live endpoints.
type Router struct {
	Handler LiveHandler
}

func NewRouter(h LiveHandler) *Router {
	return &Router{Handler: h}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/positions", r.handlePositions)
	group.GET("/positions/:instrument", r.handlePosition)
	group.GET("/coordinator", r.handleCoordinator)
	group.GET("/orders", r.handleOrders)
	group.POST("/flatten/:instrument", r.handleFlatten)
}

func (r *Router) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": r.Handler.Positions()})
}

func (r *Router) handlePosition(c *gin.Context) {
	instrument := strings.ToUpper(strings.TrimSpace(c.Param("instrument")))
	pos, ok := r.Handler.Position(instrument)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument " + instrument})
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (r *Router) handleCoordinator(c *gin.Context) {
	c.JSON(http.StatusOK, r.Handler.CoordinatorStatus())
}

func (r *Router) handleOrders(c *gin.Context) {
	orders, err := r.Handler.OpenOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (r *Router) handleFlatten(c *gin.Context) {
	instrument := strings.ToUpper(strings.TrimSpace(c.Param("instrument")))
	if instrument == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instrument required"})
		return
	}
	logger.Infof("HTTP flatten requested for %s from %s", instrument, c.ClientIP())
	if err := r.Handler.Flatten(c.Request.Context(), instrument); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, decision.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"instrument": instrument, "status": "flatten submitted"})
}
