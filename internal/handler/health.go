package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/docmate-health/docmate/pkg/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger checks a backing dependency, typically *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler implements the liveness endpoints
type HealthHandler struct {
	db     Pinger
	now    func() time.Time
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil when no
// database is configured.
func NewHealthHandler(db Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		now:    time.Now,
		logger: logger,
	}
}

// Root handles GET /
func (h *HealthHandler) Root(c *gin.Context) {
	c.String(http.StatusOK, "DocMate API is running...")
}

// GetHealth handles GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	status := model.HealthStatus{
		Status:    "ok",
		Timestamp: h.now().UTC(),
	}

	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			h.logger.Error("health check failed: database unreachable", zap.Error(err))
			status.Status = "unhealthy"
			status.Database = "disconnected"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status.Database = "connected"
	}

	c.JSON(http.StatusOK, status)
}
