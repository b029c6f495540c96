package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/docmate-health/docmate/internal/vitals"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const minVitalsInterval = 10 * time.Millisecond

var errStreamDone = errors.New("stream done")

// VitalsHandler streams simulated vitals as server-sent events
type VitalsHandler struct {
	interval time.Duration
	newSim   func() *vitals.Simulator
	logger   *zap.Logger
}

// NewVitalsHandler creates a new VitalsHandler ticking every interval
func NewVitalsHandler(interval time.Duration, logger *zap.Logger) *VitalsHandler {
	if interval <= 0 {
		interval = vitals.DefaultInterval
	}
	return &VitalsHandler{
		interval: interval,
		newSim:   func() *vitals.Simulator { return vitals.NewSimulator() },
		logger:   logger,
	}
}

// Stream handles GET /api/vitals/stream. Optional query parameters: ticks
// ends the stream after that many events, interval overrides the period.
func (h *VitalsHandler) Stream(c *gin.Context) {
	interval := h.interval
	if raw := c.Query("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < minVitalsInterval {
			respondError(c, http.StatusBadRequest, model.CodeValidation, "interval must be a duration of at least 10ms", err)
			return
		}
		interval = d
	}

	ticks := 0
	if raw := c.Query("ticks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, model.CodeValidation, "ticks must be a non-negative integer", err)
			return
		}
		ticks = n
	}

	sim := h.newSim()
	events := make(chan vitals.Tick)
	done := make(chan error, 1)

	ctx := c.Request.Context()
	go func() {
		sent := 0
		done <- sim.Run(ctx, interval, func(t vitals.Tick) error {
			select {
			case events <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
			sent++
			if ticks > 0 && sent >= ticks {
				return errStreamDone
			}
			return nil
		})
		close(events)
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("history", sim.History())

	c.Stream(func(w io.Writer) bool {
		t, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent("vitals", t)
		return true
	})

	if err := <-done; err != nil && !errors.Is(err, errStreamDone) && !errors.Is(err, ctx.Err()) {
		h.logger.Warn("vitals stream ended with error", zap.Error(err))
	}
}
