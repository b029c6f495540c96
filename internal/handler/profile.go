package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/docmate-health/docmate/internal/audit"
	"github.com/docmate-health/docmate/internal/repository"
	"github.com/docmate-health/docmate/internal/service"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProfileHandler implements the profile endpoints
type ProfileHandler struct {
	service *service.ProfileService
	logger  *zap.Logger
}

// NewProfileHandler creates a new ProfileHandler. service is nil when no
// database is configured; every route then answers 503.
func NewProfileHandler(service *service.ProfileService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		service: service,
		logger:  logger,
	}
}

// GetProfile handles GET /api/profile/:userId
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	if !h.available(c) {
		return
	}

	env, err := h.service.GetProfile(clientContext(c), c.Param("userId"))
	if err != nil {
		h.respondServiceError(c, err, "Failed to load profile")
		return
	}

	c.JSON(http.StatusOK, env)
}

// SaveProfile handles PUT /api/profile/:userId
func (h *ProfileHandler) SaveProfile(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req model.ProfileEnvelope
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Invalid request body", err)
		return
	}

	env, err := h.service.SaveProfile(clientContext(c), c.Param("userId"), req)
	if err != nil {
		h.respondServiceError(c, err, "Failed to save profile")
		return
	}

	c.JSON(http.StatusOK, env)
}

// DeleteProfile handles DELETE /api/profile/:userId
func (h *ProfileHandler) DeleteProfile(c *gin.Context) {
	if !h.available(c) {
		return
	}

	if err := h.service.DeleteProfile(clientContext(c), c.Param("userId")); err != nil {
		h.respondServiceError(c, err, "Failed to delete profile")
		return
	}

	c.Status(http.StatusNoContent)
}

func clientContext(c *gin.Context) context.Context {
	return audit.WithClient(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
}

func (h *ProfileHandler) available(c *gin.Context) bool {
	if h.service == nil {
		respondError(c, http.StatusServiceUnavailable, model.CodeUnavailable, "Profile storage is not configured", nil)
		return false
	}
	return true
}

func (h *ProfileHandler) respondServiceError(c *gin.Context, err error, failure string) {
	switch {
	case errors.Is(err, service.ErrInvalidUserID):
		respondError(c, http.StatusBadRequest, model.CodeValidation, "User id is required", nil)
	case errors.Is(err, repository.ErrProfileNotFound):
		respondError(c, http.StatusNotFound, model.CodeNotFound, "Profile not found", nil)
	default:
		h.logger.Error(failure, zap.Error(err), zap.String("user_id", c.Param("userId")))
		respondError(c, http.StatusInternalServerError, model.CodeInternal, failure, err)
	}
}
