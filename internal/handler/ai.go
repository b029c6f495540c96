package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/docmate-health/docmate/internal/service"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AIHandler implements the generative AI endpoints
type AIHandler struct {
	service        *service.GatewayService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewAIHandler creates a new AIHandler
func NewAIHandler(service *service.GatewayService, maxUploadBytes int64, logger *zap.Logger) *AIHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &AIHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// AnalyzeSymptoms handles POST /api/analyze-symptoms
func (h *AIHandler) AnalyzeSymptoms(c *gin.Context) {
	var req model.SymptomsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Symptoms) == "" {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Symptoms are required", nil)
		return
	}

	payload, err := h.service.AnalyzeSymptoms(c.Request.Context(), req)
	h.forward(c, payload, err, "Failed to analyze symptoms")
}

// AnalyzeReport handles POST /api/analyze-report
func (h *AIHandler) AnalyzeReport(c *gin.Context) {
	file, err := readUpload(c, "report", h.maxUploadBytes)
	if err != nil {
		respondUploadError(c, err, "No file uploaded")
		return
	}

	h.logger.Info("analyzing report",
		zap.String("filename", file.Filename),
		zap.String("mime_type", file.MIMEType),
		zap.Int("size", len(file.Data)),
	)

	payload, err := h.service.AnalyzeReport(c.Request.Context(), file)
	h.forward(c, payload, err, "Failed to analyze report")
}

// SuggestRemedies handles POST /api/suggest-remedies
func (h *AIHandler) SuggestRemedies(c *gin.Context) {
	var req model.RemediesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Diagnosis) == "" {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Diagnosis is required", nil)
		return
	}

	payload, err := h.service.SuggestRemedies(c.Request.Context(), req)
	h.forward(c, payload, err, "Failed to fetch remedies")
}

// Chat handles POST /api/chat
func (h *AIHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Message is required", nil)
		return
	}

	payload, err := h.service.Chat(c.Request.Context(), req)
	h.forward(c, payload, err, "Failed to process chat message")
}

// ChatAudio handles POST /api/chat-audio
func (h *AIHandler) ChatAudio(c *gin.Context) {
	audio, err := readUpload(c, "audio", h.maxUploadBytes)
	if err != nil {
		respondUploadError(c, err, "No audio file uploaded")
		return
	}
	audio.MIMEType = recordingType(audio.MIMEType)

	payload, err := h.service.ChatAudio(c.Request.Context(), audio, c.PostForm("preferred_language"))
	if errors.Is(err, service.ErrUnsupportedAudio) {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Unsupported audio format", err)
		return
	}
	h.forward(c, payload, err, "Failed to process audio message")
}

// GenerateInsights handles POST /api/generate-health-insights
func (h *AIHandler) GenerateInsights(c *gin.Context) {
	var req model.InsightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Invalid request body", err)
		return
	}
	if len(req.UserProfile) == 0 || string(req.UserProfile) == "null" {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "User profile is required", nil)
		return
	}

	payload, err := h.service.GenerateInsights(c.Request.Context(), req)
	h.forward(c, payload, err, "Failed to generate health insights")
}

// recordingType drops MIME parameters and maps the container types that
// sniffing reports for browser recordings back to their audio form.
func recordingType(mimeType string) string {
	base, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	switch base = strings.TrimSpace(base); base {
	case "video/webm":
		return "audio/webm"
	case "video/ogg", "application/ogg":
		return "audio/ogg"
	default:
		return base
	}
}

// forward writes the model JSON unchanged, or a 500 envelope on failure
func (h *AIHandler) forward(c *gin.Context, payload json.RawMessage, err error, failure string) {
	if err != nil {
		h.logger.Error(strings.ToLower(failure[:1])+failure[1:],
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		respondError(c, http.StatusInternalServerError, model.CodeUpstream, failure+": "+err.Error(), err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}
