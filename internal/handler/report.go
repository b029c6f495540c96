package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/docmate-health/docmate/internal/azure"
	"github.com/docmate-health/docmate/internal/service"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReportArchiveHeader names the blob a rendered report was archived under
const ReportArchiveHeader = "X-Report-Archive"

// ReportHandler implements report API endpoints
type ReportHandler struct {
	service *service.ReportService
	logger  *zap.Logger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(service *service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		logger:  logger,
	}
}

// RenderPDF handles POST /api/reports/pdf
func (h *ReportHandler) RenderPDF(c *gin.Context) {
	var req model.ReportPDFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Invalid request body", err)
		return
	}
	if req.Report.ID == "" && req.Report.Title == "" {
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Report is required", nil)
		return
	}

	rendered, err := h.service.RenderPDF(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("failed to render report", zap.Error(err), zap.String("report_id", req.Report.ID))
		respondError(c, http.StatusInternalServerError, model.CodeInternal, "Failed to render report", err)
		return
	}

	if rendered.BlobName != "" {
		c.Header(ReportArchiveHeader, rendered.BlobName)
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="docmate-report-%s.pdf"`, safeFilename(req.Report.ID)))
	c.Data(http.StatusOK, "application/pdf", rendered.PDF)
}

// GetArchivedPDF handles GET /api/reports/archive/*name. The name may carry
// the reports/ prefix returned in the archive header.
func (h *ReportHandler) GetArchivedPDF(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	data, err := h.service.ArchivedPDF(c.Request.Context(), name)
	switch {
	case err == nil:
		c.Data(http.StatusOK, "application/pdf", data)
	case errors.Is(err, service.ErrArchiveDisabled):
		respondError(c, http.StatusServiceUnavailable, model.CodeUnavailable, "Report archive is not configured", nil)
	case errors.Is(err, azure.ErrInvalidBlobName):
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Invalid report name", err)
	case errors.Is(err, azure.ErrBlobNotFound):
		respondError(c, http.StatusNotFound, model.CodeNotFound, "Report not found", nil)
	default:
		h.logger.Error("failed to download archived report", zap.Error(err), zap.String("name", name))
		respondError(c, http.StatusInternalServerError, model.CodeInternal, "Failed to download archived report", err)
	}
}

// safeFilename keeps letters, digits, dash and underscore
func safeFilename(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "report"
	}
	return string(out)
}
