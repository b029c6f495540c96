package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/docmate-health/docmate/internal/service"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// DefaultMaxUploadBytes bounds multipart uploads when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

var (
	errNoFile       = errors.New("no file uploaded")
	errFileTooLarge = errors.New("uploaded file is too large")
)

// stringPtr creates a pointer to a string
func stringPtr(s string) *string {
	return &s
}

// respondError writes the error envelope. Details are omitted when err is nil.
func respondError(c *gin.Context, status int, code, message string, err error) {
	resp := model.ErrorResponse{
		Error: message,
		Code:  code,
	}
	if err != nil {
		resp.Details = stringPtr(err.Error())
	}
	c.AbortWithStatusJSON(status, resp)
}

// readUpload reads a multipart file into memory. The MIME type comes from
// the part header and is sniffed from the content when absent or generic.
func readUpload(c *gin.Context, field string, maxBytes int64) (service.Upload, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return service.Upload{}, errNoFile
	}

	f, err := header.Open()
	if err != nil {
		return service.Upload{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return service.Upload{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return service.Upload{}, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, maxBytes)
	}
	if len(data) == 0 {
		return service.Upload{}, errNoFile
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(data).String()
	}

	return service.Upload{
		Filename: header.Filename,
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

// respondUploadError writes the envelope for a failed readUpload
func respondUploadError(c *gin.Context, err error, missingMessage string) {
	switch {
	case errors.Is(err, errNoFile):
		respondError(c, http.StatusBadRequest, model.CodeValidation, missingMessage, nil)
	case errors.Is(err, errFileTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, model.CodeValidation, "Uploaded file is too large", err)
	default:
		respondError(c, http.StatusBadRequest, model.CodeValidation, "Invalid upload", err)
	}
}
