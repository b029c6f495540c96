// Package client is a typed HTTP client for the DocMate API. Every method is
// a single request with no retries; failures surface as *APIError.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docmate-health/docmate/pkg/model"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every request unless Config.Timeout is set. Model
// calls can take most of a minute.
const DefaultTimeout = 90 * time.Second

// ErrNotFound is matched by errors.Is for any 404 response
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response carrying the server's error envelope
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Details != "" && !strings.Contains(msg, e.Details) {
		msg += ": " + e.Details
	}
	return fmt.Sprintf("docmate api: %d %s", e.Status, msg)
}

// Is makes 404 responses match ErrNotFound
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Config holds client settings
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// File is an upload sent as a multipart part. MIMEType is sniffed from the
// content when empty.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Client calls the DocMate API
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// New creates a new Client
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		logger: cfg.Logger,
	}, nil
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) (*model.HealthStatus, error) {
	var out model.HealthStatus
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeSymptoms calls POST /api/analyze-symptoms
func (c *Client) AnalyzeSymptoms(ctx context.Context, req model.SymptomsRequest) (*model.SymptomAnalysis, error) {
	var out model.SymptomAnalysis
	if err := c.do(ctx, http.MethodPost, "/api/analyze-symptoms", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeReport uploads a lab report image or PDF
func (c *Client) AnalyzeReport(ctx context.Context, report File) (*model.ReportAnalysis, error) {
	var out model.ReportAnalysis
	if err := c.upload(ctx, "/api/analyze-report", "report", report, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuggestRemedies calls POST /api/suggest-remedies
func (c *Client) SuggestRemedies(ctx context.Context, req model.RemediesRequest) (*model.RemediesResponse, error) {
	var out model.RemediesResponse
	if err := c.do(ctx, http.MethodPost, "/api/suggest-remedies", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat calls POST /api/chat. The caller resends the whole history each turn.
func (c *Client) Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	var out model.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatAudio uploads a recorded voice message
func (c *Client) ChatAudio(ctx context.Context, audio File, preferredLanguage string) (*model.ChatResponse, error) {
	var fields map[string]string
	if preferredLanguage != "" {
		fields = map[string]string{"preferred_language": preferredLanguage}
	}

	var out model.ChatResponse
	if err := c.upload(ctx, "/api/chat-audio", "audio", audio, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateInsights calls POST /api/generate-health-insights
func (c *Client) GenerateInsights(ctx context.Context, req model.InsightsRequest) (*model.HealthInsights, error) {
	var out model.HealthInsights
	if err := c.do(ctx, http.MethodPost, "/api/generate-health-insights", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenderReportPDF returns the rendered PDF and, when the server archived it,
// the blob name.
func (c *Client) RenderReportPDF(ctx context.Context, req model.ReportPDFRequest) ([]byte, string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetHeader("Accept", "application/pdf").
		SetError(&model.ErrorResponse{}).
		Post("/api/reports/pdf")
	if err != nil {
		return nil, "", fmt.Errorf("failed to call /api/reports/pdf: %w", err)
	}
	if resp.IsError() {
		return nil, "", toAPIError(resp)
	}
	return resp.Body(), resp.Header().Get("X-Report-Archive"), nil
}

// ArchivedReport downloads a previously archived report PDF
func (c *Client) ArchivedReport(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/pdf").
		SetPathParam("name", strings.TrimPrefix(name, "reports/")).
		SetError(&model.ErrorResponse{}).
		Get("/api/reports/archive/{name}")
	if err != nil {
		return nil, fmt.Errorf("failed to download archived report: %w", err)
	}
	if resp.IsError() {
		return nil, toAPIError(resp)
	}
	return resp.Body(), nil
}

// GetProfile returns the stored profile, or an error matching ErrNotFound
func (c *Client) GetProfile(ctx context.Context, userID string) (*model.ProfileEnvelope, error) {
	var out model.ProfileEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/profile/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveProfile stores the profile and settings of a user
func (c *Client) SaveProfile(ctx context.Context, userID string, env model.ProfileEnvelope) (*model.ProfileEnvelope, error) {
	var out model.ProfileEnvelope
	if err := c.do(ctx, http.MethodPut, "/api/profile/"+url.PathEscape(userID), env, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProfile erases the profile and settings of a user
func (c *Client) DeleteProfile(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/profile/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetError(&model.ErrorResponse{})
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error("DocMate API call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}

	c.logger.Debug("DocMate API call completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.IsError() {
		return toAPIError(resp)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, path, field string, file File, fields map[string]string, out any) error {
	if len(file.Data) == 0 {
		return fmt.Errorf("%s file is empty", field)
	}
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = mimetype.Detect(file.Data).String()
	}
	name := file.Name
	if name == "" {
		name = field
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField(field, name, mimeType, bytes.NewReader(file.Data)).
		SetMultipartFormData(fields).
		SetResult(out).
		SetError(&model.ErrorResponse{}).
		Post(path)
	if err != nil {
		c.logger.Error("DocMate upload failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to upload to %s: %w", path, err)
	}
	if resp.IsError() {
		return toAPIError(resp)
	}
	return nil
}

func toAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode()}
	if env, ok := resp.Error().(*model.ErrorResponse); ok && env != nil {
		apiErr.Code = env.Code
		apiErr.Message = env.Error
		if env.Details != nil {
			apiErr.Details = *env.Details
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(resp.Body()))
	}
	return apiErr
}
