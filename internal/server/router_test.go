package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"testing"

	"github.com/docmate-health/docmate/internal/apispec"
	"github.com/docmate-health/docmate/internal/gemini"
	"github.com/docmate-health/docmate/internal/metrics"
	"github.com/docmate-health/docmate/internal/middleware"
	"github.com/docmate-health/docmate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGenerator struct {
	reply string
	err   error
}

func (g stubGenerator) GenerateJSON(context.Context, gemini.Request) (string, error) {
	return g.reply, g.err
}

func newTestRouter(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(Dependencies{
		Gateway: service.NewGatewayService(stubGenerator{reply: `{"response":"ok","language_code":"en-IN"}`}, zap.NewNop()),
		Metrics: metrics.New(),
		Logger:  zap.NewNop(),
	}, opts)
}

var ginParam = regexp.MustCompile(`[:*](\w+)`)

func TestRoutesMatchAPIDocument(t *testing.T) {
	r := newTestRouter(t, Options{})

	doc, err := apispec.Load(context.Background())
	require.NoError(t, err)

	var registered []string
	for _, route := range r.Routes() {
		registered = append(registered, route.Method+" "+ginParam.ReplaceAllString(route.Path, "{$1}"))
	}
	sort.Strings(registered)

	assert.Equal(t, apispec.Operations(doc), registered)
}

func TestRouter_ChatEndToEnd(t *testing.T) {
	r := newTestRouter(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"response":"ok","language_code":"en-IN"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `docmate_http_requests_total{method="POST",route="/api/chat",status="200"} 1`)
}

func TestRouter_RateLimitAppliesToAPIOnly(t *testing.T) {
	r := newTestRouter(t, Options{RateLimit: middleware.RateLimiterConfig{Rate: 1, Burst: 1}})

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.7:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, send("/api/profile/u1"))
	assert.Equal(t, http.StatusTooManyRequests, send("/api/profile/u1"))
	assert.Equal(t, http.StatusOK, send("/health"))
	assert.Equal(t, http.StatusOK, send("/health"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "docmate_rate_limited_requests_total 1")
}

func TestRouter_NoRouteAndCORS(t *testing.T) {
	r := newTestRouter(t, Options{AllowedOrigins: []string{"http://localhost:5173"}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Route not found","code":"NOT_FOUND"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfig(t *testing.T) {
	assert.True(t, corsConfig(nil).AllowAllOrigins)
	assert.True(t, corsConfig([]string{"*"}).AllowAllOrigins)

	cfg := corsConfig([]string{"https://docmate.app"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.True(t, cfg.AllowCredentials)
	assert.Equal(t, []string{"https://docmate.app"}, cfg.AllowOrigins)
}
