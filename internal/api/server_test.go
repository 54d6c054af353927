// internal/api/server_test.go
package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newthinker/portsim/internal/config"
	"github.com/newthinker/portsim/internal/feed"
	"github.com/newthinker/portsim/internal/marketdata"
	"github.com/newthinker/portsim/internal/metrics"
	"github.com/newthinker/portsim/internal/portfolio"
	"github.com/newthinker/portsim/internal/runner"
)

func newServer(t *testing.T, apiKey string, reg *metrics.Registry) *Server {
	t.Helper()
	m := feed.NewMemory("memory")
	r := runner.New(marketdata.NewLoader(m, m), portfolio.NewSimulator(portfolio.DefaultConfig(), nil))

	srv, err := NewServer(Config{
		Host:   "localhost",
		Port:   0,
		APIKey: apiKey,
	}, Dependencies{
		Runner:   r,
		Metrics:  reg,
		Defaults: config.Defaults().Simulation,
	}, zap.NewNop())
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, method, path, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := newServer(t, "secret", nil)

	w := serve(srv, "GET", "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_APIAuth_Required(t *testing.T) {
	srv := newServer(t, "secret", nil)

	w := serve(srv, "GET", "/api/v1/runs", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(srv, "GET", "/api/v1/runs", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(srv, "GET", "/api/v1/runs", "secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_NoAPIKey(t *testing.T) {
	srv := newServer(t, "", nil)

	w := serve(srv, "GET", "/api/v1/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	reg := metrics.NewRegistry()
	srv := newServer(t, "", reg)

	serve(srv, "GET", "/api/v1/runs", "")
	w := serve(srv, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "http_requests_total"))
	assert.Contains(t, body, `path="GET /api/v1/runs"`)
}

func TestNewServer_RequiresRunner(t *testing.T) {
	_, err := NewServer(Config{}, Dependencies{}, nil)
	assert.Error(t, err)
}
