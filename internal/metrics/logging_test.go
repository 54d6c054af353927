package metrics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func jsonLogger(buf *bytes.Buffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.InfoLevel))
}

func serveLogged(t *testing.T, req *http.Request, status int) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	h := LoggingMiddleware(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return rec, entry
}

func TestLoggingMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	rec, entry := serveLogged(t, req, http.StatusAccepted)

	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/api/v1/runs", entry["path"])
	assert.Equal(t, float64(http.StatusAccepted), entry["status"])
	assert.Contains(t, entry, "duration_ms")
	assert.Equal(t, "192.168.1.1:12345", entry["client_ip"])

	id := rec.Header().Get("X-Request-ID")
	assert.NotEmpty(t, id)
	assert.Equal(t, id, entry["request_id"])
}

func TestLoggingMiddleware_KeepsRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/abc", nil)
	req.Header.Set("X-Request-ID", "trace-42")

	rec, entry := serveLogged(t, req, http.StatusOK)

	assert.Equal(t, "trace-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "trace-42", entry["request_id"])
}

func TestLoggingMiddleware_ClientIP(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		want      string
	}{
		{"remote addr", "", "10.0.0.1:54321"},
		{"single proxy", "203.0.113.50", "203.0.113.50"},
		{"proxy chain", "203.0.113.50, 10.0.0.2", "203.0.113.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			req.RemoteAddr = "10.0.0.1:54321"
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			_, entry := serveLogged(t, req, http.StatusOK)
			assert.Equal(t, tt.want, entry["client_ip"])
		})
	}
}
