package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/docframe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSMiddleware(t *testing.T) {
	srv := &Server{corsOrigin: "https://review.example.com"}
	called := false
	handler := srv.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		method     string
		wantStatus int
		wantCalled bool
	}{
		{"preflight", http.MethodOptions, http.StatusOK, false},
		{"get", http.MethodGet, http.StatusTeapot, true},
		{"post", http.MethodPost, http.StatusTeapot, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(tt.method, "/sessions", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalled, called)
			assert.Equal(t, "https://review.example.com", w.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
			assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
		})
	}
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, rw.statusCode)
	assert.Equal(t, rec, rw.Unwrap())

	// httptest.ResponseRecorder cannot be hijacked.
	_, _, err := rw.Hijack()
	require.Error(t, err)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"remote addr", nil, "192.0.2.7:5123", "192.0.2.7"},
		{"remote addr without port", nil, "192.0.2.7", "192.0.2.7"},
		{"forwarded single", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "10.0.0.1:80", "203.0.113.9"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2"}, "10.0.0.1:80", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.1:80", "198.51.100.4"},
		{
			"forwarded wins over real ip",
			map[string]string{"X-Forwarded-For": "203.0.113.9", "X-Real-IP": "198.51.100.4"},
			"10.0.0.1:80",
			"203.0.113.9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	})
	id := env.createSession(t, testutil.SinglePageID)

	status, _ := env.locate(t, id, field("InvoiceTotal"))
	require.Equal(t, http.StatusOK, status)

	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/sessions/"+id+"/reset", nil)
	require.NoError(t, err)
	resp, err := env.http.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "minute", resp.Header.Get("X-RateLimit-Type"))
	assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Read-only routes are not limited.
	code, _ := env.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHandleRateLimitErrorUnexpected(t *testing.T) {
	srv := &Server{}
	w := httptest.NewRecorder()
	srv.handleRateLimitError(w, errors.New("store down"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decode[ErrorResponse](t, w.Body.Bytes()).Code)
}
