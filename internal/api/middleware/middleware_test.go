package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/config"
	"honeypot-lab/pkg/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s3cret", GetAPIKey(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		method string
		key    string
		want   int
	}{
		{"valid key", http.MethodPost, "s3cret", http.StatusOK},
		{"missing key", http.MethodPost, "", http.StatusUnauthorized},
		{"wrong key", http.MethodPost, "nope", http.StatusUnauthorized},
		{"preflight skips auth", http.MethodOptions, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/honeypot", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()

			if tt.method == http.MethodOptions {
				APIKeyAuth("s3cret")(okHandler).ServeHTTP(rec, req)
			} else {
				handler.ServeHTTP(rec, req)
			}

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"status":"error","message":"Invalid API key"}`, rec.Body.String())
			}
		})
	}
}

type stubLimiter struct {
	allowed bool
	err     error
	gotKey  string
}

func (s *stubLimiter) CheckRateLimit(_ context.Context, key string, limit int64, _ time.Duration) (bool, int64, time.Time, error) {
	s.gotKey = key
	if s.err != nil {
		return false, 0, time.Time{}, s.err
	}
	remaining := int64(0)
	if s.allowed {
		remaining = limit - 1
	}
	return s.allowed, remaining, time.Now().Add(time.Minute), nil
}

func TestRateLimiter(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, RequestsPerMinute: 10}

	t.Run("allowed", func(t *testing.T) {
		lim := &stubLimiter{allowed: true}
		req := httptest.NewRequest(http.MethodPost, "/api/honeypot", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()

		RateLimiter(lim, cfg, logger.NewNop())(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "ip:10.0.0.1", lim.gotKey)
	})

	t.Run("rejected", func(t *testing.T) {
		lim := &stubLimiter{allowed: false}
		req := httptest.NewRequest(http.MethodPost, "/api/honeypot", nil)
		rec := httptest.NewRecorder()

		RateLimiter(lim, cfg, logger.NewNop())(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("fails open", func(t *testing.T) {
		lim := &stubLimiter{err: errors.New("redis down")}
		rec := httptest.NewRecorder()

		RateLimiter(lim, cfg, logger.NewNop())(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	assert.Equal(t, "ip:203.0.113.7", getClientID(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "ip:198.51.100.4", getClientID(req))
}

func TestMetricsCapturesStatus(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/sessions/:id", normalizePath("/api/v1/sessions/abc-123"))
	assert.Equal(t, "/api/v1/reports/:id", normalizePath("/api/v1/reports/6f1c"))
	assert.Equal(t, "/api/v1/reports/", normalizePath("/api/v1/reports/"))
	assert.Equal(t, "/api/honeypot", normalizePath("/api/honeypot"))
}
