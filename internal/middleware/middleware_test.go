package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(Logger(logger))
	r.Get("/recipes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found"}`))
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/recipes/abc", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request completed", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "/recipes/abc", line["path"])
	assert.Equal(t, "/recipes/{id}", line["route"])
	assert.EqualValues(t, 404, line["status"])
	assert.EqualValues(t, len(`{"error":"not_found"}`), line["bytes"])
	assert.NotEmpty(t, line["request_id"])
}

func TestLogger_DefaultsTo200(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.EqualValues(t, 200, line["status"])
	assert.NotContains(t, line, "request_id")
}

func newTestLimiter(perSecond float64, burst int) *RateLimiter {
	return NewRateLimiter(perSecond, burst, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := newTestLimiter(0.001, 2)
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:2222").Code)

	limited := call("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.JSONEq(t, rateLimitedBody, limited.Body.String())
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1111").Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := newTestLimiter(1, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.limiter("old")
	now = now.Add(30 * time.Second)
	rl.limiter("recent")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, rl.Cleanup())
	assert.NotContains(t, rl.visitors, "old")
	assert.Contains(t, rl.visitors, "recent")
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := newTestLimiter(1, 1)
	rl.StartCleanup(time.Hour)
	rl.Stop()
	rl.Stop()
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", clientIP(req))

	req.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestRealIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name    string
		trusted []netip.Prefix
		remote  string
		xff     string
		realIP  string
		want    string
	}{
		{"no trusted proxies ignores headers", nil, "203.0.113.5:4000", "198.51.100.1", "", "203.0.113.5:4000"},
		{"untrusted peer ignores headers", trusted, "203.0.113.5:4000", "198.51.100.1", "198.51.100.2", "203.0.113.5:4000"},
		{"trusted peer uses forwarded client", trusted, "10.1.2.3:4000", "198.51.100.1", "", "198.51.100.1"},
		{"spoofed left hops are skipped", trusted, "10.1.2.3:4000", "1.1.1.1, 198.51.100.1, 10.9.9.9", "", "198.51.100.1"},
		{"x-real-ip fallback", trusted, "10.1.2.3:4000", "", "198.51.100.2", "198.51.100.2"},
		{"garbage hop keeps peer", trusted, "10.1.2.3:4000", "198.51.100.1, nonsense", "", "10.1.2.3:4000"},
		{"all hops trusted keeps peer", trusted, "10.1.2.3:4000", "10.4.4.4", "", "10.1.2.3:4000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := RealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimiter_IgnoresSpoofedForwardedFor(t *testing.T) {
	rl := newTestLimiter(0.001, 1)
	h := RealIP(nil)(rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.5:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}
