package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitExceeded(t *testing.T) {
	limiter := newRateLimiter(1, 1)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	handler := middleware.RequestID(limiter.middleware(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first call 200, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	var body map[string]any
	if err := json.Unmarshal(rr2.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode rate limit body: %v", err)
	}
	if body["error"] == nil || body["request_id"] == nil {
		t.Fatalf("expected error and request_id in body: %v", body)
	}

	other := req.Clone(req.Context())
	other.RemoteAddr = "10.0.0.2:1234"
	rr3 := httptest.NewRecorder()
	handler.ServeHTTP(rr3, other)
	if rr3.Code != http.StatusOK {
		t.Fatalf("expected separate bucket per client, got %d", rr3.Code)
	}

	now = now.Add(time.Second)
	rr4 := httptest.NewRecorder()
	handler.ServeHTTP(rr4, req.Clone(req.Context()))
	if rr4.Code != http.StatusOK {
		t.Fatalf("expected bucket to refill, got %d", rr4.Code)
	}
}

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	limiter := newRateLimiter(10, 10)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.allow("a")
	now = now.Add(10 * time.Minute)
	limiter.allow("b")
	if _, ok := limiter.buckets["a"]; ok {
		t.Fatalf("expected idle bucket to be swept")
	}
	if len(limiter.buckets) != 1 {
		t.Fatalf("unexpected buckets: %d", len(limiter.buckets))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Fatalf("unexpected ip: %s", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded address, got %s", got)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://admin.example.com"})(okHandler())

	cases := []struct {
		origin string
		allow  string
	}{
		{"https://admin.example.com", "https://admin.example.com"},
		{"http://localhost:3000", "http://localhost:3000"},
		{"https://evil.example.com", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
		req.Header.Set("Origin", tc.origin)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.allow {
			t.Fatalf("origin %s: expected %q, got %q", tc.origin, tc.allow, got)
		}
	}

	preflight := httptest.NewRequest(http.MethodOptions, "/v1/roles", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, preflight)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	c := newTestAPI(t, WithMaxBodyBytes(16))
	resp := c.do(http.MethodPost, "/v1/departments", c.token("admin-1", "admin"),
		map[string]any{"name": "a department name well past the limit"})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestLoggingEmitsStructuredEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := &API{log: zap.New(core)}

	handler := middleware.RequestID(a.logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for _, key := range []string{"method", "path", "status", "bytes", "duration", "request_id"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("expected key %q in log entry", key)
		}
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("unexpected status: %v", fields["status"])
	}
	if fields["path"] != "/log-test" {
		t.Fatalf("unexpected path: %v", fields["path"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing security headers: %v", rr.Header())
	}
}
