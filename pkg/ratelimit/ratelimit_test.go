package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	// burst of 2: two immediate requests pass, the third waits for a refill
	limiter := NewLimiter(10, 2)

	if !limiter.Allow("test-key") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("test-key") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("test-key") {
		t.Error("Third request should be rate limited")
	}

	// 10 req/s = 100ms per token
	time.Sleep(150 * time.Millisecond)

	if !limiter.Allow("test-key") {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if !limiter.Allow("a") || !limiter.Allow("b") {
		t.Error("first request of each key should be allowed")
	}
	if limiter.Allow("a") {
		t.Error("second request of key a should be limited")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	limiter := NewLimiter(10, 1)
	limiter.Allow("old")
	time.Sleep(20 * time.Millisecond)
	limiter.Allow("new")

	if removed := limiter.Cleanup(10 * time.Millisecond); removed != 1 {
		t.Errorf("Cleanup removed %d keys, expected 1", removed)
	}
	if limiter.Len() != 1 {
		t.Errorf("Len = %d, expected 1", limiter.Len())
	}
}

func TestMiddleware(t *testing.T) {
	limiter := NewLimiter(10, 2)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := limiter.Middleware(func(r *http.Request) string {
		return "test-key"
	})(handler)

	codes := make([]int, 3)
	for i := range codes {
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, httptest.NewRequest("POST", "/snapshots", nil))
		codes[i] = rr.Code
		if i == 2 && rr.Header().Get("Retry-After") != "1" {
			t.Errorf("Retry-After = %q, expected 1", rr.Header().Get("Retry-After"))
		}
	}

	expected := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range codes {
		if codes[i] != expected[i] {
			t.Errorf("request %d status = %d, expected %d", i+1, codes[i], expected[i])
		}
	}
}

func TestKeyFuncs(t *testing.T) {
	tests := []struct {
		name     string
		remote   string
		headers  map[string]string
		keyFunc  func(*http.Request) string
		expected string
	}{
		{"remote addr", "10.0.0.1:5000", nil, IPKeyFunc, "10.0.0.1"},
		{"ignores forwarded", "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "1.2.3.4"}, IPKeyFunc, "10.0.0.1"},
		{"ignores authorization", "10.0.0.1:5000", map[string]string{"Authorization": "Bearer k"}, IPKeyFunc, "10.0.0.1"},
		{"forwarded", "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.2"}, ForwardedIPKeyFunc, "1.2.3.4"},
		{"not forwarded", "10.0.0.1:5000", nil, ForwardedIPKeyFunc, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := tt.keyFunc(req); got != tt.expected {
				t.Errorf("key = %q, expected %q", got, tt.expected)
			}
		})
	}
}
