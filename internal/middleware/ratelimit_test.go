package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{"valid", RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}, false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"negative window", RateLimitConfig{RequestsPerWindow: 10, WindowDuration: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultLimits(t *testing.T) {
	if err := DefaultGlobalLimit().Validate(); err != nil {
		t.Errorf("default global limit invalid: %v", err)
	}
	search := DefaultSearchLimit()
	if search.RequestsPerWindow != 10 || search.WindowDuration != time.Minute {
		t.Errorf("search limit = %+v, want 10/min", search)
	}
}

func TestInMemoryRateLimitStore_Allow(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := store.Allow(ctx, "key", config)
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if want := 2 - i; remaining != want {
			t.Errorf("request %d: expected remaining=%d, got %d", i+1, want, remaining)
		}
	}

	allowed, remaining, retryAfter := store.Allow(ctx, "key", config)
	if allowed {
		t.Error("4th request should be blocked")
	}
	if remaining != 0 {
		t.Errorf("expected remaining=0 when blocked, got %d", remaining)
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("expected retryAfter between 1 and 60, got %d", retryAfter)
	}
}

func TestInMemoryRateLimitStore_WindowExpiry(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()

	if allowed, _, _ := store.Allow(ctx, "key", config); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _, _ := store.Allow(ctx, "key", config); allowed {
		t.Fatal("second request should be blocked")
	}

	now = now.Add(time.Minute)
	if allowed, _, _ := store.Allow(ctx, "key", config); !allowed {
		t.Error("request after window expiry should be allowed")
	}
}

func TestInMemoryRateLimitStore_DifferentKeys(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()

	a, _, _ := store.Allow(ctx, "a", config)
	b, _, _ := store.Allow(ctx, "b", config)
	if !a || !b {
		t.Error("both keys should be allowed their first request")
	}
}

func TestInMemoryRateLimitStore_Cleanup(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	config := RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Second}

	store.Allow(context.Background(), "old", config)
	now = now.Add(2 * time.Second)
	store.Allow(context.Background(), "fresh", config)

	store.Cleanup()

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.buckets["old"]; ok {
		t.Error("expired bucket should be removed")
	}
	if _, ok := store.buckets["fresh"]; !ok {
		t.Error("live bucket should be kept")
	}
}

func TestInMemoryRateLimitStore_Concurrent(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Minute}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _, _ := store.Allow(context.Background(), "shared", config); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowedCount != 50 {
		t.Errorf("expected exactly 50 allowed requests, got %d", allowedCount)
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr with port", "192.0.2.1:1234", nil, "192.0.2.1"},
		{"remote addr without port", "192.0.2.1", nil, "192.0.2.1"},
		{"ipv6", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"x-forwarded-for chain", "10.0.0.1:1", map[string]string{"X-Forwarded-For": " 203.0.113.5 , 10.0.0.2"}, "203.0.113.5"},
		{"x-real-ip", "10.0.0.1:1", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
	}

	keyFunc := IPKeyFunc()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/search", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := keyFunc(req); got != tt.want {
				t.Errorf("IPKeyFunc() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserKeyFunc(t *testing.T) {
	keyFunc := UserKeyFunc()

	req := httptest.NewRequest(http.MethodGet, "/videos", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := keyFunc(req); got != "ip:192.0.2.1" {
		t.Errorf("anonymous key = %q, want ip:192.0.2.1", got)
	}

	req = req.WithContext(SetUserID(req.Context(), "user-7"))
	if got := keyFunc(req); got != "user:user-7" {
		t.Errorf("authenticated key = %q, want user:user-7", got)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	metrics := NewMetrics()

	handler := RateLimiter(store, config, IPKeyFunc(), metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/search?q=go", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
		if got := rr.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(1-i) {
			t.Errorf("request %d: X-RateLimit-Remaining = %s", i+1, got)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/search?q=go", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	reset, err := strconv.ParseInt(rr.Header().Get("X-RateLimit-Reset"), 10, 64)
	if err != nil || reset < time.Now().Unix() {
		t.Errorf("expected future X-RateLimit-Reset, got %q", rr.Header().Get("X-RateLimit-Reset"))
	}

	blocked := &dto.Metric{}
	if err := metrics.rateLimitBlocked.WithLabelValues("/search", "ip").Write(blocked); err != nil {
		t.Fatalf("failed to read metric: %v", err)
	}
	if blocked.Counter.GetValue() != 1 {
		t.Errorf("expected 1 blocked request, got %v", blocked.Counter.GetValue())
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}
}
