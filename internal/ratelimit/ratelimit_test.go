package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/addonforge/addon-authors-go/internal/platform/cache/memory"
)

func newLimiter(t *testing.T, limit int64) *Limiter {
	t.Helper()
	c := memory.New(time.Minute, 0)
	t.Cleanup(func() { c.Close() })
	return New(c, &Config{
		RequestsPerWindow: limit,
		Window:            time.Minute,
		KeyPrefix:         "test:",
	})
}

func TestAllow(t *testing.T) {
	l := newLimiter(t, 3)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		result, err := l.Allow(ctx, "client")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d blocked, want allowed", i)
		}
		if result.Remaining != 3-i {
			t.Errorf("remaining = %d, want %d", result.Remaining, 3-i)
		}
	}

	result, err := l.Allow(ctx, "client")
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed || result.Remaining != 0 {
		t.Errorf("result = %+v, want blocked with 0 remaining", result)
	}

	// Other keys are unaffected.
	other, err := l.Allow(ctx, "other-client")
	if err != nil || !other.Allowed {
		t.Errorf("other client result = %+v, %v, want allowed", other, err)
	}
}

func TestCheckDoesNotConsume(t *testing.T) {
	l := newLimiter(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := l.Check(ctx, "client")
		if err != nil {
			t.Fatal(err)
		}
		if !result.Allowed {
			t.Fatal("Check() must not consume quota")
		}
	}
}

func TestReset(t *testing.T) {
	l := newLimiter(t, 1)
	ctx := context.Background()

	if _, err := l.Allow(ctx, "client"); err != nil {
		t.Fatal(err)
	}
	result, err := l.Allow(ctx, "client")
	if err != nil || result.Allowed {
		t.Fatalf("second request = %+v, %v, want blocked", result, err)
	}

	if err := l.Reset(ctx, "client"); err != nil {
		t.Fatal(err)
	}
	result, err = l.Allow(ctx, "client")
	if err != nil || !result.Allowed {
		t.Errorf("after reset = %+v, %v, want allowed", result, err)
	}
}

func TestKeyFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"remote addr with port", "192.0.2.10:54321", "", "192.0.2.10"},
		{"xff single", "192.0.2.10:54321", "203.0.113.7", "203.0.113.7"},
		{"xff chain takes first", "192.0.2.10:54321", "203.0.113.7, 198.51.100.2", "203.0.113.7"},
		{"no port", "192.0.2.10", "", "192.0.2.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := KeyFromRequest(r); got != tt.want {
				t.Errorf("KeyFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	l := newLimiter(t, 2)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:54321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do(); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}
}
