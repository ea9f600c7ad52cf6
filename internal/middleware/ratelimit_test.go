package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/audiencia/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPostRequest(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/register", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 2, Burst: 5, CleanupInterval: time.Minute}, discardLogger())
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusCreated)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newPostRequest("203.0.113.1:5000"))

		if w.Result().StatusCode != http.StatusCreated {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusCreated)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfterHeader(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.5, Burst: 1, CleanupInterval: time.Minute}, discardLogger())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, newPostRequest("203.0.113.2:5000"))
	if w1.Result().StatusCode != http.StatusCreated {
		t.Fatalf("first request: status = %d, want %d", w1.Result().StatusCode, http.StatusCreated)
	}

	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, newPostRequest("203.0.113.2:5001"))

	resp := w2.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After should be a number, got %q", resp.Header.Get("Retry-After"))
	}
	if retryAfter != 2 {
		t.Errorf("Retry-After = %d, want 2", retryAfter)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
	if body.Error == "" {
		t.Error("error message should not be empty")
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1.0 / 60.0, Burst: 1, CleanupInterval: time.Minute}, discardLogger())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	for _, addr := range []string{"198.51.100.1:1000", "198.51.100.2:1000"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newPostRequest(addr))
		if w.Result().StatusCode != http.StatusCreated {
			t.Errorf("%s: status = %d, want %d", addr, w.Result().StatusCode, http.StatusCreated)
		}
	}

	if got := rl.LimiterCount(); got != 2 {
		t.Errorf("LimiterCount = %d, want 2", got)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.1:5000", "203.0.113.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		// RealIPが書き換えた値はポートを含まない
		{"203.0.113.9", "203.0.113.9"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := clientKey(req); got != tt.want {
			t.Errorf("clientKey(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Hour}, discardLogger())
	defer rl.Stop()

	rl.Middleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), newPostRequest("203.0.113.3:1"))
	if got := rl.LimiterCount(); got != 1 {
		t.Fatalf("LimiterCount = %d, want 1", got)
	}

	// TTL（CleanupIntervalの2倍）より前にアクセスしたことにする
	rl.mu.Lock()
	for _, cl := range rl.limiters {
		cl.lastAccess = time.Now().Add(-3 * time.Hour)
	}
	rl.mu.Unlock()

	rl.cleanup()

	if got := rl.LimiterCount(); got != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), discardLogger())
	rl.Stop()
	rl.Stop()
}

func TestRateLimiterConfigPerMinute(t *testing.T) {
	cfg := RateLimiterConfigPerMinute(30)
	if cfg.Burst != 30 {
		t.Errorf("Burst = %d, want 30", cfg.Burst)
	}
	if float64(cfg.Rate) != 0.5 {
		t.Errorf("Rate = %v, want 0.5", cfg.Rate)
	}

	// 0以下は1に切り上げる
	if got := RateLimiterConfigPerMinute(0).Burst; got != 1 {
		t.Errorf("Burst for 0 = %d, want 1", got)
	}

	def := DefaultRateLimiterConfig()
	if def.Burst != 10 || def.CleanupInterval != 5*time.Minute {
		t.Errorf("DefaultRateLimiterConfig() = %+v", def)
	}
}
