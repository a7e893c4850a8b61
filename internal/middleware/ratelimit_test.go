package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/fundori/fundori/internal/model"
)

type limitCounter struct {
	types []string
}

func (c *limitCounter) RecordRateLimited(limitType string) { c.types = append(c.types, limitType) }

func newClientRequest(clientID string) *http.Request {
	return withClientID(httptest.NewRequest(http.MethodGet, "/api/test", nil), clientID)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// --- GeneralMiddleware ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     2,
		GeneralBurst:    5,
		AuthRate:        1,
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newClientRequest("client-1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		AuthRate:        1,
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	counter := &limitCounter{}
	rl.SetRecorder(counter)
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), newClientRequest("client-1"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newClientRequest("client-1"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want a positive integer", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	if len(counter.types) != 1 || counter.types[0] != LimitTypeGeneral {
		t.Errorf("recorded = %v, want [general]", counter.types)
	}
}

func TestRateLimitMiddleware_ClientsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		AuthRate:        1,
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), newClientRequest("client-a"))
	exhausted := httptest.NewRecorder()
	handler.ServeHTTP(exhausted, newClientRequest("client-a"))
	if exhausted.Code != http.StatusTooManyRequests {
		t.Errorf("client-a second request status = %d, want 429", exhausted.Code)
	}

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, newClientRequest("client-b"))
	if other.Code != http.StatusOK {
		t.Errorf("client-b status = %d, want 200", other.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimitMiddleware_NoClientID_Returns401(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// --- AuthMiddleware ---

func TestAuthRateLimit_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     10,
		GeneralBurst:    10,
		AuthRate:        1.0 / 60.0,
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	counter := &limitCounter{}
	rl.SetRecorder(counter)

	general := rl.GeneralMiddleware()(okHandler())
	auth := rl.AuthMiddleware()(okHandler())

	first := httptest.NewRecorder()
	auth.ServeHTTP(first, newClientRequest("client-1"))
	if first.Code != http.StatusOK {
		t.Fatalf("first auth attempt status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	auth.ServeHTTP(second, newClientRequest("client-1"))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second auth attempt status = %d, want 429", second.Code)
	}
	if got := second.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}

	w := httptest.NewRecorder()
	general.ServeHTTP(w, newClientRequest("client-1"))
	if w.Code != http.StatusOK {
		t.Errorf("general request status = %d, want 200", w.Code)
	}

	if rl.AuthLimiterCount() != 1 || rl.GeneralLimiterCount() != 1 {
		t.Errorf("limiter counts = auth %d general %d, want 1 and 1", rl.AuthLimiterCount(), rl.GeneralLimiterCount())
	}
	if len(counter.types) != 1 || counter.types[0] != LimitTypeAuth {
		t.Errorf("recorded = %v, want [auth]", counter.types)
	}
}

func TestAuthRateLimit_CookielessAttemptsShareAddressLimit(t *testing.T) {
	rl := NewRateLimiter(NewRateLimiterConfig(1000, 2))
	defer rl.Stop()

	attempts := 0
	handler := newTestClientSessions().Middleware()(rl.AuthMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
	})))

	for i := 0; i < 50; i++ {
		// 毎回セッションCookieなしで送る
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:" + strconv.Itoa(40000+i)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if attempts != 2 {
		t.Errorf("attempts reaching handler = %d, want 2", attempts)
	}
	if n := rl.AuthLimiterCount(); n != 1 {
		t.Errorf("AuthLimiterCount = %d, want 1", n)
	}

	other := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	other.RemoteAddr = "198.51.100.20:5000"
	handler.ServeHTTP(httptest.NewRecorder(), other)
	if attempts != 3 {
		t.Errorf("attempts after another address = %d, want 3", attempts)
	}
}

func TestRemoteAddrKey(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.7:51234", "203.0.113.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"203.0.113.7", "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.remoteAddr, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			req.RemoteAddr = tt.remoteAddr
			got, err := remoteAddrKey(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		name string
		rate rate.Limit
		want int
	}{
		{"two per second", 2, 1},
		{"one per four seconds", 0.25, 4},
		{"zero rate", 0, maxRetryAfterSeconds},
		{"very slow rate", 1.0 / 86400.0, maxRetryAfterSeconds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryAfterSeconds(tt.rate); got != tt.want {
				t.Errorf("retryAfterSeconds(%v) = %d, want %d", tt.rate, got, tt.want)
			}
		})
	}
}

// --- 設定 ---

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 10)

	if cfg.GeneralBurst != 120 || cfg.AuthBurst != 10 {
		t.Errorf("bursts = %d/%d, want 120/10", cfg.GeneralBurst, cfg.AuthBurst)
	}
	if float64(cfg.GeneralRate) != 2 {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}
}

// --- クリーンアップ ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     2,
		GeneralBurst:    5,
		AuthRate:        1,
		AuthBurst:       1,
		CleanupInterval: 50 * time.Millisecond,
	})
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), newClientRequest("client-cleanup"))
	rl.AuthMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), newClientRequest("client-cleanup"))

	if rl.GeneralLimiterCount() == 0 || rl.AuthLimiterCount() == 0 {
		t.Fatal("expected limiter entries")
	}

	// TTLはCleanupIntervalの2倍（100ms）
	time.Sleep(250 * time.Millisecond)

	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("general entries after cleanup = %d, want 0", count)
	}
	if count := rl.AuthLimiterCount(); count != 0 {
		t.Errorf("auth entries after cleanup = %d, want 0", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}
