package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    2,
		AuthRate:        rate.Limit(1),
		AuthBurst:       2,
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddlewareLimitsPerUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	do := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/track", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// バースト分は通る
	if do("user-1") != http.StatusOK || do("user-1") != http.StatusOK {
		t.Fatal("requests within burst should pass")
	}
	// バーストを超えると429
	if code := do("user-1"); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", code)
	}
	// 別ユーザーは影響を受けない
	if code := do("user-2"); code != http.StatusOK {
		t.Errorf("other user status = %d, want 200", code)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestGeneralMiddlewareRequiresAuth(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/track", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddlewareLimitsPerIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	do := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("10.1.1.1:1234") != http.StatusOK || do("10.1.1.1:5678") != http.StatusOK {
		t.Fatal("requests within burst should pass")
	}
	if code := do("10.1.1.1:9999"); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", code)
	}
	// 別IPは独立にカウントされる
	if code := do("10.2.2.2:1234"); code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", code)
	}
}

func TestAuthMiddlewareSetsRetryAfter(t *testing.T) {
	config := testRateLimiterConfig()
	config.AuthBurst = 1
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.1.1.1:1234"

	handler.ServeHTTP(httptest.NewRecorder(), req)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if ip := clientIP(req); ip != "203.0.113.7" {
		t.Errorf("clientIP() = %q, want 203.0.113.7", ip)
	}
}
