package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"golang.org/x/time/rate"
)

func testRateConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:       1,
		GeneralBurst:      2,
		RewardCreditRate:  rate.Limit(1.0 / 60.0),
		RewardCreditBurst: 1,
		CleanupInterval:   time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doAs(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/rewards/add", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestGeneralMiddleware_BurstThen429(t *testing.T) {
	rl := NewRateLimiter(testRateConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		if w := doAs(handler, "user-1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := doAs(handler, "user-1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

func TestGeneralMiddleware_IsolatesUsers(t *testing.T) {
	rl := NewRateLimiter(testRateConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		doAs(handler, "user-a")
	}
	if w := doAs(handler, "user-b"); w.Code != http.StatusOK {
		t.Errorf("user-b status = %d, want 200", w.Code)
	}
	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

func TestRateLimitMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateConfig())
	defer rl.Stop()

	if w := doAs(rl.GeneralMiddleware()(okHandler()), ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if w := doAs(rl.RewardCreditMiddleware()(okHandler()), ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRewardCreditMiddleware_RetryAfterAndIndependence(t *testing.T) {
	rl := NewRateLimiter(testRateConfig())
	defer rl.Stop()
	credit := rl.RewardCreditMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	if w := doAs(credit, "user-1"); w.Code != http.StatusOK {
		t.Fatalf("first credit status = %d, want 200", w.Code)
	}
	w := doAs(credit, "user-1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second credit status = %d, want 429", w.Code)
	}
	if got, _ := strconv.Atoi(w.Header().Get("Retry-After")); got != 60 {
		t.Errorf("Retry-After = %d, want 60", got)
	}

	// 報酬付与の制限はAPI全般の制限を消費しない
	if w := doAs(general, "user-1"); w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
	if got := rl.RewardCreditLimiterCount(); got != 1 {
		t.Errorf("RewardCreditLimiterCount = %d, want 1", got)
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := NewRateLimiter(testRateConfig())
	defer rl.Stop()
	doAs(rl.GeneralMiddleware()(okHandler()), "user-1")
	doAs(rl.RewardCreditMiddleware()(okHandler()), "user-1")

	rl.cleanup(time.Now())
	if rl.GeneralLimiterCount() != 1 {
		t.Fatal("recent entries must survive cleanup")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 || rl.RewardCreditLimiterCount() != 0 {
		t.Errorf("idle entries remain: general=%d credit=%d", rl.GeneralLimiterCount(), rl.RewardCreditLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testRateConfig())
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.RewardCreditRate >= cfg.GeneralRate {
		t.Errorf("RewardCreditRate %v should be stricter than GeneralRate %v", cfg.RewardCreditRate, cfg.GeneralRate)
	}
	if cfg.CleanupInterval <= 0 {
		t.Error("CleanupInterval must be positive")
	}
}
