package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mashtheking/PropertyPro-sub001/internal/metrics"
	"github.com/mashtheking/PropertyPro-sub001/internal/middleware"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

// routerResolver は "valid-token" のみを user-1 として解決する。
type routerResolver struct{}

func (routerResolver) ResolveSession(_ context.Context, token string) (string, error) {
	if token == "valid-token" {
		return "user-1", nil
	}
	return "", nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg)

	return NewRouter(&RouterDeps{
		SessionResolver: routerResolver{},
		RateLimiter:     limiter,
		MetricsGatherer: reg,
		AuthService:     &mockAuthService{},
		ProfileService: &mockProfileService{getProfileFn: func(_ context.Context, userID string) (*model.Profile, error) {
			return &model.Profile{UserID: userID, SubscriptionStatus: model.SubscriptionStatusFree}, nil
		}},
		RewardService: &mockRewardService{creditFn: func(context.Context, string, int) (int, error) {
			return 2, nil
		}},
		SubscriptionService: &mockSubscriptionService{},
		CRMService: &mockCRMService{listClientsFn: func(context.Context, string) ([]*model.Client, error) {
			return nil, nil
		}},
		UserService: &mockUserService{},
	})
}

func TestRouter_PublicRoutes(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health", "/metrics", "/auth/csrf-token"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
	}
}

func TestRouter_AuthenticatedRoutesRequireSession(t *testing.T) {
	router := newTestRouter(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/profile"},
		{http.MethodPost, "/rewards/add"},
		{http.MethodGet, "/rewards/history"},
		{http.MethodGet, "/subscriptions/I-1"},
		{http.MethodGet, "/api/clients"},
		{http.MethodGet, "/api/analytics/summary"},
		{http.MethodDelete, "/api/users/me"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			req.Header.Set("Authorization", "Bearer expired-token")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assertErrorResponse(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
		})
	}
}

func TestRouter_BearerFlow(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /profile status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"id":"user-1"`) {
		t.Errorf("body = %s", w.Body.String())
	}

	// Bearer認証の変更系リクエストはCSRF検証の対象外
	req = httptest.NewRequest(http.MethodPost, "/rewards/add", strings.NewReader(`{"amount":2}`))
	req.Header.Set("Authorization", "Bearer valid-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("POST /rewards/add status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("GET /api/clients status = %d, want 200", w.Code)
	}
}

func TestRouter_CookieMutationRequiresCSRF(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/rewards/add", strings.NewReader(`{"amount":2}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assertErrorResponse(t, w, http.StatusForbidden, model.ErrCodeCSRFRejected)
}

func TestRouter_ErrorBodyCarriesRequestID(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile", nil))

	if body := decodeError(t, w); body.RequestID == "" {
		t.Error("error body should carry the request id")
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeInvalidRequest, http.StatusBadRequest},
		{model.ErrCodeValidation, http.StatusBadRequest},
		{model.ErrCodeWeakPassword, http.StatusBadRequest},
		{model.ErrCodeInvalidRewardAmount, http.StatusBadRequest},
		{model.ErrCodeInvalidFeature, http.StatusBadRequest},
		{model.ErrCodeUnauthorized, http.StatusUnauthorized},
		{model.ErrCodeInvalidCredentials, http.StatusUnauthorized},
		{model.ErrCodeFeatureLocked, http.StatusForbidden},
		{model.ErrCodeCSRFRejected, http.StatusForbidden},
		{model.ErrCodeUserNotFound, http.StatusNotFound},
		{model.ErrCodeProfileNotFound, http.StatusNotFound},
		{model.ErrCodeSubscriptionNotFound, http.StatusNotFound},
		{model.ErrCodeNotFound, http.StatusNotFound},
		{model.ErrCodeEmailTaken, http.StatusConflict},
		{model.ErrCodeInsufficientBalance, http.StatusConflict},
		{model.ErrCodeNoActiveSubscription, http.StatusConflict},
		{model.ErrCodePropertyLimit, http.StatusConflict},
		{model.ErrCodeSubscriptionNotActive, http.StatusUnprocessableEntity},
		{model.ErrCodeRateLimited, http.StatusTooManyRequests},
		{model.ErrCodeBillingUnavailable, http.StatusBadGateway},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code}); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}
