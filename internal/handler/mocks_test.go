package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/api"
	"github.com/mashtheking/PropertyPro-sub001/internal/auth"
	"github.com/mashtheking/PropertyPro-sub001/internal/crm"
	"github.com/mashtheking/PropertyPro-sub001/internal/middleware"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"github.com/mashtheking/PropertyPro-sub001/internal/reward"
)

// --- モック ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*auth.IssuedSession, *model.User, error)
	loginFn          func(ctx context.Context, email, password string, rememberMe bool) (*auth.IssuedSession, *model.User, error)
	logoutFn         func(ctx context.Context, token string) error
	getCurrentUserFn func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.IssuedSession, *model.User, error) {
	return m.registerFn(ctx, in)
}
func (m *mockAuthService) Login(ctx context.Context, email, password string, rememberMe bool) (*auth.IssuedSession, *model.User, error) {
	return m.loginFn(ctx, email, password, rememberMe)
}
func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn == nil {
		return nil
	}
	return m.logoutFn(ctx, token)
}
func (m *mockAuthService) GetCurrentUser(ctx context.Context, token string) (*model.User, error) {
	return m.getCurrentUserFn(ctx, token)
}

type mockProfileService struct {
	getProfileFn func(ctx context.Context, userID string) (*model.Profile, error)
}

func (m *mockProfileService) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	return m.getProfileFn(ctx, userID)
}

type mockRewardService struct {
	creditFn  func(ctx context.Context, userID string, amount int) (int, error)
	spendFn   func(ctx context.Context, userID string, amount int, feature string) (*reward.SpendResult, error)
	historyFn func(ctx context.Context, userID string, limit int) ([]*model.RewardTransaction, error)
}

func (m *mockRewardService) Credit(ctx context.Context, userID string, amount int) (int, error) {
	return m.creditFn(ctx, userID, amount)
}
func (m *mockRewardService) Spend(ctx context.Context, userID string, amount int, feature string) (*reward.SpendResult, error) {
	return m.spendFn(ctx, userID, amount, feature)
}
func (m *mockRewardService) History(ctx context.Context, userID string, limit int) ([]*model.RewardTransaction, error) {
	return m.historyFn(ctx, userID, limit)
}

type mockSubscriptionService struct {
	verifyFn  func(ctx context.Context, userID, externalID string) (*model.Subscription, error)
	cancelFn  func(ctx context.Context, userID, externalID string) error
	detailsFn func(ctx context.Context, userID, externalID string) (*model.Subscription, error)
}

func (m *mockSubscriptionService) Verify(ctx context.Context, userID, externalID string) (*model.Subscription, error) {
	return m.verifyFn(ctx, userID, externalID)
}
func (m *mockSubscriptionService) Cancel(ctx context.Context, userID, externalID string) error {
	return m.cancelFn(ctx, userID, externalID)
}
func (m *mockSubscriptionService) Details(ctx context.Context, userID, externalID string) (*model.Subscription, error) {
	return m.detailsFn(ctx, userID, externalID)
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	return m.withdrawFn(ctx, userID)
}

// mockCRMService は必要なメソッドだけを関数フィールドで差し替える。
// 未設定のメソッドはNOT_FOUNDを返す。
type mockCRMService struct {
	listClientsFn    func(ctx context.Context, userID string) ([]*model.Client, error)
	createClientFn   func(ctx context.Context, userID string, in crm.ClientInput) (*model.Client, error)
	deleteClientFn   func(ctx context.Context, userID, id string) error
	createPropertyFn func(ctx context.Context, userID string, in crm.PropertyInput) (*model.Property, error)
	listApptsFn      func(ctx context.Context, userID string, upcomingOnly bool) ([]*model.Appointment, error)
	createApptFn     func(ctx context.Context, userID string, in crm.AppointmentInput) (*model.Appointment, error)
	analyticsFn      func(ctx context.Context, userID string) (*model.AnalyticsSummary, error)
}

func notFound(resource string) error { return model.NewNotFoundError(resource, "x") }

func (m *mockCRMService) ListClients(ctx context.Context, userID string) ([]*model.Client, error) {
	return m.listClientsFn(ctx, userID)
}
func (m *mockCRMService) GetClient(context.Context, string, string) (*model.Client, error) {
	return nil, notFound("client")
}
func (m *mockCRMService) CreateClient(ctx context.Context, userID string, in crm.ClientInput) (*model.Client, error) {
	return m.createClientFn(ctx, userID, in)
}
func (m *mockCRMService) UpdateClient(context.Context, string, string, crm.ClientInput) (*model.Client, error) {
	return nil, notFound("client")
}
func (m *mockCRMService) DeleteClient(ctx context.Context, userID, id string) error {
	return m.deleteClientFn(ctx, userID, id)
}
func (m *mockCRMService) ListProperties(context.Context, string) ([]*model.Property, error) {
	return nil, nil
}
func (m *mockCRMService) GetProperty(context.Context, string, string) (*model.Property, error) {
	return nil, notFound("property")
}
func (m *mockCRMService) CreateProperty(ctx context.Context, userID string, in crm.PropertyInput) (*model.Property, error) {
	return m.createPropertyFn(ctx, userID, in)
}
func (m *mockCRMService) UpdateProperty(context.Context, string, string, crm.PropertyInput) (*model.Property, error) {
	return nil, notFound("property")
}
func (m *mockCRMService) DeleteProperty(context.Context, string, string) error {
	return notFound("property")
}
func (m *mockCRMService) ListAppointments(ctx context.Context, userID string, upcomingOnly bool) ([]*model.Appointment, error) {
	return m.listApptsFn(ctx, userID, upcomingOnly)
}
func (m *mockCRMService) GetAppointment(context.Context, string, string) (*model.Appointment, error) {
	return nil, notFound("appointment")
}
func (m *mockCRMService) CreateAppointment(ctx context.Context, userID string, in crm.AppointmentInput) (*model.Appointment, error) {
	return m.createApptFn(ctx, userID, in)
}
func (m *mockCRMService) UpdateAppointment(context.Context, string, string, crm.AppointmentInput) (*model.Appointment, error) {
	return nil, notFound("appointment")
}
func (m *mockCRMService) DeleteAppointment(context.Context, string, string) error {
	return notFound("appointment")
}
func (m *mockCRMService) Analytics(ctx context.Context, userID string) (*model.AnalyticsSummary, error) {
	return m.analyticsFn(ctx, userID)
}

// --- compile-time interface checks ---

var (
	_ AuthServiceInterface         = (*mockAuthService)(nil)
	_ ProfileServiceInterface      = (*mockProfileService)(nil)
	_ RewardServiceInterface       = (*mockRewardService)(nil)
	_ SubscriptionServiceInterface = (*mockSubscriptionService)(nil)
	_ UserServiceInterface         = (*mockUserService)(nil)
	_ CRMServiceInterface          = (*mockCRMService)(nil)
	_ CRMServiceInterface          = (*crm.Service)(nil)
	_ RewardServiceInterface       = (*reward.Service)(nil)
	_ AuthServiceInterface         = (*auth.Service)(nil)
)

// --- ヘルパー ---

var fixedTime = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// authedRequest はセッションミドルウェア通過後相当のリクエストを生成する。
func authedRequest(method, target, body, userID string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorBody {
	t.Helper()
	var body api.ErrorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v (raw=%q)", err, w.Body.String())
	}
	return body
}

func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, status, w.Body.String())
	}
	if got := decodeError(t, w).Code; got != code {
		t.Errorf("code = %q, want %q", got, code)
	}
}
