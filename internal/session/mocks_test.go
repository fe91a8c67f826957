package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/ads"
	"github.com/mashtheking/PropertyPro-sub001/internal/api"
)

// --- モック ---

// remoteErr はゲートウェイのエラー応答を模したもの。
type remoteErr struct {
	status  int
	code    string
	message string
}

func (e *remoteErr) Error() string        { return fmt.Sprintf("%d %s: %s", e.status, e.code, e.message) }
func (e *remoteErr) StatusCode() int      { return e.status }
func (e *remoteErr) ErrorCode() string    { return e.code }
func (e *remoteErr) ErrorMessage() string { return e.message }

var errTransport = errors.New("dial tcp: connection refused")

// garbledBody は2xxで受理されたが本文が壊れていた応答を模したもの。
type garbledBody struct{}

func (garbledBody) Error() string   { return "decode 200 response: unexpected end of JSON input" }
func (garbledBody) Confirmed() bool { return true }

func unauthorized() error {
	return &remoteErr{status: http.StatusUnauthorized, code: "UNAUTHORIZED", message: "認証が必要です"}
}

// fakeGateway はサーバー状態をメモリ上で再現するGateway。
// 各Fnフィールドを設定するとその呼び出しだけ差し替えられる。
type fakeGateway struct {
	mu             sync.Mutex
	password       string
	token          string
	balance        int
	premium        bool
	status         string
	subscriptionID string

	loginFn   func(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error)
	logoutFn  func(ctx context.Context, token string) error
	sessionFn func(ctx context.Context, token string) (*api.SessionResponse, error)
	profileFn func(ctx context.Context, token string) (*api.Profile, error)
	addFn     func(ctx context.Context, token string, amount int) (*api.BalanceResponse, error)
	useFn     func(ctx context.Context, token string, req api.UseRewardRequest) (*api.UseRewardResponse, error)
	verifyFn  func(ctx context.Context, token, id string) (*api.Subscription, error)
	cancelFn  func(ctx context.Context, token, id string) error
	detailsFn func(ctx context.Context, token, id string) (*api.Subscription, error)

	profileCalls atomic.Int32
	addCalls     atomic.Int32
	useCalls     atomic.Int32
	verifyCalls  atomic.Int32
	cancelCalls  atomic.Int32
	detailsCalls atomic.Int32
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		password: "correct-horse",
		token:    "tok-1",
		status:   "free",
	}
}

var _ Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) authResponse() *api.AuthResponse {
	return &api.AuthResponse{
		Session: api.Session{Token: g.token, ExpiresAt: time.Now().Add(time.Hour)},
		User:    api.User{ID: "user-1", Email: "agent@example.com"},
	}
}

func (g *fakeGateway) authorize(token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if token != g.token {
		return unauthorized()
	}
	return nil
}

func (g *fakeGateway) Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error) {
	if g.loginFn != nil {
		return g.loginFn(ctx, req)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if req.Password != g.password {
		return nil, &remoteErr{status: http.StatusUnauthorized, code: "INVALID_CREDENTIALS", message: "メールアドレスまたはパスワードが正しくありません"}
	}
	return g.authResponse(), nil
}

func (g *fakeGateway) Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(req.Password) < 8 {
		return nil, &remoteErr{status: http.StatusBadRequest, code: "WEAK_PASSWORD", message: "パスワードは8文字以上で入力してください"}
	}
	g.password = req.Password
	return g.authResponse(), nil
}

func (g *fakeGateway) Logout(ctx context.Context, token string) error {
	if g.logoutFn != nil {
		return g.logoutFn(ctx, token)
	}
	return nil
}

func (g *fakeGateway) CurrentSession(ctx context.Context, token string) (*api.SessionResponse, error) {
	if g.sessionFn != nil {
		return g.sessionFn(ctx, token)
	}
	if err := g.authorize(token); err != nil {
		return nil, err
	}
	return &api.SessionResponse{User: api.User{ID: "user-1", Email: "agent@example.com"}}, nil
}

func (g *fakeGateway) Profile(ctx context.Context, token string) (*api.Profile, error) {
	g.profileCalls.Add(1)
	if g.profileFn != nil {
		return g.profileFn(ctx, token)
	}
	if err := g.authorize(token); err != nil {
		return nil, err
	}
	return g.currentProfile(), nil
}

func (g *fakeGateway) currentProfile() *api.Profile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &api.Profile{
		ID:                 "user-1",
		Email:              "agent@example.com",
		Username:           "agent",
		IsPremium:          g.premium,
		RewardUnits:        g.balance,
		SubscriptionStatus: g.status,
		SubscriptionID:     g.subscriptionID,
	}
}

func (g *fakeGateway) AddReward(ctx context.Context, token string, amount int) (*api.BalanceResponse, error) {
	g.addCalls.Add(1)
	if g.addFn != nil {
		return g.addFn(ctx, token, amount)
	}
	if err := g.authorize(token); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balance += amount
	return &api.BalanceResponse{Balance: g.balance}, nil
}

func (g *fakeGateway) UseReward(ctx context.Context, token string, req api.UseRewardRequest) (*api.UseRewardResponse, error) {
	g.useCalls.Add(1)
	if g.useFn != nil {
		return g.useFn(ctx, token, req)
	}
	if err := g.authorize(token); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balance < req.Amount {
		return nil, &remoteErr{status: http.StatusConflict, code: "INSUFFICIENT_BALANCE", message: "報酬ユニットが不足しています"}
	}
	g.balance -= req.Amount
	return &api.UseRewardResponse{Balance: g.balance, UnlockedUntil: time.Now().Add(24 * time.Hour)}, nil
}

func (g *fakeGateway) VerifySubscription(ctx context.Context, token, id string) (*api.Subscription, error) {
	g.verifyCalls.Add(1)
	if g.verifyFn != nil {
		return g.verifyFn(ctx, token, id)
	}
	if err := g.authorize(token); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.premium = true
	g.status = "active"
	g.subscriptionID = id
	return &api.Subscription{SubscriptionID: id, Status: "active", PlanID: "P-PREMIUM"}, nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, token, id string) error {
	g.cancelCalls.Add(1)
	if g.cancelFn != nil {
		return g.cancelFn(ctx, token, id)
	}
	if err := g.authorize(token); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.premium = false
	g.status = "cancelled"
	return nil
}

func (g *fakeGateway) SubscriptionDetails(ctx context.Context, token, id string) (*api.Subscription, error) {
	g.detailsCalls.Add(1)
	if g.detailsFn != nil {
		return g.detailsFn(ctx, token, id)
	}
	if err := g.authorize(token); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	next := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	return &api.Subscription{SubscriptionID: id, Status: g.status, PlanID: "P-PREMIUM", NextBillingTime: &next}, nil
}

// fakeAds は結果を固定できる広告プロバイダ。
type fakeAds struct {
	loadErr   error
	outcome   ads.Outcome
	showErr   error
	showFn    func(ctx context.Context) (ads.Outcome, error)
	loadCalls atomic.Int32
	showCalls atomic.Int32
}

var _ ads.Provider = (*fakeAds)(nil)

func (f *fakeAds) Load(ctx context.Context) error {
	f.loadCalls.Add(1)
	return f.loadErr
}

func (f *fakeAds) Show(ctx context.Context) (ads.Outcome, error) {
	f.showCalls.Add(1)
	if f.showFn != nil {
		return f.showFn(ctx)
	}
	return f.outcome, f.showErr
}

// memTokens は呼び出しを記録するTokenStore。
type memTokens struct {
	mu      sync.Mutex
	stored  *StoredToken
	loadErr error
	cleared int
}

func (m *memTokens) Load() (*StoredToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.stored == nil {
		return nil, nil
	}
	t := *m.stored
	return &t, nil
}

func (m *memTokens) Save(token StoredToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = &token
	return nil
}

func (m *memTokens) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = nil
	m.cleared++
	return nil
}

func (m *memTokens) current() *StoredToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(gw *fakeGateway, provider ads.Provider, tokens TokenStore) *Session {
	return New(Options{Gateway: gw, Ads: provider, Tokens: tokens, Logger: discardLogger()})
}

// loggedIn はログイン済みでプロフィール取得済みのセッションを返す。
func loggedIn(t *testing.T, gw *fakeGateway, provider ads.Provider) *Session {
	t.Helper()
	s := newTestSession(gw, provider, &memTokens{})
	if err := s.Identity.Login(context.Background(), "agent@example.com", gw.password, false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return s
}
