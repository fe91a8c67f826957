package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/api"
)

// RegisterInput は新規登録の入力。
type RegisterInput struct {
	Email    string
	Password string
	Username string
	FullName string
}

// IdentityListener は認証状態が変化したときに呼ばれる。
// ログアウトや失効ではidentityがnilになる。
type IdentityListener func(ctx context.Context, identity *Identity)

// IdentityStore はログイン中のユーザーとセッショントークンを保持する。
type IdentityStore struct {
	gateway Gateway
	tokens  TokenStore
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	identity *Identity
	token    string
	// epochは認証状態が変わるたびに増える。古い応答の破棄に使う。
	epoch   uint64
	opSeq   uint64
	loading atomic.Int32

	listenersMu sync.Mutex
	listeners   []IdentityListener
}

// NewIdentityStore はIdentityStoreを生成する。
func NewIdentityStore(gateway Gateway, tokens TokenStore, logger *slog.Logger) *IdentityStore {
	if tokens == nil {
		tokens = &memoryTokenStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityStore{
		gateway: gateway,
		tokens:  tokens,
		logger:  logger,
		now:     time.Now,
	}
}

// OnChange は認証状態の変化を購読する。
func (s *IdentityStore) OnChange(fn IdentityListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// IsAuthenticated はログイン中かどうかを返す。
func (s *IdentityStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil
}

// IsLoading は認証操作またはセッション復元が進行中かどうかを返す。
func (s *IdentityStore) IsLoading() bool {
	return s.loading.Load() > 0
}

// Identity はログイン中のユーザーのコピーを返す。未ログインならnil。
func (s *IdentityStore) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Token は現在のセッショントークンを返す。未ログインなら空文字。
// セッションコアが扱わないエンドポイントを呼ぶために使う。
func (s *IdentityStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Login はメールアドレスとパスワードでログインする。
// 失敗した場合はそれまでのログイン状態も破棄する。
func (s *IdentityStore) Login(ctx context.Context, email, password string, rememberMe bool) error {
	s.loading.Add(1)
	defer s.loading.Add(-1)
	s.beginOp()

	resp, err := s.gateway.Login(ctx, api.LoginRequest{
		Email:      strings.TrimSpace(email),
		Password:   password,
		RememberMe: rememberMe,
	})
	if err != nil {
		s.discard(ctx)
		return fromGateway(err)
	}

	s.establish(ctx, resp)
	return nil
}

// Register はアカウントを作成し、そのままログイン状態にする。
func (s *IdentityStore) Register(ctx context.Context, in RegisterInput) error {
	s.loading.Add(1)
	defer s.loading.Add(-1)
	s.beginOp()

	resp, err := s.gateway.Register(ctx, api.RegisterRequest{
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
		Username: strings.TrimSpace(in.Username),
		FullName: strings.TrimSpace(in.FullName),
	})
	if err != nil {
		s.discard(ctx)
		return fromGateway(err)
	}

	s.establish(ctx, resp)
	return nil
}

// Logout はリモートセッションを無効化する。
// リモート呼び出しが失敗してもローカルの状態は破棄し、エラーは返す。
func (s *IdentityStore) Logout(ctx context.Context) error {
	s.loading.Add(1)
	defer s.loading.Add(-1)
	s.beginOp()

	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	var remoteErr error
	if token != "" {
		remoteErr = s.gateway.Logout(ctx, token)
	}
	s.unset(ctx, true)

	if remoteErr != nil {
		se := fromGateway(remoteErr)
		if se.Code == CodeNotAuthenticated {
			return nil
		}
		return se
	}
	return nil
}

// Restore は保存済みトークンでセッションを復元する。
// 無効なトークンは破棄してnilを返す。通信エラーの場合はトークンを残す。
func (s *IdentityStore) Restore(ctx context.Context) error {
	s.loading.Add(1)
	defer s.loading.Add(-1)
	seq := s.beginOp()

	stored, err := s.tokens.Load()
	if err != nil {
		return fmt.Errorf("load session token: %w", err)
	}
	if stored == nil || stored.Token == "" {
		return nil
	}
	if stored.Expired(s.now()) {
		s.logger.Debug("stored session token expired", "expires_at", stored.ExpiresAt)
		return s.tokens.Clear()
	}

	resp, err := s.gateway.CurrentSession(ctx, stored.Token)
	if err != nil {
		se := fromGateway(err)
		if se.Code == CodeNotAuthenticated {
			s.logger.Debug("stored session token rejected")
			return s.tokens.Clear()
		}
		return se
	}

	s.mu.Lock()
	if s.opSeq != seq || s.identity != nil {
		// 復元中に別の認証操作が行われた
		s.mu.Unlock()
		return nil
	}
	s.identity = &Identity{UserID: resp.User.ID, Email: resp.User.Email}
	s.token = stored.Token
	s.epoch++
	identity := *s.identity
	s.mu.Unlock()

	s.notify(ctx, &identity)
	return nil
}

func (s *IdentityStore) beginOp() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opSeq++
	return s.opSeq
}

func (s *IdentityStore) establish(ctx context.Context, resp *api.AuthResponse) {
	s.mu.Lock()
	s.identity = &Identity{UserID: resp.User.ID, Email: resp.User.Email}
	s.token = resp.Session.Token
	s.epoch++
	identity := *s.identity
	s.mu.Unlock()

	if err := s.tokens.Save(StoredToken{Token: resp.Session.Token, ExpiresAt: resp.Session.ExpiresAt}); err != nil {
		s.logger.Warn("failed to persist session token", "error", err)
	}
	s.notify(ctx, &identity)
}

// discard はログイン失敗時に既存の状態を破棄する。
func (s *IdentityStore) discard(ctx context.Context) {
	s.mu.RLock()
	had := s.identity != nil
	s.mu.RUnlock()
	if had {
		s.unset(ctx, true)
	}
}

func (s *IdentityStore) unset(ctx context.Context, clearToken bool) {
	s.mu.Lock()
	had := s.identity != nil
	s.identity = nil
	s.token = ""
	s.epoch++
	s.mu.Unlock()

	if clearToken {
		if err := s.tokens.Clear(); err != nil {
			s.logger.Warn("failed to clear session token", "error", err)
		}
	}
	if had {
		s.notify(ctx, nil)
	}
}

// expire はtokenが現在のトークンであればサーバー側で失効したものとして破棄する。
func (s *IdentityStore) expire(ctx context.Context, token string) {
	s.mu.RLock()
	current := s.token
	s.mu.RUnlock()
	if current == "" || current != token {
		return
	}
	s.logger.Info("session expired on server")
	s.unset(ctx, true)
}

func (s *IdentityStore) notify(ctx context.Context, identity *Identity) {
	s.listenersMu.Lock()
	listeners := append([]IdentityListener(nil), s.listeners...)
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(ctx, identity)
	}
}

// credentials は現在のトークンと認証世代を返す。
func (s *IdentityStore) credentials() (token string, epoch uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.epoch, s.identity != nil
}

func (s *IdentityStore) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// check はゲートウェイのエラーを変換し、セッション失効であれば認証状態を破棄する。
func (s *IdentityStore) check(ctx context.Context, err error, token string) *Error {
	se := fromGateway(err)
	if se != nil && se.Code == CodeNotAuthenticated {
		s.expire(ctx, token)
	}
	return se
}
