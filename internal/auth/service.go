// Package auth はメールアドレスとパスワードによる認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mashtheking/PropertyPro-sub001/internal/metrics"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"github.com/mashtheking/PropertyPro-sub001/internal/repository"
	"github.com/mashtheking/PropertyPro-sub001/internal/security"
	"golang.org/x/crypto/bcrypt"
)

// bcryptはこの長さを超える入力を扱えない
const maxPasswordBytes = 72

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionSecret         string // セッショントークンのダイジェスト計算に使うHMAC鍵
	SessionMaxAge         int    // セッション有効期間（秒）
	SessionRememberMaxAge int    // 「ログイン状態を保持」指定時の有効期間（秒）
	PasswordMinLength     int
	BcryptCost            int // 0の場合はbcrypt.DefaultCost
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Email    string
	Password string
	Username string
	FullName string
}

// IssuedSession はクライアントに発行したセッションを表す。
// Tokenはこの値でのみ返却し、サーバーにはダイジェストのみ保存する。
type IssuedSession struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	MaxAge    int
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   security.ContentSanitizerService
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	dummyHash   []byte
	now         func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	// 未登録メールアドレスでも照合コストを揃えるためのハッシュ
	dummy, _ := bcrypt.GenerateFromPassword([]byte("propertypro-dummy-password"), config.BcryptCost)
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		metrics:     collector,
		config:      config,
		dummyHash:   dummy,
		now:         time.Now,
	}
}

// Register はユーザーとプロフィールを作成し、セッションを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*IssuedSession, *model.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		s.recordRegistration(metrics.OutcomeRejected)
		return nil, nil, err
	}
	if err := s.validatePassword(in.Password); err != nil {
		s.recordRegistration(metrics.OutcomeRejected)
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		s.recordRegistration(metrics.OutcomeError)
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := &model.Profile{
		UserID:    user.ID,
		Email:     email,
		Username:  s.sanitizer.PlainText(in.Username),
		FullName:  s.sanitizer.PlainText(in.FullName),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.userRepo.CreateWithProfile(ctx, user, profile); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			s.recordRegistration(metrics.OutcomeRejected)
			return nil, nil, model.NewEmailTakenError()
		}
		s.recordRegistration(metrics.OutcomeError)
		return nil, nil, fmt.Errorf("failed to create user and profile: %w", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
	)
	s.recordRegistration(metrics.OutcomeSuccess)

	session, err := s.createSession(ctx, user.ID, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, user, nil
}

// Login はメールアドレスとパスワードを照合し、セッションを発行する。
// ユーザーの存在有無にかかわらず同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (*IssuedSession, *model.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || password == "" {
		s.recordLogin(metrics.OutcomeRejected)
		return nil, nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		s.recordLogin(metrics.OutcomeError)
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}

	hash := s.dummyHash
	if user != nil {
		hash = []byte(user.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || user == nil {
		s.recordLogin(metrics.OutcomeRejected)
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID, rememberMe)
	if err != nil {
		s.recordLogin(metrics.OutcomeError)
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("remember_me", rememberMe),
	)
	s.recordLogin(metrics.OutcomeSuccess)
	return session, user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session token is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, s.digest(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// ResolveSession はトークンに対応する有効なセッションのユーザーIDを返す。
// 無効または期限切れの場合は空文字を返す。
func (s *Service) ResolveSession(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	session, err := s.sessionRepo.FindByID(ctx, s.digest(token))
	if err != nil {
		return "", fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return "", nil
	}
	return session.UserID, nil
}

// GetCurrentUser はセッショントークンから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.ResolveSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}

	return user, nil
}

// SessionMaxAge はセッション有効期間（秒）を返す。
func (s *Service) SessionMaxAge(rememberMe bool) int {
	if rememberMe && s.config.SessionRememberMaxAge > 0 {
		return s.config.SessionRememberMaxAge
	}
	return s.config.SessionMaxAge
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string, rememberMe bool) (*IssuedSession, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	maxAge := s.SessionMaxAge(rememberMe)
	session := &model.Session{
		ID:        s.digest(token),
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(maxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return &IssuedSession{
		Token:     token,
		UserID:    userID,
		ExpiresAt: session.ExpiresAt,
		MaxAge:    maxAge,
	}, nil
}

// digest はトークンのHMAC-SHA256ダイジェストを返す。
func (s *Service) digest(token string) string {
	mac := hmac.New(sha256.New, []byte(s.config.SessionSecret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) validatePassword(password string) error {
	if len([]rune(password)) < s.config.PasswordMinLength {
		return model.NewWeakPasswordError(s.config.PasswordMinLength)
	}
	if len(password) > maxPasswordBytes {
		return model.NewValidationError(fmt.Sprintf("パスワードは%dバイト以内で入力してください", maxPasswordBytes))
	}
	return nil
}

func (s *Service) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(outcome)
	}
}

func (s *Service) recordRegistration(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRegistration(outcome)
	}
}

// normalizeEmail はメールアドレスを検証し、小文字に正規化する。
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	return email, nil
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
