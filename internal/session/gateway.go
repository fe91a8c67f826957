// Package session はクライアント側のセッションコアを提供する。
// 認証状態、プロフィールキャッシュ、報酬ユニット台帳、購読状態をゲートウェイのサーバー状態に追従させる。
package session

import (
	"context"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/api"
)

// Gateway はリモートセッションゲートウェイ。
// 認証が必要な呼び出しはトークンを明示的に受け取る。
type Gateway interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error)
	Logout(ctx context.Context, token string) error
	CurrentSession(ctx context.Context, token string) (*api.SessionResponse, error)
	Profile(ctx context.Context, token string) (*api.Profile, error)
	AddReward(ctx context.Context, token string, amount int) (*api.BalanceResponse, error)
	UseReward(ctx context.Context, token string, req api.UseRewardRequest) (*api.UseRewardResponse, error)
	VerifySubscription(ctx context.Context, token, externalSubscriptionID string) (*api.Subscription, error)
	CancelSubscription(ctx context.Context, token, subscriptionID string) error
	SubscriptionDetails(ctx context.Context, token, subscriptionID string) (*api.Subscription, error)
}

// TokenStore はセッショントークンの永続化先。
// 保存済みトークンがない場合、LoadはnilとnilErrorを返す。
type TokenStore interface {
	Load() (*StoredToken, error)
	Save(token StoredToken) error
	Clear() error
}

// StoredToken は永続化されたセッショントークン。
type StoredToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired はnowの時点でトークンが失効しているかを返す。
// ExpiresAtが未設定の場合はサーバー側の判定に任せる。
func (t StoredToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Identity は認証済みユーザー。
type Identity struct {
	UserID string
	Email  string
}

// Profile はサーバーが保持するプロフィールのスナップショット。
type Profile struct {
	ID                 string
	Email              string
	Username           string
	FullName           string
	IsPremium          bool
	RewardUnits        int
	SubscriptionStatus string
	SubscriptionID     string
	EmailVerified      bool
}

func profileFromAPI(p *api.Profile) *Profile {
	return &Profile{
		ID:                 p.ID,
		Email:              p.Email,
		Username:           p.Username,
		FullName:           p.FullName,
		IsPremium:          p.IsPremium,
		RewardUnits:        p.RewardUnits,
		SubscriptionStatus: p.SubscriptionStatus,
		SubscriptionID:     p.SubscriptionID,
		EmailVerified:      p.EmailVerified,
	}
}

// memoryTokenStore はTokenStore未指定時に使うプロセス内の保存先。
type memoryTokenStore struct {
	token *StoredToken
}

func (m *memoryTokenStore) Load() (*StoredToken, error) {
	if m.token == nil {
		return nil, nil
	}
	t := *m.token
	return &t, nil
}

func (m *memoryTokenStore) Save(token StoredToken) error {
	m.token = &token
	return nil
}

func (m *memoryTokenStore) Clear() error {
	m.token = nil
	return nil
}
