package session

import (
	"context"
	"log/slog"

	"github.com/mashtheking/PropertyPro-sub001/internal/ads"
)

// Options はNewに渡す依存関係。
type Options struct {
	Gateway Gateway
	// Adsが未指定の場合はads.MockProviderを使う
	Ads ads.Provider
	// Tokensが未指定の場合はプロセス内にのみ保持する
	Tokens TokenStore
	Logger *slog.Logger
}

// Session は1ユーザーセッション分のサービス群。
type Session struct {
	Identity     *IdentityStore
	Profiles     *ProfileCache
	Ledger       *Ledger
	Subscription *SubscriptionMachine
}

// New はセッションコアを組み立てる。
// ログインするとプロフィールを取得し、ログアウトするとプロフィールと派生状態を破棄する。
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	provider := opts.Ads
	if provider == nil {
		provider = ads.NewMockProvider()
	}

	identity := NewIdentityStore(opts.Gateway, opts.Tokens, logger)
	profiles := NewProfileCache(opts.Gateway, identity, logger)
	ledger := NewLedger(opts.Gateway, identity, profiles, provider, logger)
	sub := NewSubscriptionMachine(opts.Gateway, identity, profiles, logger)

	profiles.OnChange(sub.syncFromProfile)
	identity.OnChange(func(ctx context.Context, id *Identity) {
		profiles.Clear()
		ledger.reset()
		if id == nil {
			return
		}
		if err := profiles.Refresh(ctx); err != nil {
			logger.Warn("initial profile fetch failed", "user_id", id.UserID, "error", err)
		}
	})

	return &Session{
		Identity:     identity,
		Profiles:     profiles,
		Ledger:       ledger,
		Subscription: sub,
	}
}
