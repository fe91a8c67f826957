package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/ads"
	"github.com/mashtheking/PropertyPro-sub001/internal/api"
)

// Ledger は報酬ユニットの獲得と消費を仲介する。
// 残高は常にサーバーが確定したプロフィールの値で、ローカルで増減させない。
type Ledger struct {
	gateway  Gateway
	identity *IdentityStore
	profiles *ProfileCache
	ads      ads.Provider
	logger   *slog.Logger

	watching atomic.Bool
	// adReadyはwatchingを獲得した呼び出しだけが読み書きする
	adReady bool

	mu      sync.Mutex
	unlocks map[string]time.Time
}

// NewLedger はLedgerを生成する。
func NewLedger(gateway Gateway, identity *IdentityStore, profiles *ProfileCache, provider ads.Provider, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		gateway:  gateway,
		identity: identity,
		profiles: profiles,
		ads:      provider,
		logger:   logger,
		unlocks:  make(map[string]time.Time),
	}
}

// Balance はキャッシュ済みプロフィールの報酬ユニット残高を返す。
func (l *Ledger) Balance() int {
	p := l.profiles.Profile()
	if p == nil {
		return 0
	}
	return p.RewardUnits
}

// WatchAd は報酬広告を1回再生し、獲得した報酬をサーバーに付与させる。
// 同時に実行できるのは1回だけで、進行中の呼び出しがあればOPERATION_IN_PROGRESSを返す。
func (l *Ledger) WatchAd(ctx context.Context) (bool, error) {
	token, _, ok := l.identity.credentials()
	if !ok {
		return false, errNotAuthenticated()
	}
	if !l.watching.CompareAndSwap(false, true) {
		return false, errInProgress()
	}
	defer l.watching.Store(false)

	if !l.adReady {
		if err := l.ads.Load(ctx); err != nil {
			return false, newError(CodeAdLoadFailed, "広告を読み込めませんでした。時間をおいて再度お試しください", err)
		}
		l.adReady = true
	}

	outcome, err := l.ads.Show(ctx)
	l.adReady = false
	if err != nil {
		return false, newError(CodeAdFailed, err.Error(), err)
	}

	switch outcome.Kind {
	case ads.OutcomeEarned:
		if outcome.Amount <= 0 {
			return false, newError(CodeAdFailed, "広告から不正な報酬量が返されました", nil)
		}
		if _, err := l.gateway.AddReward(ctx, token, outcome.Amount); err != nil {
			if !confirmed(err) {
				return false, l.identity.check(ctx, err, token)
			}
			l.logger.Warn("reward credit accepted but response unreadable", "error", err)
		}
		l.logger.Info("reward credited", "amount", outcome.Amount)
		l.refresh(ctx)
		return true, nil
	case ads.OutcomeCanceled:
		return false, newError(CodeUserCanceled, "広告の視聴がキャンセルされました", nil)
	default:
		reason := outcome.Reason
		if reason == "" {
			reason = "広告を再生できませんでした"
		}
		return false, newError(CodeAdFailed, reason, nil)
	}
}

// Spend は報酬ユニットを消費して機能を一時的に解放する。
// キャッシュ済み残高が不足している場合はサーバーを呼ばずにINSUFFICIENT_BALANCEを返す。
func (l *Ledger) Spend(ctx context.Context, amount int, featureName string) (bool, error) {
	token, _, ok := l.identity.credentials()
	if !ok {
		return false, errNotAuthenticated()
	}
	if amount <= 0 {
		return false, newError(CodeInvalidAmount, "消費するユニット数は1以上を指定してください", nil)
	}
	if balance := l.Balance(); balance < amount {
		return false, errInsufficientBalance(balance, amount)
	}

	resp, err := l.gateway.UseReward(ctx, token, api.UseRewardRequest{
		Amount:      amount,
		FeatureName: featureName,
	})
	switch {
	case err == nil:
		l.mu.Lock()
		l.unlocks[featureName] = resp.UnlockedUntil
		l.mu.Unlock()
	case confirmed(err):
		// 解放期限は不明だが消費自体はサーバーで確定している
		l.logger.Warn("reward spend accepted but response unreadable", "feature", featureName, "error", err)
	default:
		return false, l.identity.check(ctx, err, token)
	}

	l.logger.Info("reward spent", "amount", amount, "feature", featureName)
	l.refresh(ctx)
	return true, nil
}

// UnlockedUntil はこのセッションで解放した機能の有効期限を返す。
func (l *Ledger) UnlockedUntil(featureName string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.unlocks[featureName]
	return until, ok
}

func (l *Ledger) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.unlocks)
}

// refresh は変更の確定後にプロフィールを取り直す。
// 失敗してもstaleのまま残るだけなので、操作自体は成功として扱う。
func (l *Ledger) refresh(ctx context.Context) {
	if err := l.profiles.Invalidate(ctx); err != nil {
		l.logger.Warn("profile refresh after reward mutation failed", "error", err)
	}
}
