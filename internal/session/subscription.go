package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/mashtheking/PropertyPro-sub001/internal/api"
)

// SubscriptionState はクライアントから見える購読状態。
type SubscriptionState string

const (
	StateFree           SubscriptionState = "free"
	StatePendingUpgrade SubscriptionState = "pending_upgrade"
	StateActive         SubscriptionState = "active"
	StatePendingCancel  SubscriptionState = "pending_cancel"
	StateCancelled      SubscriptionState = "cancelled"
	StateSuspended      SubscriptionState = "suspended"
	StateExpired        SubscriptionState = "expired"
)

// SubscriptionMachine はプレミアム購読の状態を管理する。
// 状態はプロフィールから導出し、ローカルの判断だけでプレミアムにはしない。
type SubscriptionMachine struct {
	gateway  Gateway
	identity *IdentityStore
	profiles *ProfileCache
	logger   *slog.Logger

	mu             sync.Mutex
	state          SubscriptionState
	pending        SubscriptionState
	premium        bool
	subscriptionID string
	details        *api.Subscription
}

// NewSubscriptionMachine はSubscriptionMachineを生成する。
func NewSubscriptionMachine(gateway Gateway, identity *IdentityStore, profiles *ProfileCache, logger *slog.Logger) *SubscriptionMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionMachine{
		gateway:  gateway,
		identity: identity,
		profiles: profiles,
		logger:   logger,
		state:    StateFree,
	}
}

// State は現在の購読状態を返す。サーバー確認待ちの間は保留状態を返す。
func (m *SubscriptionMachine) State() SubscriptionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != "" {
		return m.pending
	}
	return m.state
}

// IsPremium はサーバーが確定したプレミアム状態を返す。
func (m *SubscriptionMachine) IsPremium() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.premium
}

// SubscriptionID は現在の購読IDを返す。
func (m *SubscriptionMachine) SubscriptionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptionID
}

// Details は取得済みの購読詳細のコピーを返す。未取得ならnil。
func (m *SubscriptionMachine) Details() *api.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.details == nil {
		return nil
	}
	d := *m.details
	return &d
}

// Upgrade は決済ウィジェットから受け取った購読IDをサーバーに検証させる。
// 失敗した場合は元の状態のまま。
func (m *SubscriptionMachine) Upgrade(ctx context.Context, externalSubscriptionID string) error {
	externalSubscriptionID = strings.TrimSpace(externalSubscriptionID)
	if externalSubscriptionID == "" {
		return newError(CodeInvalidSubscriptionID, "購読IDが指定されていません", nil)
	}
	token, _, ok := m.identity.credentials()
	if !ok {
		return errNotAuthenticated()
	}
	if !m.begin(StatePendingUpgrade) {
		return errInProgress()
	}
	defer m.end()

	sub, err := m.gateway.VerifySubscription(ctx, token, externalSubscriptionID)
	switch {
	case err == nil:
		m.mu.Lock()
		m.details = sub
		m.mu.Unlock()
		m.logger.Info("subscription verified", "subscription_id", externalSubscriptionID, "status", sub.Status)
	case confirmed(err):
		// 状態はプロフィールの再取得で確定させる
		m.logger.Warn("subscription verification accepted but response unreadable", "subscription_id", externalSubscriptionID, "error", err)
	default:
		return m.identity.check(ctx, err, token)
	}

	m.refreshProfile(ctx)
	return nil
}

// Cancel は現在の購読を解約する。購読IDがなければNO_ACTIVE_SUBSCRIPTIONを返し、状態は変えない。
func (m *SubscriptionMachine) Cancel(ctx context.Context) error {
	token, _, ok := m.identity.credentials()
	if !ok {
		return errNotAuthenticated()
	}

	m.mu.Lock()
	id := m.subscriptionID
	switch {
	case id == "":
		m.mu.Unlock()
		return errNoActiveSubscription()
	case m.pending != "":
		m.mu.Unlock()
		return errInProgress()
	}
	m.pending = StatePendingCancel
	m.mu.Unlock()
	defer m.end()

	if err := m.gateway.CancelSubscription(ctx, token, id); err != nil {
		return m.identity.check(ctx, err, token)
	}

	m.logger.Info("subscription cancelled", "subscription_id", id)
	m.refreshProfile(ctx)
	return nil
}

// Refresh はプロフィールから状態を導出し直し、購読IDがあれば詳細を取得する。
func (m *SubscriptionMachine) Refresh(ctx context.Context) error {
	m.syncFromProfile(m.profiles.Profile())

	id := m.SubscriptionID()
	if id == "" {
		return nil
	}
	token, _, ok := m.identity.credentials()
	if !ok {
		return errNotAuthenticated()
	}

	sub, err := m.gateway.SubscriptionDetails(ctx, token, id)
	if err != nil {
		return m.identity.check(ctx, err, token)
	}

	m.mu.Lock()
	if m.subscriptionID == id {
		m.details = sub
	}
	m.mu.Unlock()
	return nil
}

// syncFromProfile はプロフィールの更新を購読状態に反映する。
func (m *SubscriptionMachine) syncFromProfile(p *Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = deriveState(p)
	if p == nil {
		m.premium = false
		m.subscriptionID = ""
		m.details = nil
		return
	}
	m.premium = p.IsPremium
	if p.SubscriptionID != m.subscriptionID {
		m.subscriptionID = p.SubscriptionID
		if m.details != nil && m.details.SubscriptionID != p.SubscriptionID {
			m.details = nil
		}
	}
}

func (m *SubscriptionMachine) begin(pending SubscriptionState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != "" {
		return false
	}
	m.pending = pending
	return true
}

func (m *SubscriptionMachine) end() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = ""
}

func (m *SubscriptionMachine) refreshProfile(ctx context.Context) {
	if err := m.profiles.Invalidate(ctx); err != nil {
		m.logger.Warn("profile refresh after subscription change failed", "error", err)
	}
}

func deriveState(p *Profile) SubscriptionState {
	if p == nil {
		return StateFree
	}
	switch s := SubscriptionState(p.SubscriptionStatus); s {
	case StateActive, StateCancelled, StateSuspended, StateExpired:
		return s
	}
	if p.IsPremium {
		return StateActive
	}
	return StateFree
}
