package model

import "time"

// SubscriptionStatus はプレミアム購読の状態を表す。
type SubscriptionStatus string

const (
	// SubscriptionStatusFree は購読なし（無料プラン）を示す。
	SubscriptionStatusFree SubscriptionStatus = "free"
	// SubscriptionStatusActive は有効な購読を示す。
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusCancelled は解約済みの購読を示す。
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	// SubscriptionStatusSuspended は支払い失敗等で一時停止中の購読を示す。
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	// SubscriptionStatusExpired は期限切れの購読を示す。
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

// Valid はステータスが定義済みの値かどうかを返す。
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusFree, SubscriptionStatusActive, SubscriptionStatusCancelled,
		SubscriptionStatusSuspended, SubscriptionStatusExpired:
		return true
	default:
		return false
	}
}

// GrantsPremium はこのステータスがプレミアム機能を付与するかどうかを返す。
// Profile.IsPremiumはこの値の射影として保存される。
func (s SubscriptionStatus) GrantsPremium() bool {
	return s == SubscriptionStatusActive
}

// Subscription は外部課金プロバイダー（PayPal）の購読と紐付いたレコードを表す。
type Subscription struct {
	ID                     string
	UserID                 string
	ExternalSubscriptionID string
	PlanID                 string
	Status                 SubscriptionStatus
	StartTime              *time.Time
	NextBillingTime        *time.Time
	LastPaymentTime        *time.Time
	CancelledAt            *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
