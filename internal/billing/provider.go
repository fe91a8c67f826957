// Package billing は外部課金プロバイダー（PayPal）の購読APIとの連携を提供する。
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

var (
	// ErrSubscriptionNotFound はプロバイダー側に購読が存在しないことを表す。
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	// ErrInvalidState は購読の状態が要求された操作を許さないことを表す。
	ErrInvalidState = errors.New("billing: subscription state does not allow this operation")
	// ErrUnavailable は課金プロバイダーが設定されていない、または利用できないことを表す。
	ErrUnavailable = errors.New("billing: provider unavailable")
)

// SubscriptionInfo はプロバイダーから取得した購読情報。
// RawStatusはプロバイダー固有のステータス文字列をそのまま保持する。
type SubscriptionInfo struct {
	ID              string
	PlanID          string
	RawStatus       string
	StartTime       *time.Time
	NextBillingTime *time.Time
	LastPaymentTime *time.Time
}

// Provider は課金プロバイダーのインターフェース。
type Provider interface {
	GetSubscription(ctx context.Context, id string) (*SubscriptionInfo, error)
	CancelSubscription(ctx context.Context, id, reason string) error
}

// MapStatus はPayPalの購読ステータスを内部ステータスに変換する。
// 承認待ち（APPROVAL_PENDING, APPROVED）や未知の値の場合はfalseを返す。
func MapStatus(raw string) (model.SubscriptionStatus, bool) {
	switch raw {
	case "ACTIVE":
		return model.SubscriptionStatusActive, true
	case "SUSPENDED":
		return model.SubscriptionStatusSuspended, true
	case "CANCELLED":
		return model.SubscriptionStatusCancelled, true
	case "EXPIRED":
		return model.SubscriptionStatusExpired, true
	default:
		return "", false
	}
}

// UnavailableProvider は課金設定がない環境で使うProvider。常にErrUnavailableを返す。
type UnavailableProvider struct{}

// GetSubscription はErrUnavailableを返す。
func (UnavailableProvider) GetSubscription(context.Context, string) (*SubscriptionInfo, error) {
	return nil, ErrUnavailable
}

// CancelSubscription はErrUnavailableを返す。
func (UnavailableProvider) CancelSubscription(context.Context, string, string) error {
	return ErrUnavailable
}

var _ Provider = UnavailableProvider{}
