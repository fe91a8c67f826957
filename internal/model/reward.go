package model

import "time"

// RewardReason は報酬ユニット増減の理由を表す。
type RewardReason string

const (
	// RewardReasonAdWatch は広告視聴による付与を示す。
	RewardReasonAdWatch RewardReason = "ad_watch"
	// RewardReasonFeatureUse は機能利用による消費を示す。
	RewardReasonFeatureUse RewardReason = "feature_use"
)

// RewardTransaction は報酬ユニットの増減1件を表す台帳エントリ。
// Deltaは付与なら正、消費なら負の値を取る。
type RewardTransaction struct {
	ID           string
	UserID       string
	Delta        int
	BalanceAfter int
	Reason       RewardReason
	FeatureName  string
	CreatedAt    time.Time
}

// FeatureUnlock は報酬ユニット消費による機能の一時解放を表す。
type FeatureUnlock struct {
	ID          string
	UserID      string
	FeatureName string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Active は指定時刻において解放が有効かどうかを返す。
func (u FeatureUnlock) Active(now time.Time) bool {
	return now.Before(u.ExpiresAt)
}
