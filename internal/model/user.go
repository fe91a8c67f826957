// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptハッシュであり、APIレスポンスには含めない。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// IDはクライアントに発行する不透明なセッショントークンを兼ねる。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Profile はユーザーの非正規化されたプロフィールを表す。
// 報酬ユニット残高とプレミアム状態を含み、クライアントはこれをキャッシュとして扱う。
type Profile struct {
	UserID             string
	Email              string
	Username           string
	FullName           string
	IsPremium          bool
	RewardUnits        int
	SubscriptionStatus SubscriptionStatus
	SubscriptionID     string
	EmailVerified      bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
