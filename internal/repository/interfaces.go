// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// ErrEmailTaken はメールアドレスの一意制約違反を表す。
var ErrEmailTaken = errors.New("email already registered")

// ErrInsufficientBalance は条件付き減算が残高不足で適用されなかったことを表す。
var ErrInsufficientBalance = errors.New("insufficient reward balance")

// ErrSubscriptionConflict は購読IDが別ユーザーに紐付いていることを表す。
var ErrSubscriptionConflict = errors.New("subscription belongs to another user")

// ErrProfileNotFound は更新対象のプロフィールが存在しないことを表す。
var ErrProfileNotFound = errors.New("profile not found")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（小文字正規化済み）でユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithProfile はユーザーとプロフィールを同一トランザクションで作成する。
	// メールアドレスが重複する場合はErrEmailTakenを返す。
	CreateWithProfile(ctx context.Context, user *model.User, profile *model.Profile) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するprofiles、sessions、台帳、CRMデータはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ProfileRepository はプロフィールの参照インターフェース。
// プロフィールの更新は報酬台帳・購読の各リポジトリがトランザクション内で行う。
type ProfileRepository interface {
	// FindByUserID はユーザーIDでプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)
}

// RewardRepository は報酬ユニット残高と台帳の永続化インターフェース。
type RewardRepository interface {
	// Credit は残高に加算し台帳に記録する。加算後の残高を返す。
	Credit(ctx context.Context, userID string, amount int, reason model.RewardReason) (int, error)

	// Spend は残高がamount以上の場合のみ減算し、台帳と機能解放を記録する。
	// 残高不足の場合はErrInsufficientBalanceと現在の残高を返す。
	Spend(ctx context.Context, userID string, amount int, featureName string, unlockUntil time.Time) (int, error)

	// ListTransactions は台帳エントリを新しい順に返す。
	ListTransactions(ctx context.Context, userID string, limit int) ([]*model.RewardTransaction, error)

	// FindActiveUnlock は指定時刻で有効な機能解放を返す。見つからない場合はnilを返す。
	FindActiveUnlock(ctx context.Context, userID, featureName string, now time.Time) (*model.FeatureUnlock, error)

	// DeleteExpiredUnlocks は期限切れの機能解放を削除し、削除件数を返す。
	DeleteExpiredUnlocks(ctx context.Context, now time.Time) (int64, error)
}

// SubscriptionRepository はプレミアム購読の永続化インターフェース。
type SubscriptionRepository interface {
	// FindByExternalID は課金プロバイダーの購読IDで購読を取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.Subscription, error)

	// SaveWithProfile は購読をUPSERTし、同一トランザクションでプロフィールの
	// is_premium、subscription_status、subscription_idを射影として更新する。
	SaveWithProfile(ctx context.Context, sub *model.Subscription) error

	// ListByStatuses は指定ステータスの購読を更新日時の古い順に返す。
	ListByStatuses(ctx context.Context, statuses []model.SubscriptionStatus, limit int) ([]*model.Subscription, error)
}

// ClientRepository はCRM顧客の永続化インターフェース。
type ClientRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.Client, error)
	// FindByID は指定ユーザーが所有する顧客を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Client, error)
	Create(ctx context.Context, client *model.Client) error
	Update(ctx context.Context, client *model.Client) error
	// Delete は顧客を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// PropertyRepository はCRM物件の永続化インターフェース。
type PropertyRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.Property, error)
	// FindByID は指定ユーザーが所有する物件を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Property, error)
	CountByUserID(ctx context.Context, userID string) (int, error)
	Create(ctx context.Context, property *model.Property) error
	Update(ctx context.Context, property *model.Property) error
	// Delete は物件を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// AppointmentRepository はCRM予定の永続化インターフェース。
type AppointmentRepository interface {
	// ListByUserID は予定を開始日時の昇順で返す。fromがゼロ値の場合は全件を返す。
	ListByUserID(ctx context.Context, userID string, from time.Time) ([]*model.Appointment, error)
	// FindByID は指定ユーザーが所有する予定を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Appointment, error)
	Create(ctx context.Context, appointment *model.Appointment) error
	Update(ctx context.Context, appointment *model.Appointment) error
	// Delete は予定を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// AnalyticsRepository はCRMデータの集計インターフェース。
type AnalyticsRepository interface {
	Summary(ctx context.Context, userID string, now time.Time) (*model.AnalyticsSummary, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// isUniqueViolation はPostgreSQLの一意制約違反（23505）かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// nullString は空文字をNULLとして扱うためのsql.NullStringを返す。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
