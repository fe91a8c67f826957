package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID はユーザーIDでプロフィールを取得する。
// メールアドレスはusersテーブルから結合する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	p := &model.Profile{}
	var status string
	var subscriptionID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT p.user_id, u.email, p.username, p.full_name, p.is_premium, p.reward_units,
		        p.subscription_status, p.subscription_id, p.email_verified, p.created_at, p.updated_at
		 FROM profiles p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.Email, &p.Username, &p.FullName, &p.IsPremium, &p.RewardUnits,
		&status, &subscriptionID, &p.EmailVerified, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	p.SubscriptionStatus = model.SubscriptionStatus(status)
	p.SubscriptionID = subscriptionID.String
	return p, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
