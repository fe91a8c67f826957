package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した購読リポジトリ。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

const subscriptionColumns = `id, user_id, external_subscription_id, plan_id, status,
	start_time, next_billing_time, last_payment_time, cancelled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	sub := &model.Subscription{}
	var status string
	var start, next, last, cancelled sql.NullTime
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.ExternalSubscriptionID, &sub.PlanID, &status,
		&start, &next, &last, &cancelled, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Status = model.SubscriptionStatus(status)
	sub.StartTime = timePtr(start)
	sub.NextBillingTime = timePtr(next)
	sub.LastPaymentTime = timePtr(last)
	sub.CancelledAt = timePtr(cancelled)
	return sub, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// FindByExternalID は課金プロバイダーの購読IDで購読を取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_subscription_id = $1`,
		externalID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	return sub, nil
}

// SaveWithProfile は購読をUPSERTし、プロフィールのプレミアム状態を同一トランザクションで更新する。
// 既存の購読IDが別ユーザーに紐付いている場合はErrSubscriptionConflictを返す。
func (r *PostgresSubscriptionRepo) SaveWithProfile(ctx context.Context, sub *model.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO subscriptions (id, user_id, external_subscription_id, plan_id, status,
		                            start_time, next_billing_time, last_payment_time, cancelled_at,
		                            created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		 ON CONFLICT (external_subscription_id) DO UPDATE SET
		     plan_id = EXCLUDED.plan_id,
		     status = EXCLUDED.status,
		     start_time = EXCLUDED.start_time,
		     next_billing_time = EXCLUDED.next_billing_time,
		     last_payment_time = EXCLUDED.last_payment_time,
		     cancelled_at = COALESCE(EXCLUDED.cancelled_at, subscriptions.cancelled_at),
		     updated_at = NOW()
		 WHERE subscriptions.user_id = EXCLUDED.user_id
		 RETURNING id, created_at, updated_at`,
		sub.ID, sub.UserID, sub.ExternalSubscriptionID, sub.PlanID, string(sub.Status),
		sub.StartTime, sub.NextBillingTime, sub.LastPaymentTime, sub.CancelledAt,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrSubscriptionConflict
	}
	if err != nil {
		return fmt.Errorf("購読の保存に失敗しました: %w", err)
	}

	// プロフィールへ射影する。is_premiumはステータスから導出し、単独では更新しない。
	result, err := tx.ExecContext(ctx,
		`UPDATE profiles
		 SET is_premium = $2, subscription_status = $3, subscription_id = $4, updated_at = NOW()
		 WHERE user_id = $1`,
		sub.UserID, sub.Status.GrantsPremium(), string(sub.Status), sub.ExternalSubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの購読状態の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProfileNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListByStatuses は指定ステータスの購読を更新日時の古い順に最大limit件返す。
func (r *PostgresSubscriptionRepo) ListByStatuses(ctx context.Context, statuses []model.SubscriptionStatus, limit int) ([]*model.Subscription, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE status = ANY($1)
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		pq.Array(values), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("購読行の読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読一覧の走査に失敗しました: %w", err)
	}
	return subs, nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
