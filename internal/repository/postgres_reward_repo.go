package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// PostgresRewardRepo はPostgreSQLを使用した報酬ユニット台帳リポジトリ。
// 残高はprofiles.reward_unitsに保持し、増減のたびにreward_transactionsへ記録する。
type PostgresRewardRepo struct {
	db *sql.DB
}

// NewPostgresRewardRepo はPostgresRewardRepoを生成する。
func NewPostgresRewardRepo(db *sql.DB) *PostgresRewardRepo {
	return &PostgresRewardRepo{db: db}
}

// Credit は残高に加算し台帳に記録する。加算後の残高を返す。
func (r *PostgresRewardRepo) Credit(ctx context.Context, userID string, amount int, reason model.RewardReason) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var balance int
	err = tx.QueryRowContext(ctx,
		`UPDATE profiles SET reward_units = reward_units + $2, updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING reward_units`,
		userID, amount,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("報酬ユニットの加算に失敗しました: %w", err)
	}

	if err := insertRewardTransaction(ctx, tx, userID, amount, balance, reason, ""); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return balance, nil
}

// Spend は残高がamount以上の場合のみ減算し、台帳と機能解放を同一トランザクションで記録する。
// 残高の確認と減算は単一の条件付きUPDATEで行うため、並行する消費で残高が負になることはない。
func (r *PostgresRewardRepo) Spend(ctx context.Context, userID string, amount int, featureName string, unlockUntil time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var balance int
	err = tx.QueryRowContext(ctx,
		`UPDATE profiles SET reward_units = reward_units - $2, updated_at = NOW()
		 WHERE user_id = $1 AND reward_units >= $2
		 RETURNING reward_units`,
		userID, amount,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		// 残高不足かプロフィール不在かを判別する
		var current int
		lookupErr := tx.QueryRowContext(ctx,
			`SELECT reward_units FROM profiles WHERE user_id = $1`,
			userID,
		).Scan(&current)
		if lookupErr == sql.ErrNoRows {
			return 0, ErrProfileNotFound
		}
		if lookupErr != nil {
			return 0, fmt.Errorf("報酬ユニット残高の取得に失敗しました: %w", lookupErr)
		}
		return current, ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("報酬ユニットの減算に失敗しました: %w", err)
	}

	if err := insertRewardTransaction(ctx, tx, userID, -amount, balance, model.RewardReasonFeatureUse, featureName); err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO feature_unlocks (id, user_id, feature_name, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New().String(), userID, featureName, unlockUntil,
	)
	if err != nil {
		return 0, fmt.Errorf("機能解放の記録に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return balance, nil
}

func insertRewardTransaction(ctx context.Context, tx *sql.Tx, userID string, delta, balanceAfter int, reason model.RewardReason, featureName string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reward_transactions (id, user_id, delta, balance_after, reason, feature_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		uuid.New().String(), userID, delta, balanceAfter, string(reason), nullString(featureName),
	)
	if err != nil {
		return fmt.Errorf("台帳エントリの記録に失敗しました: %w", err)
	}
	return nil
}

// ListTransactions は台帳エントリを新しい順に最大limit件返す。
func (r *PostgresRewardRepo) ListTransactions(ctx context.Context, userID string, limit int) ([]*model.RewardTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, delta, balance_after, reason, feature_name, created_at
		 FROM reward_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("台帳エントリの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var txs []*model.RewardTransaction
	for rows.Next() {
		t := &model.RewardTransaction{}
		var reason string
		var feature sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.Delta, &t.BalanceAfter, &reason, &feature, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("台帳行の読み取りに失敗しました: %w", err)
		}
		t.Reason = model.RewardReason(reason)
		t.FeatureName = feature.String
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("台帳エントリの走査に失敗しました: %w", err)
	}
	return txs, nil
}

// FindActiveUnlock は指定時刻で有効な機能解放のうち最も長く有効なものを返す。
// 見つからない場合はnilを返す。
func (r *PostgresRewardRepo) FindActiveUnlock(ctx context.Context, userID, featureName string, now time.Time) (*model.FeatureUnlock, error) {
	u := &model.FeatureUnlock{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, feature_name, expires_at, created_at
		 FROM feature_unlocks
		 WHERE user_id = $1 AND feature_name = $2 AND expires_at > $3
		 ORDER BY expires_at DESC
		 LIMIT 1`,
		userID, featureName, now,
	).Scan(&u.ID, &u.UserID, &u.FeatureName, &u.ExpiresAt, &u.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("機能解放の取得に失敗しました: %w", err)
	}
	return u, nil
}

// DeleteExpiredUnlocks は期限切れの機能解放を削除し、削除件数を返す。
func (r *PostgresRewardRepo) DeleteExpiredUnlocks(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM feature_unlocks WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れ機能解放の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ RewardRepository = (*PostgresRewardRepo)(nil)
