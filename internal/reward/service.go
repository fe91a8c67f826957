// Package reward は広告視聴で獲得し機能解放に消費する報酬ユニットを管理する。
package reward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/metrics"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"github.com/mashtheking/PropertyPro-sub001/internal/repository"
)

// 履歴取得の最大件数
const maxHistoryLimit = 100

// ServiceConfig は報酬サービスの設定。
type ServiceConfig struct {
	MaxPerAd  int           // 1回の広告視聴で付与できる最大ユニット数
	UnlockTTL time.Duration // 消費による機能解放の有効期間
}

// SpendResult は消費成功時の結果。
type SpendResult struct {
	Balance       int
	UnlockedUntil time.Time
}

// Service は報酬ユニットのサービス層。
type Service struct {
	repo    repository.RewardRepository
	metrics metrics.MetricsCollector
	config  ServiceConfig
	now     func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(repo repository.RewardRepository, collector metrics.MetricsCollector, config ServiceConfig) *Service {
	return &Service{
		repo:    repo,
		metrics: collector,
		config:  config,
		now:     time.Now,
	}
}

// Credit は広告視聴完了に対する報酬ユニットを付与し、付与後の残高を返す。
// amountは1以上MaxPerAd以下でなければならない。
func (s *Service) Credit(ctx context.Context, userID string, amount int) (int, error) {
	if amount < 1 || amount > s.config.MaxPerAd {
		s.recordRejected("invalid_amount")
		return 0, model.NewInvalidRewardAmountError(amount, s.config.MaxPerAd)
	}

	balance, err := s.repo.Credit(ctx, userID, amount, model.RewardReasonAdWatch)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return 0, model.NewProfileNotFoundError()
		}
		return 0, fmt.Errorf("報酬ユニットの付与に失敗しました: %w", err)
	}

	slog.Info("報酬ユニットを付与しました",
		slog.String("user_id", userID),
		slog.Int("amount", amount),
		slog.Int("balance", balance),
	)
	if s.metrics != nil {
		s.metrics.RecordRewardCredited(amount)
	}
	return balance, nil
}

// Spend は報酬ユニットを消費して機能を一時解放する。
// 残高不足の場合は残高を変更せずINSUFFICIENT_BALANCEを返す。
func (s *Service) Spend(ctx context.Context, userID string, amount int, feature string) (*SpendResult, error) {
	cost, ok := model.FeatureCost(feature)
	if !ok {
		s.recordRejected("invalid_feature")
		return nil, model.NewInvalidFeatureError(feature)
	}
	if amount < cost {
		s.recordRejected("invalid_amount")
		return nil, model.NewValidationError(fmt.Sprintf("%sの解放には%dユニット以上が必要です", feature, cost))
	}

	until := s.now().Add(s.config.UnlockTTL)
	balance, err := s.repo.Spend(ctx, userID, amount, feature, until)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientBalance):
			s.recordRejected("insufficient_balance")
			return nil, model.NewInsufficientBalanceError(balance, amount)
		case errors.Is(err, repository.ErrProfileNotFound):
			return nil, model.NewProfileNotFoundError()
		default:
			return nil, fmt.Errorf("報酬ユニットの消費に失敗しました: %w", err)
		}
	}

	slog.Info("報酬ユニットを消費しました",
		slog.String("user_id", userID),
		slog.String("feature", feature),
		slog.Int("amount", amount),
		slog.Int("balance", balance),
	)
	if s.metrics != nil {
		s.metrics.RecordRewardSpent(amount, feature)
	}
	return &SpendResult{Balance: balance, UnlockedUntil: until}, nil
}

// History は台帳エントリを新しい順に返す。limitは1〜100に丸める。
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*model.RewardTransaction, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	txs, err := s.repo.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("報酬履歴の取得に失敗しました: %w", err)
	}
	return txs, nil
}

func (s *Service) recordRejected(reason string) {
	if s.metrics != nil {
		s.metrics.RecordRewardRejected(reason)
	}
}
