// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"github.com/mashtheking/PropertyPro-sub001/internal/repository"
)

// SubscriptionCanceller は課金プロバイダー側の購読解約インターフェース。
type SubscriptionCanceller interface {
	Cancel(ctx context.Context, userID, externalID string) error
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	profileRepo repository.ProfileRepository
	canceller   SubscriptionCanceller
}

// NewService はServiceの新しいインスタンスを生成する。
// cancellerがnilの場合、退会時に課金プロバイダーへの解約を行わない。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	profileRepo repository.ProfileRepository,
	canceller SubscriptionCanceller,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		profileRepo: profileRepo,
		canceller:   canceller,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: 有効な購読の解約 → sessions → user
// （+ CASCADE: profiles, reward_transactions, feature_unlocks, subscriptions, clients, properties, appointments）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. 有効な購読を解約する。解約できないまま削除すると課金が継続するため中断する
	if err := s.cancelSubscription(ctx, userID); err != nil {
		return err
	}

	// 2. セッションを削除
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	// 3. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}

func (s *Service) cancelSubscription(ctx context.Context, userID string) error {
	if s.canceller == nil || s.profileRepo == nil {
		return nil
	}
	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil || profile.SubscriptionID == "" {
		return nil
	}
	if profile.SubscriptionStatus != model.SubscriptionStatusActive &&
		profile.SubscriptionStatus != model.SubscriptionStatusSuspended {
		return nil
	}

	err = s.canceller.Cancel(ctx, userID, profile.SubscriptionID)
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeNoActiveSubscription {
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("退会に伴い購読を解約しました",
		slog.String("user_id", userID),
		slog.String("subscription_id", profile.SubscriptionID),
	)
	return nil
}
