// Package subscription はプレミアム購読の検証、解約、状態同期を提供する。
// 購読の状態は課金プロバイダーの応答からのみ決定し、プロフィールへ射影する。
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mashtheking/PropertyPro-sub001/internal/billing"
	"github.com/mashtheking/PropertyPro-sub001/internal/metrics"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"github.com/mashtheking/PropertyPro-sub001/internal/repository"
)

// 解約時にプロバイダーへ送る理由
const cancelReason = "Cancelled by user from PropertyPro"

// ServiceConfig は購読サービスの設定。
type ServiceConfig struct {
	// PlanID が空でない場合、このプランの購読のみ受け付ける。
	PlanID string
}

// Service は購読管理のサービス層。
type Service struct {
	repo     repository.SubscriptionRepository
	provider billing.Provider
	metrics  metrics.MetricsCollector
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。metricsはnilでもよい。
func NewService(
	repo repository.SubscriptionRepository,
	provider billing.Provider,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
}

// Verify は課金プロバイダーで購読が有効であることを確認し、ユーザーに紐付けて保存する。
// 有効でない購読は保存せずにSUBSCRIPTION_NOT_ACTIVEを返す。
func (s *Service) Verify(ctx context.Context, userID, externalID string) (*model.Subscription, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		s.recordVerify(metrics.OutcomeRejected)
		return nil, model.NewValidationError("購読IDを指定してください")
	}

	existing, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		s.recordVerify(metrics.OutcomeError)
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if existing != nil && existing.UserID != userID {
		// 他ユーザーの購読の存在は明かさない
		s.recordVerify(metrics.OutcomeRejected)
		return nil, model.NewSubscriptionNotFoundError(externalID)
	}

	info, err := s.provider.GetSubscription(ctx, externalID)
	if err != nil {
		s.recordVerify(outcomeFor(err))
		return nil, s.mapProviderError(err, externalID)
	}

	if s.config.PlanID != "" && info.PlanID != s.config.PlanID {
		s.recordVerify(metrics.OutcomeRejected)
		return nil, model.NewValidationError(fmt.Sprintf("対象外のプランです: %s", info.PlanID))
	}

	status, ok := billing.MapStatus(info.RawStatus)
	if !ok || status != model.SubscriptionStatusActive {
		s.recordVerify(metrics.OutcomeRejected)
		return nil, model.NewSubscriptionNotActiveError(info.RawStatus)
	}

	sub := fromProvider(userID, info, status)
	if err := s.save(ctx, sub); err != nil {
		s.recordVerify(outcomeFor(err))
		return nil, err
	}

	slog.Info("プレミアム購読を有効化しました",
		slog.String("user_id", userID),
		slog.String("subscription_id", externalID),
		slog.String("plan_id", info.PlanID),
	)
	s.recordVerify(metrics.OutcomeSuccess)
	return sub, nil
}

// Cancel はユーザーの購読を解約する。
// 有効（activeまたはsuspended）な購読がない場合はNO_ACTIVE_SUBSCRIPTIONを返す。
func (s *Service) Cancel(ctx context.Context, userID, externalID string) error {
	sub, err := s.repo.FindByExternalID(ctx, strings.TrimSpace(externalID))
	if err != nil {
		s.recordCancel(metrics.OutcomeError)
		return fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if sub == nil || sub.UserID != userID || !cancellable(sub.Status) {
		s.recordCancel(metrics.OutcomeRejected)
		return model.NewNoActiveSubscriptionError()
	}

	err = s.provider.CancelSubscription(ctx, sub.ExternalSubscriptionID, cancelReason)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrInvalidState):
		// プロバイダー側では既に解約済み。ローカルの状態を追従させる。
		slog.Warn("課金プロバイダー側で購読は既に解約済みです",
			slog.String("subscription_id", sub.ExternalSubscriptionID),
		)
	default:
		s.recordCancel(outcomeFor(err))
		return s.mapProviderError(err, sub.ExternalSubscriptionID)
	}

	now := s.now()
	sub.Status = model.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	sub.NextBillingTime = nil
	if err := s.save(ctx, sub); err != nil {
		s.recordCancel(metrics.OutcomeError)
		return err
	}

	slog.Info("プレミアム購読を解約しました",
		slog.String("user_id", userID),
		slog.String("subscription_id", sub.ExternalSubscriptionID),
	)
	s.recordCancel(metrics.OutcomeSuccess)
	return nil
}

// Details はユーザーが所有する購読の詳細を返す。
func (s *Service) Details(ctx context.Context, userID, externalID string) (*model.Subscription, error) {
	sub, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if sub == nil || sub.UserID != userID {
		return nil, model.NewSubscriptionNotFoundError(externalID)
	}
	return sub, nil
}

// Sync は課金プロバイダーの最新状態を取得し、変化があれば保存する。
// 状態が変化した場合はtrueを返す。承認待ち等の未知の状態は無視する。
func (s *Service) Sync(ctx context.Context, sub *model.Subscription) (bool, error) {
	info, err := s.provider.GetSubscription(ctx, sub.ExternalSubscriptionID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			// プロバイダーから削除された購読は期限切れとして扱う
			info = &billing.SubscriptionInfo{ID: sub.ExternalSubscriptionID, PlanID: sub.PlanID, RawStatus: "EXPIRED"}
		} else {
			return false, fmt.Errorf("購読の同期に失敗しました: %w", err)
		}
	}

	status, ok := billing.MapStatus(info.RawStatus)
	if !ok {
		return false, nil
	}

	updated := fromProvider(sub.UserID, info, status)
	updated.ID = sub.ID
	updated.CancelledAt = sub.CancelledAt
	if status == model.SubscriptionStatusCancelled && updated.CancelledAt == nil {
		now := s.now()
		updated.CancelledAt = &now
	}

	if !changed(sub, updated) {
		return false, nil
	}
	if err := s.save(ctx, updated); err != nil {
		return false, err
	}

	slog.Info("購読状態を同期しました",
		slog.String("subscription_id", sub.ExternalSubscriptionID),
		slog.String("from", string(sub.Status)),
		slog.String("to", string(status)),
	)
	return true, nil
}

// ListSyncTargets は同期対象（activeまたはsuspended）の購読を返す。
func (s *Service) ListSyncTargets(ctx context.Context, limit int) ([]*model.Subscription, error) {
	return s.repo.ListByStatuses(ctx, []model.SubscriptionStatus{
		model.SubscriptionStatusActive,
		model.SubscriptionStatusSuspended,
	}, limit)
}

func (s *Service) save(ctx context.Context, sub *model.Subscription) error {
	err := s.repo.SaveWithProfile(ctx, sub)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrSubscriptionConflict):
		return model.NewSubscriptionNotFoundError(sub.ExternalSubscriptionID)
	case errors.Is(err, repository.ErrProfileNotFound):
		return model.NewProfileNotFoundError()
	default:
		return fmt.Errorf("購読の保存に失敗しました: %w", err)
	}
}

func (s *Service) mapProviderError(err error, externalID string) error {
	switch {
	case errors.Is(err, billing.ErrSubscriptionNotFound):
		return model.NewSubscriptionNotFoundError(externalID)
	case errors.Is(err, billing.ErrUnavailable):
		return model.NewBillingUnavailableError("接続できません")
	default:
		return fmt.Errorf("課金プロバイダーの呼び出しに失敗しました: %w", err)
	}
}

func (s *Service) recordVerify(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubscriptionVerification(outcome)
	}
}

func (s *Service) recordCancel(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubscriptionCancellation(outcome)
	}
}

func outcomeFor(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) || errors.Is(err, billing.ErrSubscriptionNotFound) {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}

func cancellable(status model.SubscriptionStatus) bool {
	return status == model.SubscriptionStatusActive || status == model.SubscriptionStatusSuspended
}

func fromProvider(userID string, info *billing.SubscriptionInfo, status model.SubscriptionStatus) *model.Subscription {
	return &model.Subscription{
		ID:                     uuid.New().String(),
		UserID:                 userID,
		ExternalSubscriptionID: info.ID,
		PlanID:                 info.PlanID,
		Status:                 status,
		StartTime:              info.StartTime,
		NextBillingTime:        info.NextBillingTime,
		LastPaymentTime:        info.LastPaymentTime,
	}
}

func changed(before, after *model.Subscription) bool {
	return before.Status != after.Status ||
		before.PlanID != after.PlanID ||
		!sameTime(before.NextBillingTime, after.NextBillingTime) ||
		!sameTime(before.LastPaymentTime, after.LastPaymentTime)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
