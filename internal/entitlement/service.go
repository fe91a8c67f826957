// Package entitlement は機能へのアクセス権を判定する。
// プレミアム購読中、または報酬ユニットによる解放が有効な場合にアクセスを許可する。
package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"github.com/mashtheking/PropertyPro-sub001/internal/repository"
)

// UnlockFinder は有効な機能解放の検索インターフェース。
type UnlockFinder interface {
	FindActiveUnlock(ctx context.Context, userID, featureName string, now time.Time) (*model.FeatureUnlock, error)
}

// Service はアクセス権判定のサービス層。
type Service struct {
	profiles repository.ProfileRepository
	unlocks  UnlockFinder
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(profiles repository.ProfileRepository, unlocks UnlockFinder) *Service {
	return &Service{profiles: profiles, unlocks: unlocks, now: time.Now}
}

// HasAccess はユーザーが機能を利用できるかどうかを返す。
func (s *Service) HasAccess(ctx context.Context, userID, feature string) (bool, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return false, model.NewProfileNotFoundError()
	}
	if profile.IsPremium {
		return true, nil
	}

	unlock, err := s.unlocks.FindActiveUnlock(ctx, userID, feature, s.now())
	if err != nil {
		return false, fmt.Errorf("機能解放の取得に失敗しました: %w", err)
	}
	return unlock != nil, nil
}

// Require はアクセス権がない場合にFEATURE_LOCKEDエラーを返す。
func (s *Service) Require(ctx context.Context, userID, feature string) error {
	ok, err := s.HasAccess(ctx, userID, feature)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewFeatureLockedError(feature)
	}
	return nil
}
