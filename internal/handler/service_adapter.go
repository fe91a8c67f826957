package handler

import (
	"context"
	"fmt"

	"github.com/mashtheking/PropertyPro-sub001/internal/api"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"github.com/mashtheking/PropertyPro-sub001/internal/repository"
)

// ProfileServiceAdapter は repository.ProfileRepository を ProfileServiceInterface に適合させるアダプタ。
type ProfileServiceAdapter struct {
	repo repository.ProfileRepository
}

// NewProfileServiceAdapter はProfileServiceAdapterを生成する。
func NewProfileServiceAdapter(repo repository.ProfileRepository) *ProfileServiceAdapter {
	return &ProfileServiceAdapter{repo: repo}
}

// GetProfile はプロフィールを返す。存在しない場合はPROFILE_NOT_FOUNDを返す。
func (a *ProfileServiceAdapter) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := a.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return profile, nil
}

// --- ドメインモデルからレスポンス型への変換 ---

func toProfileResponse(p *model.Profile) api.Profile {
	return api.Profile{
		ID:                 p.UserID,
		Email:              p.Email,
		Username:           p.Username,
		FullName:           p.FullName,
		IsPremium:          p.IsPremium,
		RewardUnits:        p.RewardUnits,
		SubscriptionStatus: string(p.SubscriptionStatus),
		SubscriptionID:     p.SubscriptionID,
		EmailVerified:      p.EmailVerified,
	}
}

func toRewardTransactionResponse(tx *model.RewardTransaction) api.RewardTransaction {
	return api.RewardTransaction{
		ID:           tx.ID,
		Delta:        tx.Delta,
		BalanceAfter: tx.BalanceAfter,
		Reason:       string(tx.Reason),
		FeatureName:  tx.FeatureName,
		CreatedAt:    tx.CreatedAt,
	}
}

func toSubscriptionResponse(s *model.Subscription) api.Subscription {
	return api.Subscription{
		SubscriptionID:  s.ExternalSubscriptionID,
		Status:          string(s.Status),
		PlanID:          s.PlanID,
		StartTime:       s.StartTime,
		NextBillingTime: s.NextBillingTime,
		LastPaymentTime: s.LastPaymentTime,
		CancelledAt:     s.CancelledAt,
	}
}

func toClientResponse(c *model.Client) api.Client {
	return api.Client{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toPropertyResponse(p *model.Property) api.Property {
	return api.Property{
		ID:          p.ID,
		Title:       p.Title,
		Address:     p.Address,
		Price:       p.Price,
		Bedrooms:    p.Bedrooms,
		Bathrooms:   p.Bathrooms,
		Status:      string(p.Status),
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toAppointmentResponse(a *model.Appointment) api.Appointment {
	return api.Appointment{
		ID:         a.ID,
		ClientID:   a.ClientID,
		PropertyID: a.PropertyID,
		Title:      a.Title,
		StartsAt:   a.StartsAt,
		EndsAt:     a.EndsAt,
		Status:     string(a.Status),
		Notes:      a.Notes,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func toAnalyticsResponse(s *model.AnalyticsSummary) api.AnalyticsSummary {
	props := make(map[string]int, len(s.PropertyCountByStatus))
	for status, n := range s.PropertyCountByStatus {
		props[string(status)] = n
	}
	appts := make(map[string]int, len(s.AppointmentsByStatus))
	for status, n := range s.AppointmentsByStatus {
		appts[string(status)] = n
	}
	return api.AnalyticsSummary{
		ClientCount:             s.ClientCount,
		PropertyCountByStatus:   props,
		AppointmentsByStatus:    appts,
		UpcomingAppointments:    s.UpcomingAppointments,
		AvailableInventoryValue: s.AvailableInventoryValue,
	}
}

// --- compile-time interface checks ---

var _ ProfileServiceInterface = (*ProfileServiceAdapter)(nil)
