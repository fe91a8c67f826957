// Package crm は顧客・物件・予定の管理を提供する。
// 全ての操作はセッションユーザーが所有するデータに限定される。
package crm

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"github.com/mashtheking/PropertyPro-sub001/internal/repository"
	"github.com/mashtheking/PropertyPro-sub001/internal/security"
)

const (
	maxTitleLength = 200
	maxNotesLength = 10000
)

// AccessChecker は機能アクセス権の判定インターフェース。
type AccessChecker interface {
	HasAccess(ctx context.Context, userID, feature string) (bool, error)
	Require(ctx context.Context, userID, feature string) error
}

// ServiceConfig はCRMサービスの設定。
type ServiceConfig struct {
	// FreePropertyLimit は無料アカウントの物件登録上限。0以下で無制限。
	FreePropertyLimit int
}

// ClientInput は顧客の作成・更新入力。
type ClientInput struct {
	Name  string
	Email string
	Phone string
	Notes string
}

// PropertyInput は物件の作成・更新入力。
type PropertyInput struct {
	Title       string
	Address     string
	Price       int64
	Bedrooms    int
	Bathrooms   int
	Status      model.PropertyStatus
	Description string
}

// AppointmentInput は予定の作成・更新入力。
type AppointmentInput struct {
	ClientID   string
	PropertyID string
	Title      string
	StartsAt   time.Time
	EndsAt     time.Time
	Status     model.AppointmentStatus
	Notes      string
}

// Service はCRMのサービス層。
type Service struct {
	clients      repository.ClientRepository
	properties   repository.PropertyRepository
	appointments repository.AppointmentRepository
	analytics    repository.AnalyticsRepository
	access       AccessChecker
	sanitizer    security.ContentSanitizerService
	config       ServiceConfig
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	clients repository.ClientRepository,
	properties repository.PropertyRepository,
	appointments repository.AppointmentRepository,
	analytics repository.AnalyticsRepository,
	access AccessChecker,
	sanitizer security.ContentSanitizerService,
	config ServiceConfig,
) *Service {
	return &Service{
		clients:      clients,
		properties:   properties,
		appointments: appointments,
		analytics:    analytics,
		access:       access,
		sanitizer:    sanitizer,
		config:       config,
		now:          time.Now,
	}
}

// --- 顧客 ---

// ListClients は顧客一覧を返す。
func (s *Service) ListClients(ctx context.Context, userID string) ([]*model.Client, error) {
	clients, err := s.clients.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("顧客一覧の取得に失敗しました: %w", err)
	}
	return clients, nil
}

// GetClient は顧客を返す。
func (s *Service) GetClient(ctx context.Context, userID, id string) (*model.Client, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewNotFoundError("client", id)
	}
	c, err := s.clients.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("顧客の取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewNotFoundError("client", id)
	}
	return c, nil
}

// CreateClient は顧客を作成する。
func (s *Service) CreateClient(ctx context.Context, userID string, in ClientInput) (*model.Client, error) {
	if err := s.normalizeClient(&in); err != nil {
		return nil, err
	}
	now := s.now()
	c := &model.Client{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.clients.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("顧客の作成に失敗しました: %w", err)
	}
	slog.Info("顧客を作成しました", slog.String("user_id", userID), slog.String("client_id", c.ID))
	return c, nil
}

// UpdateClient は顧客を更新する。
func (s *Service) UpdateClient(ctx context.Context, userID, id string, in ClientInput) (*model.Client, error) {
	c, err := s.GetClient(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.normalizeClient(&in); err != nil {
		return nil, err
	}
	c.Name, c.Email, c.Phone, c.Notes = in.Name, in.Email, in.Phone, in.Notes
	c.UpdatedAt = s.now()
	if err := s.clients.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("顧客の更新に失敗しました: %w", err)
	}
	return c, nil
}

// DeleteClient は顧客を削除する。関連する予定の顧客参照は解除される。
func (s *Service) DeleteClient(ctx context.Context, userID, id string) error {
	return s.deleteOwned(ctx, "client", id, func() (bool, error) { return s.clients.Delete(ctx, userID, id) })
}

func (s *Service) normalizeClient(in *ClientInput) error {
	in.Name = s.sanitizer.PlainText(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = s.sanitizer.PlainText(in.Phone)
	in.Notes = s.sanitizer.Sanitize(in.Notes)

	if err := requireTitle("name", in.Name); err != nil {
		return err
	}
	if in.Email != "" {
		if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
			return model.NewValidationError("メールアドレスの形式が正しくありません")
		}
	}
	return checkNotes(in.Notes)
}

// --- 物件 ---

// ListProperties は物件一覧を返す。
func (s *Service) ListProperties(ctx context.Context, userID string) ([]*model.Property, error) {
	props, err := s.properties.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("物件一覧の取得に失敗しました: %w", err)
	}
	return props, nil
}

// GetProperty は物件を返す。
func (s *Service) GetProperty(ctx context.Context, userID, id string) (*model.Property, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewNotFoundError("property", id)
	}
	p, err := s.properties.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("物件の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewNotFoundError("property", id)
	}
	return p, nil
}

// CreateProperty は物件を作成する。
// 無料アカウントは登録上限に達すると、プレミアムまたは解放中でない限り作成できない。
func (s *Service) CreateProperty(ctx context.Context, userID string, in PropertyInput) (*model.Property, error) {
	if err := s.normalizeProperty(&in); err != nil {
		return nil, err
	}
	if err := s.checkPropertyLimit(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Property{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       in.Title,
		Address:     in.Address,
		Price:       in.Price,
		Bedrooms:    in.Bedrooms,
		Bathrooms:   in.Bathrooms,
		Status:      in.Status,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.properties.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("物件の作成に失敗しました: %w", err)
	}
	slog.Info("物件を作成しました", slog.String("user_id", userID), slog.String("property_id", p.ID))
	return p, nil
}

// UpdateProperty は物件を更新する。
func (s *Service) UpdateProperty(ctx context.Context, userID, id string, in PropertyInput) (*model.Property, error) {
	p, err := s.GetProperty(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.normalizeProperty(&in); err != nil {
		return nil, err
	}
	p.Title, p.Address, p.Price = in.Title, in.Address, in.Price
	p.Bedrooms, p.Bathrooms, p.Status, p.Description = in.Bedrooms, in.Bathrooms, in.Status, in.Description
	p.UpdatedAt = s.now()
	if err := s.properties.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("物件の更新に失敗しました: %w", err)
	}
	return p, nil
}

// DeleteProperty は物件を削除する。関連する予定の物件参照は解除される。
func (s *Service) DeleteProperty(ctx context.Context, userID, id string) error {
	return s.deleteOwned(ctx, "property", id, func() (bool, error) { return s.properties.Delete(ctx, userID, id) })
}

func (s *Service) checkPropertyLimit(ctx context.Context, userID string) error {
	limit := s.config.FreePropertyLimit
	if limit <= 0 {
		return nil
	}
	count, err := s.properties.CountByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("物件数の取得に失敗しました: %w", err)
	}
	if count < limit {
		return nil
	}
	ok, err := s.access.HasAccess(ctx, userID, model.FeatureUnlimitedProperties)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewPropertyLimitError(limit)
	}
	return nil
}

func (s *Service) normalizeProperty(in *PropertyInput) error {
	in.Title = s.sanitizer.PlainText(in.Title)
	in.Address = s.sanitizer.PlainText(in.Address)
	in.Description = s.sanitizer.Sanitize(in.Description)
	if in.Status == "" {
		in.Status = model.PropertyStatusAvailable
	}

	if err := requireTitle("title", in.Title); err != nil {
		return err
	}
	if !in.Status.Valid() {
		return model.NewValidationError(fmt.Sprintf("不明な物件ステータスです: %s", in.Status))
	}
	if in.Price < 0 || in.Bedrooms < 0 || in.Bathrooms < 0 {
		return model.NewValidationError("価格・部屋数は0以上で指定してください")
	}
	return checkNotes(in.Description)
}

// --- 予定 ---

// ListAppointments は予定一覧を返す。upcomingOnlyの場合は現在時刻以降のみ返す。
func (s *Service) ListAppointments(ctx context.Context, userID string, upcomingOnly bool) ([]*model.Appointment, error) {
	var from time.Time
	if upcomingOnly {
		from = s.now()
	}
	appts, err := s.appointments.ListByUserID(ctx, userID, from)
	if err != nil {
		return nil, fmt.Errorf("予定一覧の取得に失敗しました: %w", err)
	}
	return appts, nil
}

// GetAppointment は予定を返す。
func (s *Service) GetAppointment(ctx context.Context, userID, id string) (*model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewNotFoundError("appointment", id)
	}
	a, err := s.appointments.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("予定の取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewNotFoundError("appointment", id)
	}
	return a, nil
}

// CreateAppointment は予定を作成する。
func (s *Service) CreateAppointment(ctx context.Context, userID string, in AppointmentInput) (*model.Appointment, error) {
	if err := s.normalizeAppointment(ctx, userID, &in); err != nil {
		return nil, err
	}
	now := s.now()
	a := &model.Appointment{
		ID:         uuid.New().String(),
		UserID:     userID,
		ClientID:   in.ClientID,
		PropertyID: in.PropertyID,
		Title:      in.Title,
		StartsAt:   in.StartsAt,
		EndsAt:     in.EndsAt,
		Status:     in.Status,
		Notes:      in.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("予定の作成に失敗しました: %w", err)
	}
	return a, nil
}

// UpdateAppointment は予定を更新する。
func (s *Service) UpdateAppointment(ctx context.Context, userID, id string, in AppointmentInput) (*model.Appointment, error) {
	a, err := s.GetAppointment(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.normalizeAppointment(ctx, userID, &in); err != nil {
		return nil, err
	}
	a.ClientID, a.PropertyID, a.Title = in.ClientID, in.PropertyID, in.Title
	a.StartsAt, a.EndsAt, a.Status, a.Notes = in.StartsAt, in.EndsAt, in.Status, in.Notes
	a.UpdatedAt = s.now()
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("予定の更新に失敗しました: %w", err)
	}
	return a, nil
}

// DeleteAppointment は予定を削除する。
func (s *Service) DeleteAppointment(ctx context.Context, userID, id string) error {
	return s.deleteOwned(ctx, "appointment", id, func() (bool, error) { return s.appointments.Delete(ctx, userID, id) })
}

func (s *Service) normalizeAppointment(ctx context.Context, userID string, in *AppointmentInput) error {
	in.Title = s.sanitizer.PlainText(in.Title)
	in.Notes = s.sanitizer.Sanitize(in.Notes)
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.PropertyID = strings.TrimSpace(in.PropertyID)
	if in.Status == "" {
		in.Status = model.AppointmentStatusScheduled
	}

	if err := requireTitle("title", in.Title); err != nil {
		return err
	}
	if !in.Status.Valid() {
		return model.NewValidationError(fmt.Sprintf("不明な予定ステータスです: %s", in.Status))
	}
	if in.StartsAt.IsZero() || in.EndsAt.IsZero() {
		return model.NewValidationError("開始日時と終了日時を指定してください")
	}
	if in.EndsAt.Before(in.StartsAt) {
		return model.NewValidationError("終了日時は開始日時以降にしてください")
	}
	if err := checkNotes(in.Notes); err != nil {
		return err
	}

	// 参照先は同じユーザーが所有していなければならない
	if in.ClientID != "" {
		if _, err := s.GetClient(ctx, userID, in.ClientID); err != nil {
			return err
		}
	}
	if in.PropertyID != "" {
		if _, err := s.GetProperty(ctx, userID, in.PropertyID); err != nil {
			return err
		}
	}
	return nil
}

// --- 分析 ---

// Analytics は高度な分析の集計値を返す。プレミアムまたは解放中のユーザーのみ利用できる。
func (s *Service) Analytics(ctx context.Context, userID string) (*model.AnalyticsSummary, error) {
	if err := s.access.Require(ctx, userID, model.FeatureAdvancedAnalytics); err != nil {
		return nil, err
	}
	summary, err := s.analytics.Summary(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("分析データの取得に失敗しました: %w", err)
	}
	return summary, nil
}

func (s *Service) deleteOwned(ctx context.Context, resource, id string, del func() (bool, error)) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewNotFoundError(resource, id)
	}
	deleted, err := del()
	if err != nil {
		return fmt.Errorf("%sの削除に失敗しました: %w", resource, err)
	}
	if !deleted {
		return model.NewNotFoundError(resource, id)
	}
	return nil
}

func requireTitle(field, value string) error {
	if value == "" {
		return model.NewValidationError(fmt.Sprintf("%sは必須です", field))
	}
	if utf8.RuneCountInString(value) > maxTitleLength {
		return model.NewValidationError(fmt.Sprintf("%sは%d文字以内で入力してください", field, maxTitleLength))
	}
	return nil
}

func checkNotes(notes string) error {
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return model.NewValidationError(fmt.Sprintf("メモは%d文字以内で入力してください", maxNotesLength))
	}
	return nil
}
