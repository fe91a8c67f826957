// Package api はゲートウェイサーバーとクライアントが共有するHTTPのリクエスト・レスポンス形式を定義する。
// JSONフィールド名はcamelCaseで統一する。
package api

import "time"

// ErrorBody はAPIエラーレスポンスの統一フォーマット。
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`
}

// --- 認証 ---

// RegisterRequest は POST /auth/register のボディ。
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// LoginRequest は POST /auth/login のボディ。
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Session は発行されたセッショントークン。
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// User は認証済みユーザー。
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthResponse はログイン・登録の成功レスポンス。
type AuthResponse struct {
	Session Session `json:"session"`
	User    User    `json:"user"`
}

// SessionResponse は GET /auth/session のレスポンス。
type SessionResponse struct {
	User User `json:"user"`
}

// --- プロフィール ---

// Profile は GET /profile のレスポンス。
type Profile struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Username           string `json:"username"`
	FullName           string `json:"fullName"`
	IsPremium          bool   `json:"isPremium"`
	RewardUnits        int    `json:"rewardUnits"`
	SubscriptionStatus string `json:"subscriptionStatus"`
	SubscriptionID     string `json:"subscriptionId,omitempty"`
	EmailVerified      bool   `json:"emailVerified"`
}

// --- 報酬 ---

// AddRewardRequest は POST /rewards/add のボディ。
type AddRewardRequest struct {
	Amount int `json:"amount"`
}

// BalanceResponse は報酬付与後の残高。
type BalanceResponse struct {
	Balance int `json:"balance"`
}

// UseRewardRequest は POST /rewards/use のボディ。
type UseRewardRequest struct {
	Amount      int    `json:"amount"`
	FeatureName string `json:"featureName"`
}

// UseRewardResponse は報酬消費後の残高と解放期限。
type UseRewardResponse struct {
	Balance       int       `json:"balance"`
	UnlockedUntil time.Time `json:"unlockedUntil"`
}

// RewardTransaction は報酬台帳の1エントリ。
type RewardTransaction struct {
	ID           string    `json:"id"`
	Delta        int       `json:"delta"`
	BalanceAfter int       `json:"balanceAfter"`
	Reason       string    `json:"reason"`
	FeatureName  string    `json:"featureName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// --- 購読 ---

// VerifySubscriptionRequest は POST /subscriptions/verify のボディ。
type VerifySubscriptionRequest struct {
	ExternalSubscriptionID string `json:"externalSubscriptionId"`
}

// CancelSubscriptionRequest は POST /subscriptions/cancel のボディ。
type CancelSubscriptionRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

// Subscription は購読の詳細（プランと請求日）。
type Subscription struct {
	SubscriptionID  string     `json:"subscriptionId"`
	Status          string     `json:"status"`
	PlanID          string     `json:"planId"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	NextBillingTime *time.Time `json:"nextBillingTime,omitempty"`
	LastPaymentTime *time.Time `json:"lastPaymentTime,omitempty"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`
}

// --- CRM ---

// Client はCRM顧客。
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ClientRequest は顧客の作成・更新ボディ。
type ClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

// Property は物件。Priceは最小通貨単位。
type Property struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Address     string    `json:"address,omitempty"`
	Price       int64     `json:"price"`
	Bedrooms    int       `json:"bedrooms"`
	Bathrooms   int       `json:"bathrooms"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PropertyRequest は物件の作成・更新ボディ。
type PropertyRequest struct {
	Title       string `json:"title"`
	Address     string `json:"address"`
	Price       int64  `json:"price"`
	Bedrooms    int    `json:"bedrooms"`
	Bathrooms   int    `json:"bathrooms"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// Appointment は予定。
type Appointment struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"clientId,omitempty"`
	PropertyID string    `json:"propertyId,omitempty"`
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AppointmentRequest は予定の作成・更新ボディ。
type AppointmentRequest struct {
	ClientID   string    `json:"clientId"`
	PropertyID string    `json:"propertyId"`
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes"`
}

// AnalyticsSummary は GET /api/analytics/summary のレスポンス。
type AnalyticsSummary struct {
	ClientCount             int            `json:"clientCount"`
	PropertyCountByStatus   map[string]int `json:"propertyCountByStatus"`
	AppointmentsByStatus    map[string]int `json:"appointmentsByStatus"`
	UpcomingAppointments    int            `json:"upcomingAppointments"`
	AvailableInventoryValue int64          `json:"availableInventoryValue"`
}

// Health は GET /health のレスポンス。
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}
