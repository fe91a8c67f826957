package model

import "time"

// Client は不動産CRMの顧客を表す。
type Client struct {
	ID        string
	UserID    string
	Name      string
	Email     string
	Phone     string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PropertyStatus は物件の販売状況を表す。
type PropertyStatus string

const (
	PropertyStatusAvailable PropertyStatus = "available"
	PropertyStatusPending   PropertyStatus = "pending"
	PropertyStatusSold      PropertyStatus = "sold"
)

// Valid はステータスが定義済みの値かどうかを返す。
func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyStatusAvailable, PropertyStatusPending, PropertyStatusSold:
		return true
	default:
		return false
	}
}

// Property は管理対象の物件を表す。
// Priceは最小通貨単位（セント）で保持する。
type Property struct {
	ID          string
	UserID      string
	Title       string
	Address     string
	Price       int64
	Bedrooms    int
	Bathrooms   int
	Status      PropertyStatus
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AppointmentStatus は内見等の予定の状態を表す。
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Valid はステータスが定義済みの値かどうかを返す。
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	default:
		return false
	}
}

// Appointment は顧客と物件を結ぶ予定を表す。
// ClientIDとPropertyIDは任意で、空文字は未設定を意味する。
type Appointment struct {
	ID         string
	UserID     string
	ClientID   string
	PropertyID string
	Title      string
	StartsAt   time.Time
	EndsAt     time.Time
	Status     AppointmentStatus
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AnalyticsSummary は高度な分析機能で返す集計値。
type AnalyticsSummary struct {
	ClientCount             int
	PropertyCountByStatus   map[PropertyStatus]int
	AppointmentsByStatus    map[AppointmentStatus]int
	UpcomingAppointments    int
	AvailableInventoryValue int64
}
