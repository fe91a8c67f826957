package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mashtheking/PropertyPro-sub001/internal/api"
	"github.com/mashtheking/PropertyPro-sub001/internal/crm"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// CRMServiceInterface はCRMハンドラーが必要とするサービスインターフェース。
type CRMServiceInterface interface {
	ListClients(ctx context.Context, userID string) ([]*model.Client, error)
	GetClient(ctx context.Context, userID, id string) (*model.Client, error)
	CreateClient(ctx context.Context, userID string, in crm.ClientInput) (*model.Client, error)
	UpdateClient(ctx context.Context, userID, id string, in crm.ClientInput) (*model.Client, error)
	DeleteClient(ctx context.Context, userID, id string) error

	ListProperties(ctx context.Context, userID string) ([]*model.Property, error)
	GetProperty(ctx context.Context, userID, id string) (*model.Property, error)
	CreateProperty(ctx context.Context, userID string, in crm.PropertyInput) (*model.Property, error)
	UpdateProperty(ctx context.Context, userID, id string, in crm.PropertyInput) (*model.Property, error)
	DeleteProperty(ctx context.Context, userID, id string) error

	ListAppointments(ctx context.Context, userID string, upcomingOnly bool) ([]*model.Appointment, error)
	GetAppointment(ctx context.Context, userID, id string) (*model.Appointment, error)
	CreateAppointment(ctx context.Context, userID string, in crm.AppointmentInput) (*model.Appointment, error)
	UpdateAppointment(ctx context.Context, userID, id string, in crm.AppointmentInput) (*model.Appointment, error)
	DeleteAppointment(ctx context.Context, userID, id string) error

	Analytics(ctx context.Context, userID string) (*model.AnalyticsSummary, error)
}

// CRMHandler は顧客・物件・予定のHTTPハンドラー。
type CRMHandler struct {
	service CRMServiceInterface
}

// NewCRMHandler はCRMHandlerを生成する。
func NewCRMHandler(service CRMServiceInterface) *CRMHandler {
	return &CRMHandler{service: service}
}

// --- 顧客 ---

// ListClients は GET /api/clients を処理する。
func (h *CRMHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	respondList(w, r, h.service.ListClients, toClientResponse)
}

// GetClient は GET /api/clients/{id} を処理する。
func (h *CRMHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	respondOne(w, r, http.StatusOK, func(ctx context.Context, userID string) (*model.Client, error) {
		return h.service.GetClient(ctx, userID, chi.URLParam(r, "id"))
	}, toClientResponse)
}

// CreateClient は POST /api/clients を処理する。
func (h *CRMHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req api.ClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondOne(w, r, http.StatusCreated, func(ctx context.Context, userID string) (*model.Client, error) {
		return h.service.CreateClient(ctx, userID, clientInput(req))
	}, toClientResponse)
}

// UpdateClient は PUT /api/clients/{id} を処理する。
func (h *CRMHandler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req api.ClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondOne(w, r, http.StatusOK, func(ctx context.Context, userID string) (*model.Client, error) {
		return h.service.UpdateClient(ctx, userID, chi.URLParam(r, "id"), clientInput(req))
	}, toClientResponse)
}

// DeleteClient は DELETE /api/clients/{id} を処理する。
func (h *CRMHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, h.service.DeleteClient)
}

// --- 物件 ---

// ListProperties は GET /api/properties を処理する。
func (h *CRMHandler) ListProperties(w http.ResponseWriter, r *http.Request) {
	respondList(w, r, h.service.ListProperties, toPropertyResponse)
}

// GetProperty は GET /api/properties/{id} を処理する。
func (h *CRMHandler) GetProperty(w http.ResponseWriter, r *http.Request) {
	respondOne(w, r, http.StatusOK, func(ctx context.Context, userID string) (*model.Property, error) {
		return h.service.GetProperty(ctx, userID, chi.URLParam(r, "id"))
	}, toPropertyResponse)
}

// CreateProperty は POST /api/properties を処理する。
func (h *CRMHandler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req api.PropertyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondOne(w, r, http.StatusCreated, func(ctx context.Context, userID string) (*model.Property, error) {
		return h.service.CreateProperty(ctx, userID, propertyInput(req))
	}, toPropertyResponse)
}

// UpdateProperty は PUT /api/properties/{id} を処理する。
func (h *CRMHandler) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	var req api.PropertyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondOne(w, r, http.StatusOK, func(ctx context.Context, userID string) (*model.Property, error) {
		return h.service.UpdateProperty(ctx, userID, chi.URLParam(r, "id"), propertyInput(req))
	}, toPropertyResponse)
}

// DeleteProperty は DELETE /api/properties/{id} を処理する。
func (h *CRMHandler) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, h.service.DeleteProperty)
}

// --- 予定 ---

// ListAppointments は GET /api/appointments?upcoming=true を処理する。
func (h *CRMHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	upcoming := r.URL.Query().Get("upcoming") == "true"
	respondList(w, r, func(ctx context.Context, userID string) ([]*model.Appointment, error) {
		return h.service.ListAppointments(ctx, userID, upcoming)
	}, toAppointmentResponse)
}

// GetAppointment は GET /api/appointments/{id} を処理する。
func (h *CRMHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	respondOne(w, r, http.StatusOK, func(ctx context.Context, userID string) (*model.Appointment, error) {
		return h.service.GetAppointment(ctx, userID, chi.URLParam(r, "id"))
	}, toAppointmentResponse)
}

// CreateAppointment は POST /api/appointments を処理する。
func (h *CRMHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req api.AppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondOne(w, r, http.StatusCreated, func(ctx context.Context, userID string) (*model.Appointment, error) {
		return h.service.CreateAppointment(ctx, userID, appointmentInput(req))
	}, toAppointmentResponse)
}

// UpdateAppointment は PUT /api/appointments/{id} を処理する。
func (h *CRMHandler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var req api.AppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondOne(w, r, http.StatusOK, func(ctx context.Context, userID string) (*model.Appointment, error) {
		return h.service.UpdateAppointment(ctx, userID, chi.URLParam(r, "id"), appointmentInput(req))
	}, toAppointmentResponse)
}

// DeleteAppointment は DELETE /api/appointments/{id} を処理する。
func (h *CRMHandler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, h.service.DeleteAppointment)
}

// --- 分析 ---

// AnalyticsSummary は GET /api/analytics/summary を処理する。
// プレミアムまたは報酬ユニットで解放中のユーザーのみ利用できる。
func (h *CRMHandler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	respondOne(w, r, http.StatusOK, h.service.Analytics, toAnalyticsResponse)
}

// --- 共通処理 ---

func respondList[T, R any](w http.ResponseWriter, r *http.Request, list func(context.Context, string) ([]*T, error), convert func(*T) R) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	rows, err := list(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	resp := make([]R, len(rows))
	for i, row := range rows {
		resp[i] = convert(row)
	}
	writeJSON(w, http.StatusOK, resp)
}

func respondOne[T, R any](w http.ResponseWriter, r *http.Request, status int, get func(context.Context, string) (*T, error), convert func(*T) R) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	row, err := get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, status, convert(row))
}

func respondDeleted(w http.ResponseWriter, r *http.Request, del func(ctx context.Context, userID, id string) error) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := del(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func clientInput(req api.ClientRequest) crm.ClientInput {
	return crm.ClientInput{Name: req.Name, Email: req.Email, Phone: req.Phone, Notes: req.Notes}
}

func propertyInput(req api.PropertyRequest) crm.PropertyInput {
	return crm.PropertyInput{
		Title:       req.Title,
		Address:     req.Address,
		Price:       req.Price,
		Bedrooms:    req.Bedrooms,
		Bathrooms:   req.Bathrooms,
		Status:      model.PropertyStatus(req.Status),
		Description: req.Description,
	}
}

func appointmentInput(req api.AppointmentRequest) crm.AppointmentInput {
	return crm.AppointmentInput{
		ClientID:   req.ClientID,
		PropertyID: req.PropertyID,
		Title:      req.Title,
		StartsAt:   req.StartsAt,
		EndsAt:     req.EndsAt,
		Status:     model.AppointmentStatus(req.Status),
		Notes:      req.Notes,
	}
}
