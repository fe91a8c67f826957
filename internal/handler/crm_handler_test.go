package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mashtheking/PropertyPro-sub001/internal/api"
	"github.com/mashtheking/PropertyPro-sub001/internal/crm"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// withURLParam はchiのルートパラメータをリクエストに設定する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCRMHandler_ListClients(t *testing.T) {
	svc := &mockCRMService{listClientsFn: func(_ context.Context, userID string) ([]*model.Client, error) {
		if userID != "user-1" {
			t.Errorf("userID = %q", userID)
		}
		return []*model.Client{
			{ID: "c-1", Name: "佐藤", Email: "sato@example.com", CreatedAt: fixedTime, UpdatedAt: fixedTime},
		}, nil
	}}

	w := httptest.NewRecorder()
	NewCRMHandler(svc).ListClients(w, authedRequest(http.MethodGet, "/api/clients", "", "user-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp []api.Client
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp) != 1 || resp[0].Name != "佐藤" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCRMHandler_ListClients_EmptyIsArray(t *testing.T) {
	svc := &mockCRMService{listClientsFn: func(context.Context, string) ([]*model.Client, error) {
		return nil, nil
	}}
	w := httptest.NewRecorder()
	NewCRMHandler(svc).ListClients(w, authedRequest(http.MethodGet, "/api/clients", "", "user-1"))

	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestCRMHandler_CreateClient(t *testing.T) {
	svc := &mockCRMService{createClientFn: func(_ context.Context, _ string, in crm.ClientInput) (*model.Client, error) {
		if in.Name != "佐藤" || in.Notes != "<b>VIP</b>" {
			t.Errorf("input = %+v", in)
		}
		return &model.Client{ID: "c-1", Name: in.Name, CreatedAt: fixedTime, UpdatedAt: fixedTime}, nil
	}}

	w := httptest.NewRecorder()
	NewCRMHandler(svc).CreateClient(w, authedRequest(http.MethodPost, "/api/clients",
		`{"name":"佐藤","notes":"<b>VIP</b>"}`, "user-1"))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
}

func TestCRMHandler_CreateClient_Validation(t *testing.T) {
	svc := &mockCRMService{createClientFn: func(context.Context, string, crm.ClientInput) (*model.Client, error) {
		return nil, model.NewValidationError("name is required")
	}}
	w := httptest.NewRecorder()
	NewCRMHandler(svc).CreateClient(w, authedRequest(http.MethodPost, "/api/clients", `{}`, "user-1"))
	assertErrorResponse(t, w, http.StatusBadRequest, model.ErrCodeValidation)
}

func TestCRMHandler_DeleteClient(t *testing.T) {
	var gotID string
	svc := &mockCRMService{deleteClientFn: func(_ context.Context, _, id string) error {
		gotID = id
		if id != "c-1" {
			return model.NewNotFoundError("client", id)
		}
		return nil
	}}
	h := NewCRMHandler(svc)

	w := httptest.NewRecorder()
	h.DeleteClient(w, withURLParam(authedRequest(http.MethodDelete, "/api/clients/c-1", "", "user-1"), "id", "c-1"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if gotID != "c-1" {
		t.Errorf("id = %q", gotID)
	}

	w = httptest.NewRecorder()
	h.DeleteClient(w, withURLParam(authedRequest(http.MethodDelete, "/api/clients/other", "", "user-1"), "id", "other"))
	assertErrorResponse(t, w, http.StatusNotFound, model.ErrCodeNotFound)
}

func TestCRMHandler_GetClient_NotFound(t *testing.T) {
	w := httptest.NewRecorder()
	NewCRMHandler(&mockCRMService{}).GetClient(w,
		withURLParam(authedRequest(http.MethodGet, "/api/clients/x", "", "user-1"), "id", "x"))
	assertErrorResponse(t, w, http.StatusNotFound, model.ErrCodeNotFound)
}

func TestCRMHandler_CreateProperty(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"無料プランの上限", model.NewPropertyLimitError(5), http.StatusConflict, model.ErrCodePropertyLimit},
		{"不正なステータス", model.NewValidationError("invalid status"), http.StatusBadRequest, model.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCRMService{createPropertyFn: func(context.Context, string, crm.PropertyInput) (*model.Property, error) {
				return nil, tt.err
			}}
			w := httptest.NewRecorder()
			NewCRMHandler(svc).CreateProperty(w, authedRequest(http.MethodPost, "/api/properties",
				`{"title":"駅前マンション","price":3500000000}`, "user-1"))
			assertErrorResponse(t, w, tt.status, tt.code)
		})
	}
}

func TestCRMHandler_CreateProperty_Success(t *testing.T) {
	svc := &mockCRMService{createPropertyFn: func(_ context.Context, _ string, in crm.PropertyInput) (*model.Property, error) {
		if in.Price != 3500000000 || in.Status != model.PropertyStatusPending || in.Bedrooms != 3 {
			t.Errorf("input = %+v", in)
		}
		return &model.Property{ID: "p-1", Title: in.Title, Price: in.Price, Status: in.Status}, nil
	}}
	w := httptest.NewRecorder()
	NewCRMHandler(svc).CreateProperty(w, authedRequest(http.MethodPost, "/api/properties",
		`{"title":"駅前マンション","price":3500000000,"bedrooms":3,"status":"pending"}`, "user-1"))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var resp api.Property
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "pending" || resp.Price != 3500000000 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCRMHandler_ListAppointments_Upcoming(t *testing.T) {
	var gotUpcoming bool
	svc := &mockCRMService{listApptsFn: func(_ context.Context, _ string, upcomingOnly bool) ([]*model.Appointment, error) {
		gotUpcoming = upcomingOnly
		return nil, nil
	}}
	h := NewCRMHandler(svc)

	w := httptest.NewRecorder()
	h.ListAppointments(w, authedRequest(http.MethodGet, "/api/appointments?upcoming=true", "", "user-1"))
	if !gotUpcoming {
		t.Error("upcoming=true should request upcoming appointments only")
	}

	w = httptest.NewRecorder()
	h.ListAppointments(w, authedRequest(http.MethodGet, "/api/appointments", "", "user-1"))
	if gotUpcoming {
		t.Error("upcoming should default to false")
	}
}

func TestCRMHandler_CreateAppointment(t *testing.T) {
	start := fixedTime.Add(48 * time.Hour)
	svc := &mockCRMService{createApptFn: func(_ context.Context, _ string, in crm.AppointmentInput) (*model.Appointment, error) {
		if !in.StartsAt.Equal(start) || in.ClientID != "c-1" {
			t.Errorf("input = %+v", in)
		}
		return &model.Appointment{ID: "a-1", ClientID: in.ClientID, Title: in.Title, StartsAt: in.StartsAt, EndsAt: in.EndsAt, Status: model.AppointmentStatusScheduled}, nil
	}}

	body := `{"clientId":"c-1","title":"内見","startsAt":"2026-04-03T12:00:00Z","endsAt":"2026-04-03T13:00:00Z"}`
	w := httptest.NewRecorder()
	NewCRMHandler(svc).CreateAppointment(w, authedRequest(http.MethodPost, "/api/appointments", body, "user-1"))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body=%s)", w.Code, w.Body.String())
	}
	var resp api.Appointment
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "scheduled" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestCRMHandler_AnalyticsSummary(t *testing.T) {
	svc := &mockCRMService{analyticsFn: func(context.Context, string) (*model.AnalyticsSummary, error) {
		return &model.AnalyticsSummary{
			ClientCount:           4,
			PropertyCountByStatus: map[model.PropertyStatus]int{model.PropertyStatusAvailable: 2, model.PropertyStatusSold: 1},
			AppointmentsByStatus:  map[model.AppointmentStatus]int{model.AppointmentStatusScheduled: 3},
		}, nil
	}}

	w := httptest.NewRecorder()
	NewCRMHandler(svc).AnalyticsSummary(w, authedRequest(http.MethodGet, "/api/analytics/summary", "", "user-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp api.AnalyticsSummary
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.ClientCount != 4 || resp.PropertyCountByStatus["available"] != 2 || resp.AppointmentsByStatus["scheduled"] != 3 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCRMHandler_AnalyticsSummary_Locked(t *testing.T) {
	svc := &mockCRMService{analyticsFn: func(context.Context, string) (*model.AnalyticsSummary, error) {
		return nil, model.NewFeatureLockedError(model.FeatureAdvancedAnalytics)
	}}
	w := httptest.NewRecorder()
	NewCRMHandler(svc).AnalyticsSummary(w, authedRequest(http.MethodGet, "/api/analytics/summary", "", "user-1"))
	assertErrorResponse(t, w, http.StatusForbidden, model.ErrCodeFeatureLocked)
}
