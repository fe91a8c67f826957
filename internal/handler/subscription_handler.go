package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mashtheking/PropertyPro-sub001/internal/api"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// Verify は課金プロバイダーで購読を検証し、ユーザーに紐付ける。
	Verify(ctx context.Context, userID, externalID string) (*model.Subscription, error)
	// Cancel はユーザーの有効な購読を解約する。
	Cancel(ctx context.Context, userID, externalID string) error
	// Details はユーザーが所有する購読の詳細を返す。
	Details(ctx context.Context, userID, externalID string) (*model.Subscription, error)
}

// SubscriptionHandler はプレミアム購読のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
	}
}

// Verify は決済ウィジェットで承認された購読を検証する。
// POST /subscriptions/verify
func (h *SubscriptionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req api.VerifySubscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, err := h.service.Verify(r.Context(), userID, req.ExternalSubscriptionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// Cancel は購読を解約する。
// POST /subscriptions/cancel
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req api.CancelSubscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.Cancel(r.Context(), userID, req.SubscriptionID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Details は購読のプランと請求日を返す。
// GET /subscriptions/{id}
func (h *SubscriptionHandler) Details(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Details(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}
