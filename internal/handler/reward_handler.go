package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mashtheking/PropertyPro-sub001/internal/api"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
	"github.com/mashtheking/PropertyPro-sub001/internal/reward"
)

// 履歴取得のデフォルト件数
const defaultHistoryLimit = 50

// RewardServiceInterface は報酬ハンドラーが必要とするサービスインターフェース。
type RewardServiceInterface interface {
	Credit(ctx context.Context, userID string, amount int) (int, error)
	Spend(ctx context.Context, userID string, amount int, feature string) (*reward.SpendResult, error)
	History(ctx context.Context, userID string, limit int) ([]*model.RewardTransaction, error)
}

// RewardHandler は報酬ユニットのHTTPハンドラー。
type RewardHandler struct {
	service RewardServiceInterface
}

// NewRewardHandler はRewardHandlerを生成する。
func NewRewardHandler(service RewardServiceInterface) *RewardHandler {
	return &RewardHandler{service: service}
}

// Add は広告視聴完了に対する報酬ユニットを付与する。
// POST /rewards/add
func (h *RewardHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req api.AddRewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	balance, err := h.service.Credit(r.Context(), userID, req.Amount)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.BalanceResponse{Balance: balance})
}

// Use は報酬ユニットを消費して機能を一時解放する。
// POST /rewards/use
func (h *RewardHandler) Use(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req api.UseRewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Spend(r.Context(), userID, req.Amount, req.FeatureName)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.UseRewardResponse{
		Balance:       result.Balance,
		UnlockedUntil: result.UnlockedUntil,
	})
}

// History は報酬台帳を新しい順に返す。
// GET /rewards/history?limit=N
func (h *RewardHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			handleServiceError(w, r, model.NewValidationError("limitは1以上の整数で指定してください"))
			return
		}
		limit = n
	}

	txs, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]api.RewardTransaction, len(txs))
	for i, tx := range txs {
		resp[i] = toRewardTransactionResponse(tx)
	}
	writeJSON(w, http.StatusOK, resp)
}
