// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/api"
	"github.com/mashtheking/PropertyPro-sub001/internal/auth"
	"github.com/mashtheking/PropertyPro-sub001/internal/middleware"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.IssuedSession, *model.User, error)
	Login(ctx context.Context, email, password string, rememberMe bool) (*auth.IssuedSession, *model.User, error)
	Logout(ctx context.Context, token string) error
	GetCurrentUser(ctx context.Context, token string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler は認証関連のHTTPハンドラー。
// レスポンスボディでトークンを返し、ブラウザ向けに同じトークンをHTTP Only Cookieにも設定する。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Register はユーザーを登録し、セッションを発行する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, user, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	setSessionCookie(w, h.config, session.Token, session.MaxAge)
	writeJSON(w, http.StatusCreated, toAuthResponse(session, user))
}

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, user, err := h.service.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	setSessionCookie(w, h.config, session.Token, session.MaxAge)
	writeJSON(w, http.StatusOK, toAuthResponse(session, user))
}

// Logout はセッションを破棄する。トークンがなくても成功として扱う。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, _ := middleware.TokenFromRequest(r); token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			handleServiceError(w, r, err)
			return
		}
	}

	// セッションCookieをクリア
	setSessionCookie(w, h.config, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Session は現在のセッションのユーザーを返す。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromRequest(r)
	if token == "" {
		middleware.WriteRequestError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.SessionResponse{User: toUserResponse(user)})
}

// setSessionCookie はセッションCookieを設定する。maxAgeが負の場合はCookieを削除する。
func setSessionCookie(w http.ResponseWriter, config AuthHandlerConfig, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func toAuthResponse(session *auth.IssuedSession, user *model.User) api.AuthResponse {
	if session == nil || user == nil {
		slog.Error("auth service returned an empty session or user")
		return api.AuthResponse{}
	}
	return api.AuthResponse{
		Session: api.Session{Token: session.Token, ExpiresAt: session.ExpiresAt.UTC().Truncate(time.Second)},
		User:    toUserResponse(user),
	}
}

func toUserResponse(user *model.User) api.User {
	return api.User{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}
}
