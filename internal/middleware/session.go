// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// SessionCookieName はブラウザ向けにセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_id"

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// userIDSinkContextKey は外側のミドルウェアが認証結果を受け取るための格納先のキー。
var userIDSinkContextKey = contextKey("user_id_sink")

// SessionResolver はセッショントークンからユーザーIDを解決するインターフェース。
// 無効・期限切れのトークンには空文字を返す。
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (string, error)
}

// TokenFromRequest はリクエストからセッショントークンを取り出す。
// Authorization: Bearerヘッダーを優先し、なければCookieを参照する。
// bearerはヘッダー由来のトークンかどうかを示す。
func TokenFromRequest(r *http.Request) (token string, bearer bool) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix)), true
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value, false
	}
	return "", false
}

// NewSessionMiddleware はBearerトークンまたはCookieからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 UNAUTHORIZEDを返す。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := TokenFromRequest(r)
			if token == "" {
				WriteRequestError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			userID, err := resolver.ResolveSession(r.Context(), token)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				WriteRequestError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if userID == "" {
				WriteRequestError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
// 外側のロギングミドルウェアが格納先を用意している場合はそこにも書き込む。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if sink, ok := ctx.Value(userIDSinkContextKey).(*string); ok {
		*sink = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}

func withUserIDSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, userIDSinkContextKey, sink)
}
