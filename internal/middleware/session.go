// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/geostats/probono/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// authIDContextKey はリクエストコンテキストにIdPのサブジェクトを格納するためのキー。
var authIDContextKey = contextKey("auth_id")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// セッションのサブジェクト（WorkOSのユーザーID）をリクエストコンテキストに注入する。
// ローカルのユーザーが未作成でもセッションが有効なら通過させる。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil || session.AuthID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if info := requestInfoFromContext(r.Context()); info != nil {
				info.authID = session.AuthID
			}

			ctx := ContextWithAuthID(r.Context(), session.AuthID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthIDFromContext はリクエストコンテキストからサブジェクトを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func AuthIDFromContext(ctx context.Context) (string, error) {
	authID, ok := ctx.Value(authIDContextKey).(string)
	if !ok || authID == "" {
		return "", fmt.Errorf("auth ID not found in context")
	}
	return authID, nil
}

// ContextWithAuthID はコンテキストにサブジェクトを注入する。
func ContextWithAuthID(ctx context.Context, authID string) context.Context {
	return context.WithValue(ctx, authIDContextKey, authID)
}
