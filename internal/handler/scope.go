package handler

import (
	"context"
	"net/http"

	"github.com/geostats/probono/internal/middleware"
	"github.com/geostats/probono/internal/model"
)

// organizationCookieName はアクティブな組織IDを保持するCookieの名前。
const organizationCookieName = "organizationId"

// RequestScope はリクエスト単位でメモ化されたセッション情報へのアクセサ。
// user.RequestScopeが実装する。
type RequestScope interface {
	ActiveOrganization(ctx context.Context) (*model.Organization, error)
	UserFromSession(ctx context.Context) (*model.UserWithCount, error)
	CurrentUserOrganizations(ctx context.Context) ([]model.OrganizationSummary, error)
}

// ScopeFactory はセッションのサブジェクトと組織Cookieの値からRequestScopeを生成する。
type ScopeFactory func(authID, organizationCookie string) RequestScope

type scopeContextKey struct{}

// Middleware はリクエストごとにRequestScopeを1つ生成してコンテキストに格納する。
// セッションミドルウェアの内側で使う。
func (f ScopeFactory) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), scopeContextKey{}, f.build(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// scopeFor はリクエストのRequestScopeを返す。
// Middlewareを通っていない場合はその場で生成する。
func (f ScopeFactory) scopeFor(r *http.Request) RequestScope {
	if s, ok := r.Context().Value(scopeContextKey{}).(RequestScope); ok {
		return s
	}
	return f.build(r)
}

// build はリクエストのコンテキストとCookieからRequestScopeを組み立てる。
// 未認証の場合はサブジェクトが空のスコープになる。
func (f ScopeFactory) build(r *http.Request) RequestScope {
	authID, _ := middleware.AuthIDFromContext(r.Context())
	var organizationCookie string
	if c, err := r.Cookie(organizationCookieName); err == nil {
		organizationCookie = c.Value
	}
	return f(authID, organizationCookie)
}
