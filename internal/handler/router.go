package handler

import (
	"log/slog"
	"net/http"

	"github.com/geostats/probono/internal/metrics"
	"github.com/geostats/probono/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	HealthChecker     HealthChecker
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	UserService         UserServiceInterface
	OrganizationService OrganizationServiceInterface
	AdminService        AdminServiceInterface
	CatalogService      CatalogServiceInterface

	// リクエストスコープ
	Scopes      ScopeFactory
	LogoMaxSize int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//	  → (認証ルートのみ) Session → Scope → RateLimit(General) → CSRF
//
// 認証ルート（/auth/*）、ヘルスチェック、カタログは認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRFConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.Scopes, deps.AuthConfig)
	orgHandler := NewOrganizationHandler(deps.OrganizationService, deps.Scopes, deps.AuthConfig, deps.LogoMaxSize)
	adminHandler := NewAdminHandler(deps.AdminService, deps.Scopes)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
	r.Get("/api/catalog", NewCatalogHandler(deps.CatalogService))

	// 認証ルート（AuthKitフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.Scopes.Middleware)
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Post("/", userHandler.Create)
			r.Get("/me", userHandler.Me)
			r.Patch("/me", userHandler.Update)
			r.Delete("/me", userHandler.Delete)
			r.Get("/me/organizations", userHandler.Organizations)
		})

		// 組織管理
		r.Route("/api/organizations", func(r chi.Router) {
			orgWrite := deps.RateLimiter.OrganizationWriteMiddleware()

			// /activeは/{id}より先に登録する
			r.Get("/active", orgHandler.Active)
			r.Put("/active", orgHandler.SetActive)

			r.With(orgWrite).Post("/", orgHandler.Create)
			r.Get("/{id}", orgHandler.Get)
			r.With(orgWrite).Patch("/{id}", orgHandler.Update)
		})

		// 管理者
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(adminHandler.RequireAdmin)
			r.Get("/organizations", adminHandler.ListOrganizations)
			r.Put("/organizations/{id}/approval", adminHandler.SetApproval)
		})
	})

	return r
}
