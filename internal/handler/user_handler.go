package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/geostats/probono/internal/middleware"
	"github.com/geostats/probono/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Create はオンボーディングでローカルのユーザーを作成する。
	Create(ctx context.Context, authID string, init *model.UserInit) (*model.User, error)
	// Update はユーザー情報を更新し、メールアドレスとパスワードはIdPにも反映する。
	Update(ctx context.Context, userID int64, upd *model.UserUpdate) error
	// Delete はIdPのユーザー、単独所有の組織、セッション、ローカルのユーザーを削除する。
	Delete(ctx context.Context, userID int64) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	scopes  ScopeFactory
	cookies cookieWriter
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, scopes ScopeFactory, config AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		scopes:  scopes,
		cookies: cookieWriter{domain: config.CookieDomain, secure: config.CookieSecure},
	}
}

type createUserRequest struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	Phone      string `json:"phone"`
}

type updateUserRequest struct {
	GivenName  *string `json:"givenName"`
	FamilyName *string `json:"familyName"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Password   *string `json:"password"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID                int64     `json:"id"`
	GivenName         string    `json:"givenName"`
	FamilyName        string    `json:"familyName"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	IsAdmin           bool      `json:"isAdmin"`
	OrganizationCount *int      `json:"organizationCount,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func toUserResponse(u *model.User, organizationCount *int) *userResponse {
	return &userResponse{
		ID:                u.ID,
		GivenName:         u.GivenName,
		FamilyName:        u.FamilyName,
		Email:             u.Email,
		Phone:             u.Phone,
		IsAdmin:           u.IsAdmin,
		OrganizationCount: organizationCount,
		CreatedAt:         u.CreatedAt,
	}
}

type organizationSummaryResponse struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	LogoURL *string `json:"logoUrl"`
}

// Create はオンボーディングでプロフィールを作成する。
// POST /api/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	authID, err := middleware.AuthIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	user, err := h.service.Create(r.Context(), authID, &model.UserInit{
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		Phone:      req.Phone,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	count := 0
	writeJSON(w, http.StatusCreated, toUserResponse(user, &count))
}

// Me はセッションのユーザーを所有組織数付きで返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.scopes.scopeFor(r).UserFromSession(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(&user.User, &user.OrganizationCount))
}

// Update はセッションのユーザー情報を更新する。
// PATCH /api/users/me
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := h.scopes.scopeFor(r).UserFromSession(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	err = h.service.Update(r.Context(), user.ID, &model.UserUpdate{
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		Email:      req.Email,
		Phone:      req.Phone,
		Password:   req.Password,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete はアカウントを削除し、セッションCookieをクリアする。
// DELETE /api/users/me
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := h.scopes.scopeFor(r).UserFromSession(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), user.ID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.cookies.clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// Organizations はセッションのユーザーが所有する組織の一覧を返す。
// GET /api/users/me/organizations
func (h *UserHandler) Organizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.scopes.scopeFor(r).CurrentUserOrganizations(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]organizationSummaryResponse, 0, len(orgs))
	for _, o := range orgs {
		resp = append(resp, organizationSummaryResponse{ID: o.ID, Name: o.Name, LogoURL: o.LogoURL})
	}
	writeJSON(w, http.StatusOK, resp)
}
