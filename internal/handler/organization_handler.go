package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/geostats/probono/internal/middleware"
	"github.com/geostats/probono/internal/model"
)

// OrganizationServiceInterface は組織ハンドラーが必要とするサービスインターフェース。
type OrganizationServiceInterface interface {
	Create(ctx context.Context, ownerID int64, init *model.OrganizationInit) (*model.Organization, error)
	Update(ctx context.Context, organizationID int64, upd *model.OrganizationUpdate) (*model.Organization, error)
	Get(ctx context.Context, organizationID int64) (*model.Organization, error)
	IsOwner(ctx context.Context, authID string, organizationID int64) (bool, error)
}

// OrganizationHandler は組織プロフィールのHTTPハンドラー。
type OrganizationHandler struct {
	service     OrganizationServiceInterface
	scopes      ScopeFactory
	cookies     cookieWriter
	logoMaxSize int64
}

// NewOrganizationHandler はOrganizationHandlerを生成する。
func NewOrganizationHandler(service OrganizationServiceInterface, scopes ScopeFactory, config AuthHandlerConfig, logoMaxSize int64) *OrganizationHandler {
	return &OrganizationHandler{
		service:     service,
		scopes:      scopes,
		cookies:     cookieWriter{domain: config.CookieDomain, secure: config.CookieSecure},
		logoMaxSize: logoMaxSize,
	}
}

// Create は組織を作成し、セッションのユーザーを所有者にする。
// POST /api/organizations
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := h.scopes.scopeFor(r).UserFromSession(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	form, err := parseOrganizationForm(w, r, h.logoMaxSize)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer form.close()

	org, err := h.service.Create(r.Context(), user.ID, form.toInit())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// 作成した組織をアクティブにする
	h.cookies.set(w, organizationCookieName, strconv.FormatInt(org.ID, 10), 0, true)
	writeJSON(w, http.StatusCreated, toOrganizationResponse(org))
}

// Get は組織を取得する。
// 未承認の組織は所有者と管理者のみ参照できる。
// GET /api/organizations/{id}
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	org, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if !org.Approved {
		allowed, err := h.canManage(r, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if !allowed {
			handleServiceError(w, r, model.NewOrganizationNotFoundError())
			return
		}
	}

	writeJSON(w, http.StatusOK, toOrganizationResponse(org))
}

// Update は組織を更新する。所有者のみ実行できる。
// PATCH /api/organizations/{id}
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.requireOwner(r, id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	form, err := parseOrganizationForm(w, r, h.logoMaxSize)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer form.close()

	org, err := h.service.Update(r.Context(), id, form.toUpdate())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrganizationResponse(org))
}

// Active は選択中の組織を返す。
// GET /api/organizations/active
func (h *OrganizationHandler) Active(w http.ResponseWriter, r *http.Request) {
	org, err := h.scopes.scopeFor(r).ActiveOrganization(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationResponse(org))
}

type setActiveRequest struct {
	OrganizationID int64 `json:"organizationId"`
}

// SetActive は選択中の組織を切り替える。所有していない組織は選択できない。
// PUT /api/organizations/active
func (h *OrganizationHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if req.OrganizationID <= 0 {
		handleServiceError(w, r, model.NewValidationError("organizationId", "es obligatorio"))
		return
	}

	if err := h.requireOwner(r, req.OrganizationID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.cookies.set(w, organizationCookieName, strconv.FormatInt(req.OrganizationID, 10), 0, true)
	w.WriteHeader(http.StatusNoContent)
}

// requireOwner はセッションのサブジェクトが組織を所有していなければFORBIDDENを返す。
func (h *OrganizationHandler) requireOwner(r *http.Request, organizationID int64) error {
	authID, err := middleware.AuthIDFromContext(r.Context())
	if err != nil {
		return model.NewUnauthorizedError()
	}
	owner, err := h.service.IsOwner(r.Context(), authID, organizationID)
	if err != nil {
		return err
	}
	if !owner {
		slog.Warn("organization access denied",
			slog.String("auth_id", authID),
			slog.Int64("organization_id", organizationID),
		)
		return model.NewForbiddenError()
	}
	return nil
}

// canManage は所有者または管理者かどうかを返す。
func (h *OrganizationHandler) canManage(r *http.Request, organizationID int64) (bool, error) {
	authID, err := middleware.AuthIDFromContext(r.Context())
	if err != nil {
		return false, model.NewUnauthorizedError()
	}
	owner, err := h.service.IsOwner(r.Context(), authID, organizationID)
	if err != nil || owner {
		return owner, err
	}

	user, err := h.scopes.scopeFor(r).UserFromSession(r.Context())
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUserNotFound {
		// オンボーディング前のセッションは管理者ではない
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}
