package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/geostats/probono/internal/model"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListApproved(ctx context.Context, filter model.OrganizationFilter) ([]model.OrganizationCard, error)
	SetApproved(ctx context.Context, organizationID int64, approved bool) error
}

// AdminHandler は管理者向けのHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
	scopes  ScopeFactory
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface, scopes ScopeFactory) *AdminHandler {
	return &AdminHandler{service: service, scopes: scopes}
}

// RequireAdmin はセッションのユーザーが管理者でなければ403を返すミドルウェア。
func (h *AdminHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.scopes.scopeFor(r).UserFromSession(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if !user.IsAdmin {
			slog.Warn("admin access denied", slog.Int64("user_id", user.ID))
			handleServiceError(w, r, model.NewForbiddenError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

type organizationCardResponse struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	LogoURL  *string         `json:"logoUrl"`
	Location *model.Location `json:"location"`
}

// ListOrganizations は承認済み組織を絞り込んで返す。
// GET /api/admin/organizations?sector=&ageGroup=&gender=
func (h *AdminHandler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrganizationFilter(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	cards, err := h.service.ListApproved(r.Context(), filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]organizationCardResponse, 0, len(cards))
	for _, c := range cards {
		resp = append(resp, organizationCardResponse{
			ID:       c.ID,
			Name:     c.Name,
			LogoURL:  c.LogoURL,
			Location: c.Location,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type approvalRequest struct {
	Approved *bool `json:"approved"`
}

// SetApproval は組織の承認状態を更新する。
// PUT /api/admin/organizations/{id}/approval
func (h *AdminHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var req approvalRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if req.Approved == nil {
		handleServiceError(w, r, model.NewValidationError("approved", "es obligatorio"))
		return
	}

	if err := h.service.SetApproved(r.Context(), id, *req.Approved); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseOrganizationFilter はクエリパラメータから絞り込み条件を組み立てる。空の値は条件なし。
func parseOrganizationFilter(r *http.Request) (model.OrganizationFilter, error) {
	q := r.URL.Query()
	var filter model.OrganizationFilter

	parseID := func(name string) (*int64, error) {
		v := q.Get(name)
		if v == "" {
			return nil, nil
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, model.NewValidationError(name, "debe ser un número positivo")
		}
		return &id, nil
	}

	var err error
	if filter.SectorID, err = parseID("sector"); err != nil {
		return filter, err
	}
	if filter.AgeGroupID, err = parseID("ageGroup"); err != nil {
		return filter, err
	}
	if v := q.Get("gender"); v != "" {
		gender := model.Gender(v)
		filter.Gender = &gender
	}
	return filter, nil
}
