package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geostats/probono/internal/middleware"
	"github.com/geostats/probono/internal/model"
	"github.com/go-chi/chi/v5"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) (string, error)
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	currentSessionFn func(ctx context.Context, sessionID string) (*model.Session, *model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "", nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) CurrentSession(ctx context.Context, sessionID string) (*model.Session, *model.User, error) {
	if m.currentSessionFn != nil {
		return m.currentSessionFn(ctx, sessionID)
	}
	return nil, nil, nil
}

type mockUserService struct {
	createFn func(ctx context.Context, authID string, init *model.UserInit) (*model.User, error)
	updateFn func(ctx context.Context, userID int64, upd *model.UserUpdate) error
	deleteFn func(ctx context.Context, userID int64) error
}

func (m *mockUserService) Create(ctx context.Context, authID string, init *model.UserInit) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, authID, init)
	}
	return nil, nil
}

func (m *mockUserService) Update(ctx context.Context, userID int64, upd *model.UserUpdate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, upd)
	}
	return nil
}

func (m *mockUserService) Delete(ctx context.Context, userID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID)
	}
	return nil
}

type mockOrganizationService struct {
	createFn  func(ctx context.Context, ownerID int64, init *model.OrganizationInit) (*model.Organization, error)
	updateFn  func(ctx context.Context, organizationID int64, upd *model.OrganizationUpdate) (*model.Organization, error)
	getFn     func(ctx context.Context, organizationID int64) (*model.Organization, error)
	isOwnerFn func(ctx context.Context, authID string, organizationID int64) (bool, error)
}

func (m *mockOrganizationService) Create(ctx context.Context, ownerID int64, init *model.OrganizationInit) (*model.Organization, error) {
	if m.createFn != nil {
		return m.createFn(ctx, ownerID, init)
	}
	return nil, nil
}

func (m *mockOrganizationService) Update(ctx context.Context, organizationID int64, upd *model.OrganizationUpdate) (*model.Organization, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, organizationID, upd)
	}
	return nil, nil
}

func (m *mockOrganizationService) Get(ctx context.Context, organizationID int64) (*model.Organization, error) {
	if m.getFn != nil {
		return m.getFn(ctx, organizationID)
	}
	return nil, model.NewOrganizationNotFoundError()
}

func (m *mockOrganizationService) IsOwner(ctx context.Context, authID string, organizationID int64) (bool, error) {
	if m.isOwnerFn != nil {
		return m.isOwnerFn(ctx, authID, organizationID)
	}
	return false, nil
}

type mockAdminService struct {
	listApprovedFn func(ctx context.Context, filter model.OrganizationFilter) ([]model.OrganizationCard, error)
	setApprovedFn  func(ctx context.Context, organizationID int64, approved bool) error
}

func (m *mockAdminService) ListApproved(ctx context.Context, filter model.OrganizationFilter) ([]model.OrganizationCard, error) {
	if m.listApprovedFn != nil {
		return m.listApprovedFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockAdminService) SetApproved(ctx context.Context, organizationID int64, approved bool) error {
	if m.setApprovedFn != nil {
		return m.setApprovedFn(ctx, organizationID, approved)
	}
	return nil
}

type mockCatalogService struct {
	catalogFn func(ctx context.Context) (*model.Catalog, error)
}

func (m *mockCatalogService) Catalog(ctx context.Context) (*model.Catalog, error) {
	if m.catalogFn != nil {
		return m.catalogFn(ctx)
	}
	return &model.Catalog{}, nil
}

// mockScope はRequestScopeのモック。呼び出し回数を記録する。
type mockScope struct {
	authID             string
	organizationCookie string

	user          *model.UserWithCount
	userErr       error
	active        *model.Organization
	activeErr     error
	organizations []model.OrganizationSummary

	userCalls int
}

func (m *mockScope) ActiveOrganization(ctx context.Context) (*model.Organization, error) {
	if m.activeErr != nil {
		return nil, m.activeErr
	}
	if m.active == nil {
		return nil, model.NewOrganizationNotFoundError()
	}
	return m.active, nil
}

func (m *mockScope) UserFromSession(ctx context.Context) (*model.UserWithCount, error) {
	m.userCalls++
	if m.userErr != nil {
		return nil, m.userErr
	}
	if m.user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return m.user, nil
}

func (m *mockScope) CurrentUserOrganizations(ctx context.Context) ([]model.OrganizationSummary, error) {
	return m.organizations, nil
}

// scopeFactoryFor は常に同じスコープを返すScopeFactoryを生成する。
// 渡されたサブジェクトとCookieの値をスコープに記録する。
func scopeFactoryFor(scope *mockScope) ScopeFactory {
	return func(authID, organizationCookie string) RequestScope {
		scope.authID = authID
		scope.organizationCookie = organizationCookie
		return scope
	}
}

// --- テストヘルパー ---

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL:       "http://localhost:3000",
		SessionMaxAge: 86400,
	}
}

func testUser(id int64, isAdmin bool) *model.UserWithCount {
	return &model.UserWithCount{
		User: model.User{
			ID:         id,
			AuthID:     "user_01",
			GivenName:  "Ana",
			FamilyName: "López",
			Email:      "ana@example.org",
			IsAdmin:    isAdmin,
		},
	}
}

// withAuthID はセッションミドルウェアを通過した状態のリクエストを作る。
func withAuthID(req *http.Request, authID string) *http.Request {
	return req.WithContext(middleware.ContextWithAuthID(req.Context(), authID))
}

// withPathID はchiのURLパラメータ{id}を設定する。
func withPathID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// assertErrorCode はレスポンスのステータスとエラーコードを検証する。
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, wantStatus, w.Body.String())
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}
