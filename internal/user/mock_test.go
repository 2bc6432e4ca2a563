package user

import (
	"context"

	"github.com/geostats/probono/internal/identity"
	"github.com/geostats/probono/internal/model"
	"github.com/geostats/probono/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn              func(ctx context.Context, id int64) (*model.User, error)
	findByAuthIDFn          func(ctx context.Context, authID string) (*model.User, error)
	findByAuthIDWithCountFn func(ctx context.Context, authID string) (*model.UserWithCount, error)
	createFn                func(ctx context.Context, user *model.User) error
	updateFn                func(ctx context.Context, id int64, update *model.UserUpdate) error
	deleteByIDFn            func(ctx context.Context, id int64) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByAuthID(ctx context.Context, authID string) (*model.User, error) {
	if m.findByAuthIDFn != nil {
		return m.findByAuthIDFn(ctx, authID)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByAuthIDWithCount(ctx context.Context, authID string) (*model.UserWithCount, error) {
	if m.findByAuthIDWithCountFn != nil {
		return m.findByAuthIDWithCountFn(ctx, authID)
	}
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) Update(ctx context.Context, id int64, update *model.UserUpdate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, update)
	}
	return nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id int64) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockSessionRepo struct {
	deleteByAuthIDFn func(ctx context.Context, authID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByAuthID(ctx context.Context, authID string) error {
	if m.deleteByAuthIDFn != nil {
		return m.deleteByAuthIDFn(ctx, authID)
	}
	return nil
}

// mockOrgRepo は使用するメソッドのみ実装する。それ以外の呼び出しはパニックになる。
type mockOrgRepo struct {
	repository.OrganizationRepository

	findOwnedByAuthIDFn      func(ctx context.Context, authID string, id int64) (*model.Organization, error)
	findFirstOwnedByAuthIDFn func(ctx context.Context, authID string) (*model.Organization, error)
	listSummariesByAuthIDFn  func(ctx context.Context, authID string) ([]model.OrganizationSummary, error)
	listOwnedFn              func(ctx context.Context, userID int64) ([]model.OwnedOrganization, error)
	deleteByIDsFn            func(ctx context.Context, ids []int64) ([]string, error)
}

func (m *mockOrgRepo) FindOwnedByAuthID(ctx context.Context, authID string, id int64) (*model.Organization, error) {
	if m.findOwnedByAuthIDFn != nil {
		return m.findOwnedByAuthIDFn(ctx, authID, id)
	}
	return nil, nil
}
func (m *mockOrgRepo) FindFirstOwnedByAuthID(ctx context.Context, authID string) (*model.Organization, error) {
	if m.findFirstOwnedByAuthIDFn != nil {
		return m.findFirstOwnedByAuthIDFn(ctx, authID)
	}
	return nil, nil
}
func (m *mockOrgRepo) ListSummariesByAuthID(ctx context.Context, authID string) ([]model.OrganizationSummary, error) {
	if m.listSummariesByAuthIDFn != nil {
		return m.listSummariesByAuthIDFn(ctx, authID)
	}
	return nil, nil
}
func (m *mockOrgRepo) ListOwnedWithOwnerCount(ctx context.Context, userID int64) ([]model.OwnedOrganization, error) {
	if m.listOwnedFn != nil {
		return m.listOwnedFn(ctx, userID)
	}
	return nil, nil
}
func (m *mockOrgRepo) DeleteByIDs(ctx context.Context, ids []int64) ([]string, error) {
	if m.deleteByIDsFn != nil {
		return m.deleteByIDsFn(ctx, ids)
	}
	return nil, nil
}

type mockStores struct {
	users    *mockUserRepo
	sessions *mockSessionRepo
	orgs     *mockOrgRepo
}

func (s *mockStores) Users() repository.UserRepository                 { return s.users }
func (s *mockStores) Sessions() repository.SessionRepository           { return s.sessions }
func (s *mockStores) Organizations() repository.OrganizationRepository { return s.orgs }
func (s *mockStores) Addresses() repository.AddressRepository          { return nil }

type mockTxRunner struct {
	stores    *mockStores
	calls     int
	committed bool
}

func (m *mockTxRunner) WithTx(ctx context.Context, fn func(stores repository.StoreProvider) error) error {
	m.calls++
	if err := fn(m.stores); err != nil {
		return err
	}
	m.committed = true
	return nil
}

type mockDirectory struct {
	getUserFn    func(ctx context.Context, authID string) (*identity.Profile, error)
	updateUserFn func(ctx context.Context, authID string, patch identity.UserPatch) error
	deleteUserFn func(ctx context.Context, authID string) error
}

func (m *mockDirectory) GetUser(ctx context.Context, authID string) (*identity.Profile, error) {
	return m.getUserFn(ctx, authID)
}
func (m *mockDirectory) UpdateUser(ctx context.Context, authID string, patch identity.UserPatch) error {
	return m.updateUserFn(ctx, authID, patch)
}
func (m *mockDirectory) DeleteUser(ctx context.Context, authID string) error {
	return m.deleteUserFn(ctx, authID)
}

type mockLogoRemover struct {
	removed []string
}

func (m *mockLogoRemover) RemoveLogos(ctx context.Context, logoURLs []string) {
	m.removed = append(m.removed, logoURLs...)
}
