package organization

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/geostats/probono/internal/model"
	"github.com/geostats/probono/internal/repository"
)

// callLog はモック間の呼び出し順序を記録する。
type callLog struct {
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) index(call string) int {
	for i, c := range l.calls {
		if c == call {
			return i
		}
	}
	return -1
}

func (l *callLog) hasPrefix(prefix string) bool {
	for _, c := range l.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// mockOrgRepo はテスト用のOrganizationRepositoryモック。
type mockOrgRepo struct {
	log    *callLog
	nextID int64

	orgs          map[int64]*model.Organization
	owners        map[int64][]int64
	ageGroups     map[int64][]model.AgeGroupSelection
	activities    map[int64][]model.OrganizationActivity
	beneficiaries map[int64][]int64
	sectors       map[int64][]int64

	owned          []model.OwnedOrganization
	approved       []model.OrganizationCard
	lastFilter     model.OrganizationFilter
	deletedIDs     []int64
	deletedLogos   []string
	ownedByAuthID  map[string][]int64
	setApprovedErr error
}

func newMockOrgRepo(log *callLog) *mockOrgRepo {
	return &mockOrgRepo{
		log:           log,
		nextID:        1,
		orgs:          make(map[int64]*model.Organization),
		owners:        make(map[int64][]int64),
		ageGroups:     make(map[int64][]model.AgeGroupSelection),
		activities:    make(map[int64][]model.OrganizationActivity),
		beneficiaries: make(map[int64][]int64),
		sectors:       make(map[int64][]int64),
		ownedByAuthID: make(map[string][]int64),
	}
}

func (m *mockOrgRepo) Create(_ context.Context, init *model.OrganizationInit) (*model.Organization, error) {
	id := m.nextID
	m.nextID++
	org := &model.Organization{ID: id, Name: init.Name, IsIncorporated: init.IsIncorporated, CategoryID: init.CategoryID}
	m.orgs[id] = org
	m.log.add("org.create:%d", id)
	copied := *org
	return &copied, nil
}

func (m *mockOrgRepo) Update(_ context.Context, id int64, update *model.OrganizationUpdate) error {
	org, ok := m.orgs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if update.Name != nil {
		org.Name = *update.Name
	}
	m.log.add("org.update:%d", id)
	return nil
}

func (m *mockOrgRepo) FindByID(_ context.Context, id int64) (*model.Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, nil
	}
	copied := *org
	return &copied, nil
}

func (m *mockOrgRepo) FindOwnedByAuthID(_ context.Context, authID string, id int64) (*model.Organization, error) {
	for _, owned := range m.ownedByAuthID[authID] {
		if owned == id {
			return m.FindByID(context.Background(), id)
		}
	}
	return nil, nil
}

func (m *mockOrgRepo) FindFirstOwnedByAuthID(_ context.Context, authID string) (*model.Organization, error) {
	ids := m.ownedByAuthID[authID]
	if len(ids) == 0 {
		return nil, nil
	}
	return m.FindByID(context.Background(), ids[0])
}

func (m *mockOrgRepo) ListSummariesByAuthID(_ context.Context, authID string) ([]model.OrganizationSummary, error) {
	var result []model.OrganizationSummary
	for _, id := range m.ownedByAuthID[authID] {
		if org, ok := m.orgs[id]; ok {
			result = append(result, model.OrganizationSummary{ID: org.ID, Name: org.Name, LogoURL: org.LogoURL})
		}
	}
	return result, nil
}

func (m *mockOrgRepo) GetLogoURL(_ context.Context, id int64) (*string, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.log.add("org.getLogo:%d", id)
	return org.LogoURL, nil
}

func (m *mockOrgRepo) SetLogoURL(_ context.Context, id int64, url string) error {
	org, ok := m.orgs[id]
	if !ok {
		return repository.ErrNotFound
	}
	org.LogoURL = &url
	m.log.add("org.setLogo:%s", url)
	return nil
}

func (m *mockOrgRepo) AddOwner(_ context.Context, id, userID int64) error {
	m.owners[id] = append(m.owners[id], userID)
	m.log.add("org.addOwner:%d:%d", id, userID)
	return nil
}

func (m *mockOrgRepo) ListAgeGroups(_ context.Context, id int64) ([]model.AgeGroupSelection, error) {
	return m.ageGroups[id], nil
}

func (m *mockOrgRepo) ListActivities(_ context.Context, id int64) ([]model.OrganizationActivity, error) {
	return m.activities[id], nil
}

func (m *mockOrgRepo) ListBeneficiaryIDs(_ context.Context, id int64) ([]int64, error) {
	return m.beneficiaries[id], nil
}

func (m *mockOrgRepo) ListSectorIDs(_ context.Context, id int64) ([]int64, error) {
	return m.sectors[id], nil
}

func (m *mockOrgRepo) DeleteAgeGroups(_ context.Context, id int64) error {
	delete(m.ageGroups, id)
	m.log.add("org.deleteAgeGroups:%d", id)
	return nil
}

func (m *mockOrgRepo) InsertAgeGroups(_ context.Context, id int64, groups []model.AgeGroupSelection) error {
	m.ageGroups[id] = append(m.ageGroups[id], groups...)
	m.log.add("org.insertAgeGroups:%d", id)
	return nil
}

func (m *mockOrgRepo) DeleteActivities(_ context.Context, id int64) error {
	delete(m.activities, id)
	m.log.add("org.deleteActivities:%d", id)
	return nil
}

func (m *mockOrgRepo) InsertActivities(_ context.Context, id int64, activities []model.OrganizationActivity) error {
	m.activities[id] = append(m.activities[id], activities...)
	m.log.add("org.insertActivities:%d", id)
	return nil
}

func (m *mockOrgRepo) ReplaceBeneficiaries(_ context.Context, id int64, beneficiaryIDs []int64) error {
	m.beneficiaries[id] = beneficiaryIDs
	m.log.add("org.replaceBeneficiaries:%d", id)
	return nil
}

func (m *mockOrgRepo) ReplaceSectors(_ context.Context, id int64, sectorIDs []int64) error {
	m.sectors[id] = sectorIDs
	m.log.add("org.replaceSectors:%d", id)
	return nil
}

func (m *mockOrgRepo) ListOwnedWithOwnerCount(_ context.Context, _ int64) ([]model.OwnedOrganization, error) {
	return m.owned, nil
}

func (m *mockOrgRepo) DeleteByIDs(_ context.Context, ids []int64) ([]string, error) {
	m.deletedIDs = append(m.deletedIDs, ids...)
	for _, id := range ids {
		delete(m.orgs, id)
	}
	m.log.add("org.deleteByIDs")
	return m.deletedLogos, nil
}

func (m *mockOrgRepo) ListApproved(_ context.Context, filter model.OrganizationFilter) ([]model.OrganizationCard, error) {
	m.lastFilter = filter
	return m.approved, nil
}

func (m *mockOrgRepo) SetApproved(_ context.Context, id int64, approved bool) error {
	if m.setApprovedErr != nil {
		return m.setApprovedErr
	}
	org, ok := m.orgs[id]
	if !ok {
		return repository.ErrNotFound
	}
	org.Approved = approved
	return nil
}

// mockAddressRepo はテスト用のAddressRepositoryモック。
type mockAddressRepo struct {
	log       *callLog
	upserts   map[int64]model.AddressInit
	locations map[int64]model.Location
}

func newMockAddressRepo(log *callLog) *mockAddressRepo {
	return &mockAddressRepo{
		log:       log,
		upserts:   make(map[int64]model.AddressInit),
		locations: make(map[int64]model.Location),
	}
}

func (m *mockAddressRepo) UpsertForOrganization(_ context.Context, organizationID int64, address *model.AddressInit) (int64, error) {
	m.upserts[organizationID] = *address
	m.log.add("address.upsert:%d", organizationID)
	return organizationID + 100, nil
}

func (m *mockAddressRepo) SetLocationForOrganization(_ context.Context, organizationID int64, location model.Location) error {
	m.locations[organizationID] = location
	m.log.add("address.location:%d", organizationID)
	return nil
}

// mockStores はテスト用のStoreProviderモック。
type mockStores struct {
	orgs      *mockOrgRepo
	addresses *mockAddressRepo
}

func (s *mockStores) Users() repository.UserRepository                 { return nil }
func (s *mockStores) Sessions() repository.SessionRepository           { return nil }
func (s *mockStores) Organizations() repository.OrganizationRepository { return s.orgs }
func (s *mockStores) Addresses() repository.AddressRepository          { return s.addresses }

// mockTxRunner はfnをそのまま実行するTxRunnerモック。
type mockTxRunner struct {
	log    *callLog
	stores repository.StoreProvider
	calls  int
}

func (m *mockTxRunner) WithTx(_ context.Context, fn func(stores repository.StoreProvider) error) error {
	m.calls++
	m.log.add("tx.begin")
	if err := fn(m.stores); err != nil {
		m.log.add("tx.rollback")
		return err
	}
	m.log.add("tx.commit")
	return nil
}

// mockBlobStore はテスト用のblob.Storeモック。
type mockBlobStore struct {
	log         *callLog
	putErr      error
	deleteErr   error
	putKeys     []string
	putBodies   [][]byte
	contentType string
	deleted     []string
}

func (m *mockBlobStore) Put(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	m.log.add("blob.put:%s", key)
	if m.putErr != nil {
		return "", m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.putKeys = append(m.putKeys, key)
	m.putBodies = append(m.putBodies, data)
	m.contentType = contentType
	return "https://cdn.example.org/" + key, nil
}

func (m *mockBlobStore) Delete(_ context.Context, url string) error {
	m.log.add("blob.delete:%s", url)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, url)
	return nil
}

// mockCatalogRepo はテスト用のCatalogRepositoryモック。
type mockCatalogRepo struct {
	catalog *model.Catalog
	err     error
}

func (m *mockCatalogRepo) Load(_ context.Context) (*model.Catalog, error) {
	return m.catalog, m.err
}
