package user

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/geostats/probono/internal/model"
	"github.com/geostats/probono/internal/repository"
)

// memo は1回だけ計算し、結果（エラーを含む）を保持する。
type memo[T any] struct {
	once  sync.Once
	value T
	err   error
}

func (m *memo[T]) get(fn func() (T, error)) (T, error) {
	m.once.Do(func() {
		m.value, m.err = fn()
	})
	return m.value, m.err
}

// ScopeFactory はリクエストごとのRequestScopeを生成する。
type ScopeFactory struct {
	users repository.UserRepository
	orgs  repository.OrganizationRepository
}

// NewScopeFactory はScopeFactoryを生成する。
func NewScopeFactory(users repository.UserRepository, orgs repository.OrganizationRepository) *ScopeFactory {
	return &ScopeFactory{users: users, orgs: orgs}
}

// New はリクエスト用のRequestScopeを生成する。
// authIDはセッションのサブジェクト（未ログインなら空文字列）、
// organizationCookieはorganizationIdクッキーの値（未設定なら空文字列）。
func (f *ScopeFactory) New(authID, organizationCookie string) *RequestScope {
	return &RequestScope{
		authID:             authID,
		organizationCookie: organizationCookie,
		users:              f.users,
		orgs:               f.orgs,
	}
}

// RequestScope は1リクエストの間だけ有効な読み取り結果のキャッシュ。
// 各アクセサの結果はスコープの寿命の間メモ化され、リクエストをまたいで共有されない。
type RequestScope struct {
	authID             string
	organizationCookie string
	users              repository.UserRepository
	orgs               repository.OrganizationRepository

	firstOrganization  memo[*model.Organization]
	activeOrganization memo[*model.Organization]
	user               memo[*model.UserWithCount]
	organizations      memo[[]model.OrganizationSummary]
}

// AuthID はセッションのサブジェクトを返す。
func (s *RequestScope) AuthID() string {
	return s.authID
}

// FirstSessionUserOrganization はサブジェクトが所有する最初の組織を返す。
// 未認証または所有組織がない場合はnilを返す。
func (s *RequestScope) FirstSessionUserOrganization(ctx context.Context) (*model.Organization, error) {
	if s.authID == "" {
		return nil, nil
	}
	return s.firstOrganization.get(func() (*model.Organization, error) {
		org, err := s.orgs.FindFirstOwnedByAuthID(ctx, s.authID)
		if err != nil {
			return nil, fmt.Errorf("所有組織の取得に失敗しました: %w", err)
		}
		return org, nil
	})
}

// ActiveOrganization は選択中の組織を返す。
// organizationIdクッキーがサブジェクトの所有組織を指していればその組織、
// そうでなければ最初の所有組織を返す。所有組織がない場合はORGANIZATION_NOT_FOUND。
func (s *RequestScope) ActiveOrganization(ctx context.Context) (*model.Organization, error) {
	if s.authID == "" {
		return nil, model.NewUnauthorizedError()
	}
	return s.activeOrganization.get(func() (*model.Organization, error) {
		if id, err := strconv.ParseInt(s.organizationCookie, 10, 64); err == nil {
			org, err := s.orgs.FindOwnedByAuthID(ctx, s.authID, id)
			if err != nil {
				return nil, fmt.Errorf("選択中の組織の取得に失敗しました: %w", err)
			}
			if org != nil {
				return org, nil
			}
		}

		org, err := s.FirstSessionUserOrganization(ctx)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, model.NewOrganizationNotFoundError()
		}
		return org, nil
	})
}

// UserFromSession はセッションのユーザーを所有組織数付きで返す。
// ローカルのユーザーが未作成の場合はUSER_NOT_FOUND。
func (s *RequestScope) UserFromSession(ctx context.Context) (*model.UserWithCount, error) {
	if s.authID == "" {
		return nil, model.NewUnauthorizedError()
	}
	return s.user.get(func() (*model.UserWithCount, error) {
		u, err := s.users.FindByAuthIDWithCount(ctx, s.authID)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if u == nil {
			return nil, model.NewUserNotFoundError()
		}
		return u, nil
	})
}

// CurrentUserOrganizations はサブジェクトが所有する組織の一覧を返す。
func (s *RequestScope) CurrentUserOrganizations(ctx context.Context) ([]model.OrganizationSummary, error) {
	if s.authID == "" {
		return nil, model.NewUnauthorizedError()
	}
	return s.organizations.get(func() ([]model.OrganizationSummary, error) {
		list, err := s.orgs.ListSummariesByAuthID(ctx, s.authID)
		if err != nil {
			return nil, fmt.Errorf("所有組織一覧の取得に失敗しました: %w", err)
		}
		if list == nil {
			list = []model.OrganizationSummary{}
		}
		return list, nil
	})
}
