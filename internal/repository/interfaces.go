// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/geostats/probono/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByAuthID はIdPのサブジェクトでユーザーを取得する。見つからない場合はnilを返す。
	FindByAuthID(ctx context.Context, authID string) (*model.User, error)

	// FindByAuthIDWithCount はユーザーを所有組織数付きで取得する。見つからない場合はnilを返す。
	FindByAuthIDWithCount(ctx context.Context, authID string) (*model.UserWithCount, error)

	// Create はユーザーを作成し、採番されたIDとタイムスタンプをuserに設定する。
	// auth_idが重複する場合はErrAlreadyExistsを返す。
	Create(ctx context.Context, user *model.User) error

	// Update は指定されたフィールドのみ更新する。Passwordは無視する。
	Update(ctx context.Context, id int64, update *model.UserUpdate) error

	// DeleteByID は指定IDのユーザーを削除する。
	// organization_ownersの行はCASCADE削除される。
	DeleteByID(ctx context.Context, id int64) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByAuthID は指定サブジェクトの全セッションを削除する。
	DeleteByAuthID(ctx context.Context, authID string) error
}

// OrganizationRepository は組織と関連テーブルの永続化インターフェース。
type OrganizationRepository interface {
	// Create は組織の行を作成する。関連（住所、年齢層など）は作成しない。
	Create(ctx context.Context, init *model.OrganizationInit) (*model.Organization, error)

	// Update は指定されたスカラー項目のみ更新する。関連は更新しない。
	// 組織が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, id int64, update *model.OrganizationUpdate) error

	// FindByID は組織を住所付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Organization, error)

	// FindOwnedByAuthID はサブジェクトが所有する指定IDの組織を取得する。
	// 存在しないか所有していない場合はnilを返す。
	FindOwnedByAuthID(ctx context.Context, authID string, id int64) (*model.Organization, error)

	// FindFirstOwnedByAuthID はサブジェクトが所有する最初の組織（ID昇順）を取得する。
	// 所有組織がない場合はnilを返す。
	FindFirstOwnedByAuthID(ctx context.Context, authID string) (*model.Organization, error)

	// ListSummariesByAuthID はサブジェクトが所有する組織の一覧を返す。
	ListSummariesByAuthID(ctx context.Context, authID string) ([]model.OrganizationSummary, error)

	// GetLogoURL は現在のロゴURLを返す。組織が存在しない場合はErrNotFoundを返す。
	GetLogoURL(ctx context.Context, id int64) (*string, error)

	// SetLogoURL はロゴURLを更新する。
	SetLogoURL(ctx context.Context, id int64, url string) error

	// AddOwner は所有者を追加する。
	AddOwner(ctx context.Context, id, userID int64) error

	// ListAgeGroups, ListActivities, ListBeneficiaryIDs, ListSectorIDs は関連を取得する。
	// 活動は優先度順。
	ListAgeGroups(ctx context.Context, id int64) ([]model.AgeGroupSelection, error)
	ListActivities(ctx context.Context, id int64) ([]model.OrganizationActivity, error)
	ListBeneficiaryIDs(ctx context.Context, id int64) ([]int64, error)
	ListSectorIDs(ctx context.Context, id int64) ([]int64, error)

	// DeleteAgeGroups は年齢層の関連を全て削除する。
	DeleteAgeGroups(ctx context.Context, id int64) error
	// InsertAgeGroups は年齢層の関連を追加する。
	InsertAgeGroups(ctx context.Context, id int64, groups []model.AgeGroupSelection) error
	// DeleteActivities は活動の関連を全て削除する。
	DeleteActivities(ctx context.Context, id int64) error
	// InsertActivities は優先度付きの活動を追加する。
	InsertActivities(ctx context.Context, id int64, activities []model.OrganizationActivity) error
	// ReplaceBeneficiaries は受益組織の関連を指定の集合で置き換える。
	ReplaceBeneficiaries(ctx context.Context, id int64, beneficiaryIDs []int64) error
	// ReplaceSectors はセクターの関連を指定の集合で置き換える。
	ReplaceSectors(ctx context.Context, id int64, sectorIDs []int64) error

	// ListOwnedWithOwnerCount はユーザーが所有する組織とそれぞれの所有者数を返す。
	ListOwnedWithOwnerCount(ctx context.Context, userID int64) ([]model.OwnedOrganization, error)

	// DeleteByIDs は組織と住所を削除し、削除した組織のロゴURLを返す。
	DeleteByIDs(ctx context.Context, ids []int64) ([]string, error)

	// ListApproved は承認済み組織をフィルタ条件で絞り込んで返す。
	ListApproved(ctx context.Context, filter model.OrganizationFilter) ([]model.OrganizationCard, error)

	// SetApproved は承認状態を更新する。組織が存在しない場合はErrNotFoundを返す。
	SetApproved(ctx context.Context, id int64, approved bool) error
}

// AddressRepository は組織の住所の永続化インターフェース。
type AddressRepository interface {
	// UpsertForOrganization は組織の住所を作成または更新し、住所IDを返す。
	// 住所が未設定の場合は作成して組織に紐付ける。
	UpsertForOrganization(ctx context.Context, organizationID int64, address *model.AddressInit) (int64, error)

	// SetLocationForOrganization は組織に紐付く住所の座標を更新する。
	SetLocationForOrganization(ctx context.Context, organizationID int64, location model.Location) error
}

// CatalogRepository は参照データの読み取りインターフェース。
type CatalogRepository interface {
	// Load はフォームの選択肢に使う参照データを全て取得する。
	Load(ctx context.Context) (*model.Catalog, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
