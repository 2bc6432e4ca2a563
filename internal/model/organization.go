package model

import (
	"io"
	"time"
)

// Gender は年齢層ごとの対象性別。
type Gender string

const (
	GenderFemale Gender = "F"
	GenderMale   Gender = "M"
	GenderOther  Gender = "O"
)

// Valid は定義済みの性別値かどうかを返す。
func (g Gender) Valid() bool {
	switch g {
	case GenderFemale, GenderMale, GenderOther:
		return true
	}
	return false
}

// CluniStatus はCLUNI（市民団体登録）の登録状況。
type CluniStatus string

const (
	CluniStatusActive     CluniStatus = "active"
	CluniStatusInactive   CluniStatus = "inactive"
	CluniStatusInProgress CluniStatus = "inProgress"
	CluniStatusNo         CluniStatus = "no"
)

func (s CluniStatus) Valid() bool {
	switch s {
	case CluniStatusActive, CluniStatusInactive, CluniStatusInProgress, CluniStatusNo:
		return true
	}
	return false
}

// DonationAuthStatus は寄付金控除の認可状況。
type DonationAuthStatus string

const (
	DonationAuthStatusNotAuthorized DonationAuthStatus = "notAuthorized"
	DonationAuthStatusAuthorized    DonationAuthStatus = "authorized"
	DonationAuthStatusInProgress    DonationAuthStatus = "inProgress"
	DonationAuthStatusInRecovery    DonationAuthStatus = "inRecovery"
)

func (s DonationAuthStatus) Valid() bool {
	switch s {
	case DonationAuthStatusNotAuthorized, DonationAuthStatusAuthorized,
		DonationAuthStatusInProgress, DonationAuthStatusInRecovery:
		return true
	}
	return false
}

// Location は地理座標 [経度, 緯度]。
// addresses.location（point型）には (経度, 緯度) の順で格納する。
type Location [2]float64

func (l Location) Longitude() float64 { return l[0] }
func (l Location) Latitude() float64  { return l[1] }

// Valid は経度・緯度が有効範囲内かどうかを返す。
func (l Location) Valid() bool {
	return l[0] >= -180 && l[0] <= 180 && l[1] >= -90 && l[1] <= 90
}

// Address は組織の所在地。組織と1対1。
type Address struct {
	ID           int64
	Street       string
	Number       string
	PostalCode   string
	Municipality string
	State        string
	Location     *Location
}

// AddressInit は住所の入力値。座標は必須。
type AddressInit struct {
	Street       string
	Number       string
	PostalCode   string
	Municipality string
	State        string
	Location     Location
}

// AgeGroupSelection は組織が対象とする年齢層と性別の組。
type AgeGroupSelection struct {
	AgeGroupID int64
	Gender     Gender
}

// ActivitySelection は組織の活動の入力値。並び順が優先度になる。
type ActivitySelection struct {
	ActivityID int64
}

// OrganizationActivity は優先度付きの活動。Priorityは0始まり。
type OrganizationActivity struct {
	ActivityID int64
	Priority   int
}

// Organization は組織プロフィールを表す。
// Address以外の関連は組織サービスのGetでのみ読み込まれる。
type Organization struct {
	ID           int64
	Name         string
	LogoURL      *string
	FoundingYear *int

	Email     *string
	Phone     *string
	Webpage   *string
	Facebook  *string
	Instagram *string
	Twitter   *string
	TikTok    *string
	YouTube   *string
	LinkedIn  *string

	IsIncorporated     bool
	LegalName          *string
	RFC                *string
	IncorporationYear  *int
	CluniStatus        *CluniStatus
	DonationAuthStatus *DonationAuthStatus

	CategoryID               *int64
	EmployeeCountCategoryID  *int64
	VolunteerCountCategoryID *int64
	IncomeCategoryID         *int64
	CorporationTypeID        *int64

	Approved  bool
	CreatedAt time.Time
	UpdatedAt time.Time

	Address        *Address
	AgeGroups      []AgeGroupSelection
	Activities     []OrganizationActivity
	BeneficiaryIDs []int64
	SectorIDs      []int64
}

// OrganizationFields は作成・更新で共通のスカラー項目。
// nilは「値なし」（作成時）または「変更なし」（更新時）を表す。
type OrganizationFields struct {
	FoundingYear *int

	Email     *string
	Phone     *string
	Webpage   *string
	Facebook  *string
	Instagram *string
	Twitter   *string
	TikTok    *string
	YouTube   *string
	LinkedIn  *string

	LegalName          *string
	RFC                *string
	IncorporationYear  *int
	CluniStatus        *CluniStatus
	DonationAuthStatus *DonationAuthStatus

	CategoryID               *int64
	EmployeeCountCategoryID  *int64
	VolunteerCountCategoryID *int64
	IncomeCategoryID         *int64
	CorporationTypeID        *int64
}

// LogoUpload はアップロードされたロゴファイル。
type LogoUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// OrganizationInit は組織作成の入力値。
type OrganizationInit struct {
	Name           string
	IsIncorporated bool
	OrganizationFields

	Address       *AddressInit
	AgeGroups     []AgeGroupSelection
	Activities    []ActivitySelection
	Beneficiaries []int64
	Sectors       []int64
	Logo          *LogoUpload
}

// OrganizationUpdate は組織の部分更新。
// スライスはnilなら変更なし、空スライスなら全削除（全置換）。
type OrganizationUpdate struct {
	Name           *string
	IsIncorporated *bool
	OrganizationFields

	Address       *AddressInit
	AgeGroups     []AgeGroupSelection
	Activities    []ActivitySelection
	Beneficiaries []int64
	Sectors       []int64
	Logo          *LogoUpload
}

// OrganizationSummary はユーザーの所有組織一覧の要素。
type OrganizationSummary struct {
	ID      int64
	Name    string
	LogoURL *string
}

// OrganizationCard は承認済み組織ディレクトリの要素。
type OrganizationCard struct {
	ID       int64
	Name     string
	LogoURL  *string
	Location *Location
}

// OrganizationFilter は承認済み組織一覧の絞り込み条件。nilは条件なし。
type OrganizationFilter struct {
	SectorID   *int64
	AgeGroupID *int64
	Gender     *Gender
}

// OwnedOrganization は組織IDとその所有者数。
type OwnedOrganization struct {
	OrganizationID int64
	OwnerCount     int
}
