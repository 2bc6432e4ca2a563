package handler

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/geostats/probono/internal/model"
)

const (
	// maxJSONBodyBytes はロゴを含まないリクエストボディの上限。
	maxJSONBodyBytes = 1 << 20
	// multipartMemory はParseMultipartFormがメモリに保持する上限。超過分は一時ファイルになる。
	multipartMemory = 1 << 20
)

type addressRequest struct {
	Street       string          `json:"street"`
	Number       string          `json:"number"`
	PostalCode   string          `json:"postalCode"`
	Municipality string          `json:"municipality"`
	State        string          `json:"state"`
	Location     *model.Location `json:"location"`
}

type ageGroupRequest struct {
	AgeGroupID int64        `json:"ageGroupId"`
	Gender     model.Gender `json:"gender"`
}

// organizationRequest は組織の作成・更新フォームの内容。
// 省略された項目はnilになり、更新時は「変更なし」を表す。
type organizationRequest struct {
	Name           *string `json:"name"`
	IsIncorporated *bool   `json:"isIncorporated"`
	FoundingYear   *int    `json:"foundingYear"`

	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Webpage   *string `json:"webpage"`
	Facebook  *string `json:"facebook"`
	Instagram *string `json:"instagram"`
	Twitter   *string `json:"twitter"`
	TikTok    *string `json:"tiktok"`
	YouTube   *string `json:"youtube"`
	LinkedIn  *string `json:"linkedin"`

	LegalName          *string                   `json:"legalName"`
	RFC                *string                   `json:"rfc"`
	IncorporationYear  *int                      `json:"incorporationYear"`
	CluniStatus        *model.CluniStatus        `json:"cluniStatus"`
	DonationAuthStatus *model.DonationAuthStatus `json:"donationAuthStatus"`

	CategoryID               *int64 `json:"categoryId"`
	EmployeeCountCategoryID  *int64 `json:"employeeCountCategoryId"`
	VolunteerCountCategoryID *int64 `json:"volunteerCountCategoryId"`
	IncomeCategoryID         *int64 `json:"incomeCategoryId"`
	CorporationTypeID        *int64 `json:"corporationTypeId"`

	Address       *addressRequest   `json:"address"`
	AgeGroups     []ageGroupRequest `json:"ageGroups"`
	Activities    []int64           `json:"activities"`
	Beneficiaries []int64           `json:"beneficiaries"`
	Sectors       []int64           `json:"sectors"`
}

// organizationForm は解析済みのフォームとロゴ。
// closeはアップロードされた一時ファイルを解放する。
type organizationForm struct {
	req   organizationRequest
	logo  *model.LogoUpload
	close func()
}

// parseOrganizationForm はJSONボディ、またはdataフィールド（JSON）とlogoファイルを持つ
// multipart/form-dataを解析する。
func parseOrganizationForm(w http.ResponseWriter, r *http.Request, logoMaxSize int64) (*organizationForm, error) {
	form := &organizationForm{close: func() {}}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil && r.Header.Get("Content-Type") != "" {
		return nil, model.NewValidationError("Content-Type", "no reconocido")
	}

	switch {
	case mediaType == "" || mediaType == "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		if err := decodeJSON(r, &form.req); err != nil {
			return nil, err
		}
		if err := form.req.validate(); err != nil {
			return nil, err
		}
		return form, nil

	case mediaType == "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, logoMaxSize+maxJSONBodyBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, model.NewLogoTooLargeError(logoMaxSize)
			}
			return nil, model.NewValidationError("form", "multipart inválido")
		}
		form.close = func() { r.MultipartForm.RemoveAll() }

		data := r.FormValue("data")
		if data == "" {
			form.close()
			return nil, model.NewValidationError("data", "es obligatorio")
		}
		dec := json.NewDecoder(strings.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&form.req); err != nil {
			form.close()
			return nil, model.NewValidationError("data", "JSON inválido")
		}
		if err := form.req.validate(); err != nil {
			form.close()
			return nil, err
		}

		file, header, err := r.FormFile("logo")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			form.close()
			return nil, model.NewValidationError("logo", "no se pudo leer el archivo")
		default:
			form.logo = &model.LogoUpload{
				Filename: header.Filename,
				Size:     header.Size,
				Content:  file,
			}
			removeAll := form.close
			form.close = func() {
				file.Close()
				removeAll()
			}
		}
		return form, nil

	default:
		return nil, model.NewValidationError("Content-Type", "se espera JSON o multipart/form-data")
	}
}

// validate は型だけでは表せない必須項目を確認する。
// 座標のない住所を(0,0)として保存しないよう、住所にはlocationを必須とする。
func (req *organizationRequest) validate() error {
	if req.Address != nil && req.Address.Location == nil {
		return model.NewValidationError("address.location", "es obligatorio")
	}
	return nil
}

func (req *organizationRequest) fields() model.OrganizationFields {
	return model.OrganizationFields{
		FoundingYear:             req.FoundingYear,
		Email:                    req.Email,
		Phone:                    req.Phone,
		Webpage:                  req.Webpage,
		Facebook:                 req.Facebook,
		Instagram:                req.Instagram,
		Twitter:                  req.Twitter,
		TikTok:                   req.TikTok,
		YouTube:                  req.YouTube,
		LinkedIn:                 req.LinkedIn,
		LegalName:                req.LegalName,
		RFC:                      req.RFC,
		IncorporationYear:        req.IncorporationYear,
		CluniStatus:              req.CluniStatus,
		DonationAuthStatus:       req.DonationAuthStatus,
		CategoryID:               req.CategoryID,
		EmployeeCountCategoryID:  req.EmployeeCountCategoryID,
		VolunteerCountCategoryID: req.VolunteerCountCategoryID,
		IncomeCategoryID:         req.IncomeCategoryID,
		CorporationTypeID:        req.CorporationTypeID,
	}
}

func (req *organizationRequest) address() *model.AddressInit {
	if req.Address == nil {
		return nil
	}
	return &model.AddressInit{
		Street:       req.Address.Street,
		Number:       req.Address.Number,
		PostalCode:   req.Address.PostalCode,
		Municipality: req.Address.Municipality,
		State:        req.Address.State,
		Location:     *req.Address.Location,
	}
}

// ageGroups と activities はnilと空スライスを区別して変換する。
func (req *organizationRequest) ageGroups() []model.AgeGroupSelection {
	if req.AgeGroups == nil {
		return nil
	}
	groups := make([]model.AgeGroupSelection, 0, len(req.AgeGroups))
	for _, g := range req.AgeGroups {
		groups = append(groups, model.AgeGroupSelection{AgeGroupID: g.AgeGroupID, Gender: g.Gender})
	}
	return groups
}

func (req *organizationRequest) activities() []model.ActivitySelection {
	if req.Activities == nil {
		return nil
	}
	activities := make([]model.ActivitySelection, 0, len(req.Activities))
	for _, id := range req.Activities {
		activities = append(activities, model.ActivitySelection{ActivityID: id})
	}
	return activities
}

func (f *organizationForm) toInit() *model.OrganizationInit {
	init := &model.OrganizationInit{
		OrganizationFields: f.req.fields(),
		Address:            f.req.address(),
		AgeGroups:          f.req.ageGroups(),
		Activities:         f.req.activities(),
		Beneficiaries:      f.req.Beneficiaries,
		Sectors:            f.req.Sectors,
		Logo:               f.logo,
	}
	if f.req.Name != nil {
		init.Name = *f.req.Name
	}
	if f.req.IsIncorporated != nil {
		init.IsIncorporated = *f.req.IsIncorporated
	}
	return init
}

func (f *organizationForm) toUpdate() *model.OrganizationUpdate {
	return &model.OrganizationUpdate{
		Name:               f.req.Name,
		IsIncorporated:     f.req.IsIncorporated,
		OrganizationFields: f.req.fields(),
		Address:            f.req.address(),
		AgeGroups:          f.req.ageGroups(),
		Activities:         f.req.activities(),
		Beneficiaries:      f.req.Beneficiaries,
		Sectors:            f.req.Sectors,
		Logo:               f.logo,
	}
}

type addressResponse struct {
	Street       string          `json:"street"`
	Number       string          `json:"number"`
	PostalCode   string          `json:"postalCode"`
	Municipality string          `json:"municipality"`
	State        string          `json:"state"`
	Location     *model.Location `json:"location"`
}

type ageGroupResponse struct {
	AgeGroupID int64        `json:"ageGroupId"`
	Gender     model.Gender `json:"gender"`
}

type activityResponse struct {
	ActivityID int64 `json:"activityId"`
	Priority   int   `json:"priority"`
}

// organizationResponse は組織プロフィールのAPIレスポンス。
type organizationResponse struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	LogoURL        *string `json:"logoUrl"`
	IsIncorporated bool    `json:"isIncorporated"`
	Approved       bool    `json:"approved"`
	FoundingYear   *int    `json:"foundingYear"`

	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Webpage   *string `json:"webpage"`
	Facebook  *string `json:"facebook"`
	Instagram *string `json:"instagram"`
	Twitter   *string `json:"twitter"`
	TikTok    *string `json:"tiktok"`
	YouTube   *string `json:"youtube"`
	LinkedIn  *string `json:"linkedin"`

	LegalName          *string                   `json:"legalName"`
	RFC                *string                   `json:"rfc"`
	IncorporationYear  *int                      `json:"incorporationYear"`
	CluniStatus        *model.CluniStatus        `json:"cluniStatus"`
	DonationAuthStatus *model.DonationAuthStatus `json:"donationAuthStatus"`

	CategoryID               *int64 `json:"categoryId"`
	EmployeeCountCategoryID  *int64 `json:"employeeCountCategoryId"`
	VolunteerCountCategoryID *int64 `json:"volunteerCountCategoryId"`
	IncomeCategoryID         *int64 `json:"incomeCategoryId"`
	CorporationTypeID        *int64 `json:"corporationTypeId"`

	Address       *addressResponse   `json:"address"`
	AgeGroups     []ageGroupResponse `json:"ageGroups"`
	Activities    []activityResponse `json:"activities"`
	Beneficiaries []int64            `json:"beneficiaries"`
	Sectors       []int64            `json:"sectors"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toOrganizationResponse(o *model.Organization) *organizationResponse {
	resp := &organizationResponse{
		ID:                       o.ID,
		Name:                     o.Name,
		LogoURL:                  o.LogoURL,
		IsIncorporated:           o.IsIncorporated,
		Approved:                 o.Approved,
		FoundingYear:             o.FoundingYear,
		Email:                    o.Email,
		Phone:                    o.Phone,
		Webpage:                  o.Webpage,
		Facebook:                 o.Facebook,
		Instagram:                o.Instagram,
		Twitter:                  o.Twitter,
		TikTok:                   o.TikTok,
		YouTube:                  o.YouTube,
		LinkedIn:                 o.LinkedIn,
		LegalName:                o.LegalName,
		RFC:                      o.RFC,
		IncorporationYear:        o.IncorporationYear,
		CluniStatus:              o.CluniStatus,
		DonationAuthStatus:       o.DonationAuthStatus,
		CategoryID:               o.CategoryID,
		EmployeeCountCategoryID:  o.EmployeeCountCategoryID,
		VolunteerCountCategoryID: o.VolunteerCountCategoryID,
		IncomeCategoryID:         o.IncomeCategoryID,
		CorporationTypeID:        o.CorporationTypeID,
		AgeGroups:                make([]ageGroupResponse, 0, len(o.AgeGroups)),
		Activities:               make([]activityResponse, 0, len(o.Activities)),
		Beneficiaries:            nonNilIDs(o.BeneficiaryIDs),
		Sectors:                  nonNilIDs(o.SectorIDs),
		CreatedAt:                o.CreatedAt,
		UpdatedAt:                o.UpdatedAt,
	}
	if a := o.Address; a != nil {
		resp.Address = &addressResponse{
			Street:       a.Street,
			Number:       a.Number,
			PostalCode:   a.PostalCode,
			Municipality: a.Municipality,
			State:        a.State,
			Location:     a.Location,
		}
	}
	for _, g := range o.AgeGroups {
		resp.AgeGroups = append(resp.AgeGroups, ageGroupResponse{AgeGroupID: g.AgeGroupID, Gender: g.Gender})
	}
	for _, a := range o.Activities {
		resp.Activities = append(resp.Activities, activityResponse{ActivityID: a.ActivityID, Priority: a.Priority})
	}
	return resp
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
