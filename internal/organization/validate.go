package organization

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/geostats/probono/internal/model"
	"github.com/geostats/probono/internal/security"
)

const (
	maxNameLength = 200
	minYear       = 1800
)

// normalizeInit は作成入力をサニタイズし、検証する。
func (s *Service) normalizeInit(init *model.OrganizationInit) error {
	init.Name = s.sanitizer.Sanitize(init.Name)
	if err := validateName(init.Name); err != nil {
		return err
	}
	if err := s.normalizeFields(&init.OrganizationFields); err != nil {
		return err
	}
	if init.Address != nil {
		if err := s.normalizeAddress(init.Address); err != nil {
			return err
		}
	}

	var err error
	if init.AgeGroups, err = normalizeAgeGroups(init.AgeGroups); err != nil {
		return err
	}
	init.Activities = uniqueActivities(init.Activities)
	init.Beneficiaries = uniqueIDs(init.Beneficiaries)
	init.Sectors = uniqueIDs(init.Sectors)
	return nil
}

// normalizeUpdate は更新入力をサニタイズし、検証する。
// スライスのnilと空の区別は保持する。
func (s *Service) normalizeUpdate(organizationID int64, upd *model.OrganizationUpdate) error {
	if upd.Name != nil {
		upd.Name = security.SanitizePtr(s.sanitizer, upd.Name)
		if err := validateName(*upd.Name); err != nil {
			return err
		}
	}
	if err := s.normalizeFields(&upd.OrganizationFields); err != nil {
		return err
	}
	if upd.Address != nil {
		if err := s.normalizeAddress(upd.Address); err != nil {
			return err
		}
	}

	if upd.AgeGroups != nil {
		groups, err := normalizeAgeGroups(upd.AgeGroups)
		if err != nil {
			return err
		}
		upd.AgeGroups = groups
	}
	if upd.Activities != nil {
		upd.Activities = uniqueActivities(upd.Activities)
	}
	if upd.Beneficiaries != nil {
		for _, id := range upd.Beneficiaries {
			if id == organizationID {
				return model.NewValidationError("beneficiaries", "una organización no puede ser su propia beneficiaria")
			}
		}
		upd.Beneficiaries = uniqueIDs(upd.Beneficiaries)
	}
	if upd.Sectors != nil {
		upd.Sectors = uniqueIDs(upd.Sectors)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return model.NewValidationError("name", "el nombre es obligatorio")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return model.NewValidationError("name", "el nombre es demasiado largo")
	}
	return nil
}

// normalizeFields は作成・更新で共通のスカラー項目を処理する。
func (s *Service) normalizeFields(f *model.OrganizationFields) error {
	f.Email = security.SanitizePtr(s.sanitizer, f.Email)
	f.Phone = security.SanitizePtr(s.sanitizer, f.Phone)
	f.LegalName = security.SanitizePtr(s.sanitizer, f.LegalName)
	f.RFC = security.SanitizePtr(s.sanitizer, f.RFC)
	if f.RFC != nil {
		upper := strings.ToUpper(*f.RFC)
		f.RFC = &upper
	}

	if f.Email != nil && *f.Email != "" {
		if _, err := mail.ParseAddress(*f.Email); err != nil {
			return model.NewValidationError("email", "correo electrónico inválido")
		}
	}

	links := []struct {
		field string
		value *string
	}{
		{"webpage", f.Webpage},
		{"facebook", f.Facebook},
		{"instagram", f.Instagram},
		{"twitter", f.Twitter},
		{"tiktok", f.TikTok},
		{"youtube", f.YouTube},
		{"linkedin", f.LinkedIn},
	}
	for _, link := range links {
		if link.value == nil || *link.value == "" {
			continue
		}
		if err := security.ValidatePublicURL(*link.value); err != nil {
			return model.NewValidationError(link.field, "debe ser una URL pública http(s)")
		}
	}

	currentYear := s.now().Year()
	if f.FoundingYear != nil && (*f.FoundingYear < minYear || *f.FoundingYear > currentYear) {
		return model.NewValidationError("foundingYear", "año fuera de rango")
	}
	if f.IncorporationYear != nil && (*f.IncorporationYear < minYear || *f.IncorporationYear > currentYear) {
		return model.NewValidationError("incorporationYear", "año fuera de rango")
	}

	if f.CluniStatus != nil && !f.CluniStatus.Valid() {
		return model.NewValidationError("cluniStatus", "valor no reconocido")
	}
	if f.DonationAuthStatus != nil && !f.DonationAuthStatus.Valid() {
		return model.NewValidationError("donationAuthStatus", "valor no reconocido")
	}
	return nil
}

func (s *Service) normalizeAddress(a *model.AddressInit) error {
	a.Street = s.sanitizer.Sanitize(a.Street)
	a.Number = s.sanitizer.Sanitize(a.Number)
	a.PostalCode = s.sanitizer.Sanitize(a.PostalCode)
	a.Municipality = s.sanitizer.Sanitize(a.Municipality)
	a.State = s.sanitizer.Sanitize(a.State)
	if !a.Location.Valid() {
		return model.NewValidationError("address.location", "coordenadas fuera de rango")
	}
	return nil
}

// normalizeAgeGroups は性別を検証し、重複する組を取り除く。入力順は保持する。
func normalizeAgeGroups(groups []model.AgeGroupSelection) ([]model.AgeGroupSelection, error) {
	seen := make(map[model.AgeGroupSelection]bool, len(groups))
	result := make([]model.AgeGroupSelection, 0, len(groups))
	for _, g := range groups {
		if !g.Gender.Valid() {
			return nil, model.NewValidationError("ageGroups.gender", "valor no reconocido")
		}
		if seen[g] {
			continue
		}
		seen[g] = true
		result = append(result, g)
	}
	return result, nil
}

// uniqueActivities は重複する活動を取り除く。最初の出現位置が優先度になる。
func uniqueActivities(activities []model.ActivitySelection) []model.ActivitySelection {
	if activities == nil {
		return nil
	}
	seen := make(map[int64]bool, len(activities))
	result := make([]model.ActivitySelection, 0, len(activities))
	for _, a := range activities {
		if seen[a.ActivityID] {
			continue
		}
		seen[a.ActivityID] = true
		result = append(result, a)
	}
	return result
}

func uniqueIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}

// prioritized は活動の並び順を0始まりの優先度に変換する。
func prioritized(activities []model.ActivitySelection) []model.OrganizationActivity {
	result := make([]model.OrganizationActivity, len(activities))
	for i, a := range activities {
		result[i] = model.OrganizationActivity{ActivityID: a.ActivityID, Priority: i}
	}
	return result
}
