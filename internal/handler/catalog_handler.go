package handler

import (
	"context"
	"net/http"

	"github.com/geostats/probono/internal/model"
)

// CatalogServiceInterface は参照データの取得インターフェース。
type CatalogServiceInterface interface {
	Catalog(ctx context.Context) (*model.Catalog, error)
}

type lookupResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	ShortName *string `json:"shortName,omitempty"`
}

type rangeResponse struct {
	ID  int64 `json:"id"`
	Min int   `json:"min"`
	Max *int  `json:"max"`
}

type catalogResponse struct {
	Sectors                  []lookupResponse `json:"sectors"`
	Categories               []lookupResponse `json:"categories"`
	Activities               []lookupResponse `json:"activities"`
	CorporationTypes         []lookupResponse `json:"corporationTypes"`
	AgeGroups                []rangeResponse  `json:"ageGroups"`
	EmployeeCountCategories  []rangeResponse  `json:"employeeCountCategories"`
	VolunteerCountCategories []rangeResponse  `json:"volunteerCountCategories"`
	IncomeCategories         []rangeResponse  `json:"incomeCategories"`
}

func toLookupResponses(items []model.LookupItem) []lookupResponse {
	resp := make([]lookupResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, lookupResponse{ID: it.ID, Name: it.Name, ShortName: it.ShortName})
	}
	return resp
}

func toRangeResponses(items []model.RangeItem) []rangeResponse {
	resp := make([]rangeResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, rangeResponse{ID: it.ID, Min: it.Min, Max: it.Max})
	}
	return resp
}

// NewCatalogHandler はフォームの選択肢を返すハンドラーを生成する。
// GET /api/catalog
func NewCatalogHandler(service CatalogServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := service.Catalog(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=300")
		writeJSON(w, http.StatusOK, catalogResponse{
			Sectors:                  toLookupResponses(c.Sectors),
			Categories:               toLookupResponses(c.Categories),
			Activities:               toLookupResponses(c.Activities),
			CorporationTypes:         toLookupResponses(c.CorporationTypes),
			AgeGroups:                toRangeResponses(c.AgeGroups),
			EmployeeCountCategories:  toRangeResponses(c.EmployeeCountCategories),
			VolunteerCountCategories: toRangeResponses(c.VolunteerCountCategories),
			IncomeCategories:         toRangeResponses(c.IncomeCategories),
		})
	}
}
