package repository

import (
	"context"
	"fmt"

	"github.com/geostats/probono/internal/model"
)

// PostgresCatalogRepo はPostgreSQLを使用した参照データリポジトリ。
type PostgresCatalogRepo struct {
	db DBTX
}

// NewPostgresCatalogRepo はPostgresCatalogRepoを生成する。
func NewPostgresCatalogRepo(db DBTX) *PostgresCatalogRepo {
	return &PostgresCatalogRepo{db: db}
}

// Load は参照データを全て取得する。
func (r *PostgresCatalogRepo) Load(ctx context.Context) (*model.Catalog, error) {
	catalog := &model.Catalog{}
	var err error

	lookups := []struct {
		dst   *[]model.LookupItem
		query string
	}{
		{&catalog.Sectors, `SELECT id, name, NULL::text FROM sectors ORDER BY id`},
		{&catalog.Categories, `SELECT id, name, NULL::text FROM organization_categories ORDER BY id`},
		{&catalog.Activities, `SELECT id, name, NULL::text FROM activities ORDER BY name`},
		{&catalog.CorporationTypes, `SELECT id, name, short_name FROM corporation_types ORDER BY id`},
	}
	for _, l := range lookups {
		if *l.dst, err = r.loadLookup(ctx, l.query); err != nil {
			return nil, err
		}
	}

	ranges := []struct {
		dst   *[]model.RangeItem
		query string
	}{
		{&catalog.AgeGroups, `SELECT id, min_age, max_age FROM age_groups ORDER BY min_age`},
		{&catalog.EmployeeCountCategories, `SELECT id, min_count, max_count FROM employee_count_categories ORDER BY min_count`},
		{&catalog.VolunteerCountCategories, `SELECT id, min_count, max_count FROM volunteer_count_categories ORDER BY min_count`},
		{&catalog.IncomeCategories, `SELECT id, min_income, max_income FROM income_categories ORDER BY min_income`},
	}
	for _, rg := range ranges {
		if *rg.dst, err = r.loadRange(ctx, rg.query); err != nil {
			return nil, err
		}
	}

	return catalog, nil
}

func (r *PostgresCatalogRepo) loadLookup(ctx context.Context, query string) ([]model.LookupItem, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	items := []model.LookupItem{}
	for rows.Next() {
		var item model.LookupItem
		if err := rows.Scan(&item.ID, &item.Name, &item.ShortName); err != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog: %w", err)
	}
	return items, nil
}

func (r *PostgresCatalogRepo) loadRange(ctx context.Context, query string) ([]model.RangeItem, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	items := []model.RangeItem{}
	for rows.Next() {
		var item model.RangeItem
		if err := rows.Scan(&item.ID, &item.Min, &item.Max); err != nil {
			return nil, fmt.Errorf("failed to scan catalog range: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog: %w", err)
	}
	return items, nil
}

// compile-time interface check
var _ CatalogRepository = (*PostgresCatalogRepo)(nil)
