package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/geostats/probono/internal/model"
)

const organizationColumns = `o.id, o.name, o.logo_url, o.founding_year,
	o.email, o.phone, o.webpage, o.facebook, o.instagram, o.twitter, o.tiktok, o.youtube, o.linkedin,
	o.is_incorporated, o.legal_name, o.rfc, o.incorporation_year, o.cluni_status, o.donation_auth_status,
	o.category_id, o.employee_count_category_id, o.volunteer_count_category_id, o.income_category_id, o.corporation_type_id,
	o.approved, o.created_at, o.updated_at`

// organizationSelect は組織を住所付きで取得するSELECT句。
// point型は添字で (経度, 緯度) を取り出す。
const organizationSelect = `SELECT ` + organizationColumns + `,
	a.id, a.street, a.number, a.postal_code, a.municipality, a.state, a.location[0], a.location[1]
	FROM organizations o
	LEFT JOIN addresses a ON a.id = o.address_id`

// PostgresOrganizationRepo はPostgreSQLを使用した組織リポジトリ。
type PostgresOrganizationRepo struct {
	db DBTX
}

// NewPostgresOrganizationRepo はPostgresOrganizationRepoを生成する。
func NewPostgresOrganizationRepo(db DBTX) *PostgresOrganizationRepo {
	return &PostgresOrganizationRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func organizationScanDest(o *model.Organization) []any {
	return []any{
		&o.ID, &o.Name, &o.LogoURL, &o.FoundingYear,
		&o.Email, &o.Phone, &o.Webpage, &o.Facebook, &o.Instagram, &o.Twitter, &o.TikTok, &o.YouTube, &o.LinkedIn,
		&o.IsIncorporated, &o.LegalName, &o.RFC, &o.IncorporationYear, &o.CluniStatus, &o.DonationAuthStatus,
		&o.CategoryID, &o.EmployeeCountCategoryID, &o.VolunteerCountCategoryID, &o.IncomeCategoryID, &o.CorporationTypeID,
		&o.Approved, &o.CreatedAt, &o.UpdatedAt,
	}
}

// scanOrganizationWithAddress はorganizationSelectの1行を読み込む。
func scanOrganizationWithAddress(row rowScanner) (*model.Organization, error) {
	org := &model.Organization{}
	var addressID sql.NullInt64
	var street, number, postalCode, municipality, state sql.NullString
	var lon, lat sql.NullFloat64
	dest := append(organizationScanDest(org),
		&addressID, &street, &number, &postalCode, &municipality, &state, &lon, &lat)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if addressID.Valid {
		org.Address = &model.Address{
			ID:           addressID.Int64,
			Street:       street.String,
			Number:       number.String,
			PostalCode:   postalCode.String,
			Municipality: municipality.String,
			State:        state.String,
		}
		if lon.Valid && lat.Valid {
			org.Address.Location = &model.Location{lon.Float64, lat.Float64}
		}
	}
	return org, nil
}

func (r *PostgresOrganizationRepo) findOne(ctx context.Context, query string, args ...any) (*model.Organization, error) {
	org, err := scanOrganizationWithAddress(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find organization: %w", err)
	}
	return org, nil
}

// fieldColumn は組織のスカラー項目とカラム名の対応。
type fieldColumn struct {
	name  string
	value any
	set   bool
}

func organizationFieldColumns(f *model.OrganizationFields) []fieldColumn {
	return []fieldColumn{
		{"founding_year", f.FoundingYear, f.FoundingYear != nil},
		{"email", f.Email, f.Email != nil},
		{"phone", f.Phone, f.Phone != nil},
		{"webpage", f.Webpage, f.Webpage != nil},
		{"facebook", f.Facebook, f.Facebook != nil},
		{"instagram", f.Instagram, f.Instagram != nil},
		{"twitter", f.Twitter, f.Twitter != nil},
		{"tiktok", f.TikTok, f.TikTok != nil},
		{"youtube", f.YouTube, f.YouTube != nil},
		{"linkedin", f.LinkedIn, f.LinkedIn != nil},
		{"legal_name", f.LegalName, f.LegalName != nil},
		{"rfc", f.RFC, f.RFC != nil},
		{"incorporation_year", f.IncorporationYear, f.IncorporationYear != nil},
		{"cluni_status", f.CluniStatus, f.CluniStatus != nil},
		{"donation_auth_status", f.DonationAuthStatus, f.DonationAuthStatus != nil},
		{"category_id", f.CategoryID, f.CategoryID != nil},
		{"employee_count_category_id", f.EmployeeCountCategoryID, f.EmployeeCountCategoryID != nil},
		{"volunteer_count_category_id", f.VolunteerCountCategoryID, f.VolunteerCountCategoryID != nil},
		{"income_category_id", f.IncomeCategoryID, f.IncomeCategoryID != nil},
		{"corporation_type_id", f.CorporationTypeID, f.CorporationTypeID != nil},
	}
}

// Create は組織の行を作成する。未指定の参照IDはNULLになる。
func (r *PostgresOrganizationRepo) Create(ctx context.Context, init *model.OrganizationInit) (*model.Organization, error) {
	columns := []string{"name", "is_incorporated"}
	args := []any{init.Name, init.IsIncorporated}
	for _, c := range organizationFieldColumns(&init.OrganizationFields) {
		columns = append(columns, c.name)
		args = append(args, c.value)
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		`INSERT INTO organizations AS o (%s) VALUES (%s) RETURNING %s`,
		strings.Join(columns, ", "), strings.Join(placeholders, ", "), organizationColumns,
	)

	org := &model.Organization{}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(organizationScanDest(org)...); err != nil {
		return nil, fmt.Errorf("failed to insert organization: %w", err)
	}
	return org, nil
}

// Update は指定されたスカラー項目のみ更新する。
func (r *PostgresOrganizationRepo) Update(ctx context.Context, id int64, update *model.OrganizationUpdate) error {
	b := &updateBuilder{}
	setIfNotNil(b, "name", update.Name)
	setIfNotNil(b, "is_incorporated", update.IsIncorporated)
	for _, c := range organizationFieldColumns(&update.OrganizationFields) {
		if c.set {
			b.set(c.name, c.value)
		}
	}

	query, args := b.build("organizations", id)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return expectAffected(result)
}

// FindByID は組織を住所付きで取得する。見つからない場合はnilを返す。
func (r *PostgresOrganizationRepo) FindByID(ctx context.Context, id int64) (*model.Organization, error) {
	return r.findOne(ctx, organizationSelect+` WHERE o.id = $1`, id)
}

// FindOwnedByAuthID はサブジェクトが所有する指定IDの組織を取得する。
func (r *PostgresOrganizationRepo) FindOwnedByAuthID(ctx context.Context, authID string, id int64) (*model.Organization, error) {
	return r.findOne(ctx, organizationSelect+`
		JOIN organization_owners oo ON oo.organization_id = o.id
		JOIN users u ON u.id = oo.user_id
		WHERE u.auth_id = $1 AND o.id = $2`,
		authID, id,
	)
}

// FindFirstOwnedByAuthID はサブジェクトが所有する最初の組織を取得する。
func (r *PostgresOrganizationRepo) FindFirstOwnedByAuthID(ctx context.Context, authID string) (*model.Organization, error) {
	return r.findOne(ctx, organizationSelect+`
		JOIN organization_owners oo ON oo.organization_id = o.id
		JOIN users u ON u.id = oo.user_id
		WHERE u.auth_id = $1
		ORDER BY o.id
		LIMIT 1`,
		authID,
	)
}

// ListSummariesByAuthID はサブジェクトが所有する組織の一覧をID昇順で返す。
func (r *PostgresOrganizationRepo) ListSummariesByAuthID(ctx context.Context, authID string) ([]model.OrganizationSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id, o.name, o.logo_url
		 FROM organizations o
		 JOIN organization_owners oo ON oo.organization_id = o.id
		 JOIN users u ON u.id = oo.user_id
		 WHERE u.auth_id = $1
		 ORDER BY o.id`,
		authID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	summaries := []model.OrganizationSummary{}
	for rows.Next() {
		var s model.OrganizationSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.LogoURL); err != nil {
			return nil, fmt.Errorf("failed to scan organization summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}
	return summaries, nil
}

// GetLogoURL は現在のロゴURLを返す。
func (r *PostgresOrganizationRepo) GetLogoURL(ctx context.Context, id int64) (*string, error) {
	var logoURL *string
	err := r.db.QueryRowContext(ctx,
		`SELECT logo_url FROM organizations WHERE id = $1`,
		id,
	).Scan(&logoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get logo url: %w", err)
	}
	return logoURL, nil
}

// SetLogoURL はロゴURLを更新する。
func (r *PostgresOrganizationRepo) SetLogoURL(ctx context.Context, id int64, url string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET logo_url = $1, updated_at = now() WHERE id = $2`,
		url, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set logo url: %w", err)
	}
	return expectAffected(result)
}

// AddOwner は所有者を追加する。既に所有者の場合は何もしない。
func (r *PostgresOrganizationRepo) AddOwner(ctx context.Context, id, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organization_owners (organization_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to add organization owner: %w", err)
	}
	return nil
}

// ListAgeGroups は年齢層の関連を返す。
func (r *PostgresOrganizationRepo) ListAgeGroups(ctx context.Context, id int64) ([]model.AgeGroupSelection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT age_group_id, gender
		 FROM organization_age_groups
		 WHERE organization_id = $1
		 ORDER BY age_group_id, gender`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list age groups: %w", err)
	}
	defer rows.Close()

	groups := []model.AgeGroupSelection{}
	for rows.Next() {
		var g model.AgeGroupSelection
		if err := rows.Scan(&g.AgeGroupID, &g.Gender); err != nil {
			return nil, fmt.Errorf("failed to scan age group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate age groups: %w", err)
	}
	return groups, nil
}

// ListActivities は活動の関連を優先度順に返す。
func (r *PostgresOrganizationRepo) ListActivities(ctx context.Context, id int64) ([]model.OrganizationActivity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT activity_id, priority
		 FROM organization_activities
		 WHERE organization_id = $1
		 ORDER BY priority`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	activities := []model.OrganizationActivity{}
	for rows.Next() {
		var a model.OrganizationActivity
		if err := rows.Scan(&a.ActivityID, &a.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}
	return activities, nil
}

// ListBeneficiaryIDs は受益組織のIDを昇順で返す。
func (r *PostgresOrganizationRepo) ListBeneficiaryIDs(ctx context.Context, id int64) ([]int64, error) {
	return r.listIDs(ctx,
		`SELECT coalesce(array_agg(beneficiary_id ORDER BY beneficiary_id), '{}')
		 FROM organization_beneficiaries WHERE organization_id = $1`,
		id,
	)
}

// ListSectorIDs はセクターのIDを昇順で返す。
func (r *PostgresOrganizationRepo) ListSectorIDs(ctx context.Context, id int64) ([]int64, error) {
	return r.listIDs(ctx,
		`SELECT coalesce(array_agg(sector_id ORDER BY sector_id), '{}')
		 FROM organization_sectors WHERE organization_id = $1`,
		id,
	)
}

func (r *PostgresOrganizationRepo) listIDs(ctx context.Context, query string, id int64) ([]int64, error) {
	var ids pq.Int64Array
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&ids); err != nil {
		return nil, fmt.Errorf("failed to list related ids: %w", err)
	}
	return []int64(ids), nil
}

// DeleteAgeGroups は年齢層の関連を全て削除する。
func (r *PostgresOrganizationRepo) DeleteAgeGroups(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM organization_age_groups WHERE organization_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete age groups: %w", err)
	}
	return nil
}

// InsertAgeGroups は年齢層の関連を追加する。
func (r *PostgresOrganizationRepo) InsertAgeGroups(ctx context.Context, id int64, groups []model.AgeGroupSelection) error {
	if len(groups) == 0 {
		return nil
	}
	ageGroupIDs := make([]int64, len(groups))
	genders := make([]string, len(groups))
	for i, g := range groups {
		ageGroupIDs[i] = g.AgeGroupID
		genders[i] = string(g.Gender)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organization_age_groups (organization_id, age_group_id, gender)
		 SELECT $1, t.age_group_id, t.gender
		 FROM unnest($2::bigint[], $3::text[]) AS t(age_group_id, gender)`,
		id, pq.Array(ageGroupIDs), pq.Array(genders),
	)
	if err != nil {
		return fmt.Errorf("failed to insert age groups: %w", err)
	}
	return nil
}

// DeleteActivities は活動の関連を全て削除する。
func (r *PostgresOrganizationRepo) DeleteActivities(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM organization_activities WHERE organization_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete activities: %w", err)
	}
	return nil
}

// InsertActivities は優先度付きの活動を追加する。
func (r *PostgresOrganizationRepo) InsertActivities(ctx context.Context, id int64, activities []model.OrganizationActivity) error {
	if len(activities) == 0 {
		return nil
	}
	activityIDs := make([]int64, len(activities))
	priorities := make([]int64, len(activities))
	for i, a := range activities {
		activityIDs[i] = a.ActivityID
		priorities[i] = int64(a.Priority)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organization_activities (organization_id, activity_id, priority)
		 SELECT $1, t.activity_id, t.priority
		 FROM unnest($2::bigint[], $3::int[]) AS t(activity_id, priority)`,
		id, pq.Array(activityIDs), pq.Array(priorities),
	)
	if err != nil {
		return fmt.Errorf("failed to insert activities: %w", err)
	}
	return nil
}

// ReplaceBeneficiaries は受益組織の関連を指定の集合で置き換える。
func (r *PostgresOrganizationRepo) ReplaceBeneficiaries(ctx context.Context, id int64, beneficiaryIDs []int64) error {
	return r.replaceIDs(ctx, "organization_beneficiaries", "beneficiary_id", id, beneficiaryIDs)
}

// ReplaceSectors はセクターの関連を指定の集合で置き換える。
func (r *PostgresOrganizationRepo) ReplaceSectors(ctx context.Context, id int64, sectorIDs []int64) error {
	return r.replaceIDs(ctx, "organization_sectors", "sector_id", id, sectorIDs)
}

func (r *PostgresOrganizationRepo) replaceIDs(ctx context.Context, table, column string, id int64, ids []int64) error {
	if _, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE organization_id = $1`, table),
		id,
	); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if len(ids) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (organization_id, %s)
		 SELECT DISTINCT $1::bigint, unnest($2::bigint[])`, table, column),
		id, pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", table, err)
	}
	return nil
}

// ListOwnedWithOwnerCount はユーザーが所有する組織とそれぞれの所有者数を返す。
func (r *PostgresOrganizationRepo) ListOwnedWithOwnerCount(ctx context.Context, userID int64) ([]model.OwnedOrganization, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT mine.organization_id,
		        (SELECT count(*) FROM organization_owners c WHERE c.organization_id = mine.organization_id)
		 FROM organization_owners mine
		 WHERE mine.user_id = $1
		 ORDER BY mine.organization_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned organizations: %w", err)
	}
	defer rows.Close()

	owned := []model.OwnedOrganization{}
	for rows.Next() {
		var o model.OwnedOrganization
		if err := rows.Scan(&o.OrganizationID, &o.OwnerCount); err != nil {
			return nil, fmt.Errorf("failed to scan owned organization: %w", err)
		}
		owned = append(owned, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate owned organizations: %w", err)
	}
	return owned, nil
}

// DeleteByIDs は組織と紐付く住所を削除し、削除した組織のロゴURLを返す。
// 関連テーブルの行はCASCADE削除される。
func (r *PostgresOrganizationRepo) DeleteByIDs(ctx context.Context, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM organizations WHERE id = ANY($1::bigint[])
		 RETURNING logo_url, address_id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete organizations: %w", err)
	}
	defer rows.Close()

	var (
		logoURLs   []string
		addressIDs []int64
	)
	for rows.Next() {
		var logoURL sql.NullString
		var addressID sql.NullInt64
		if err := rows.Scan(&logoURL, &addressID); err != nil {
			return nil, fmt.Errorf("failed to scan deleted organization: %w", err)
		}
		if logoURL.Valid {
			logoURLs = append(logoURLs, logoURL.String)
		}
		if addressID.Valid {
			addressIDs = append(addressIDs, addressID.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deleted organizations: %w", err)
	}
	rows.Close()

	if len(addressIDs) > 0 {
		if _, err := r.db.ExecContext(ctx,
			`DELETE FROM addresses WHERE id = ANY($1::bigint[])`,
			pq.Array(addressIDs),
		); err != nil {
			return nil, fmt.Errorf("failed to delete addresses: %w", err)
		}
	}
	return logoURLs, nil
}

// ListApproved は承認済み組織をフィルタ条件で絞り込んで名前順に返す。
// 年齢層と性別の両方が指定された場合は同じ関連行で一致する必要がある。
func (r *PostgresOrganizationRepo) ListApproved(ctx context.Context, filter model.OrganizationFilter) ([]model.OrganizationCard, error) {
	var (
		conds = []string{"o.approved"}
		args  []any
	)
	if filter.SectorID != nil {
		args = append(args, *filter.SectorID)
		conds = append(conds, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM organization_sectors s WHERE s.organization_id = o.id AND s.sector_id = $%d)`, len(args)))
	}
	if filter.AgeGroupID != nil || filter.Gender != nil {
		var sub []string
		if filter.AgeGroupID != nil {
			args = append(args, *filter.AgeGroupID)
			sub = append(sub, fmt.Sprintf("g.age_group_id = $%d", len(args)))
		}
		if filter.Gender != nil {
			args = append(args, string(*filter.Gender))
			sub = append(sub, fmt.Sprintf("g.gender = $%d", len(args)))
		}
		conds = append(conds, `EXISTS (SELECT 1 FROM organization_age_groups g WHERE g.organization_id = o.id AND `+
			strings.Join(sub, " AND ")+`)`)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id, o.name, o.logo_url, a.location[0], a.location[1]
		 FROM organizations o
		 LEFT JOIN addresses a ON a.id = o.address_id
		 WHERE `+strings.Join(conds, " AND ")+`
		 ORDER BY o.name, o.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved organizations: %w", err)
	}
	defer rows.Close()

	cards := []model.OrganizationCard{}
	for rows.Next() {
		var (
			c        model.OrganizationCard
			lon, lat sql.NullFloat64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.LogoURL, &lon, &lat); err != nil {
			return nil, fmt.Errorf("failed to scan organization card: %w", err)
		}
		if lon.Valid && lat.Valid {
			c.Location = &model.Location{lon.Float64, lat.Float64}
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approved organizations: %w", err)
	}
	return cards, nil
}

// SetApproved は承認状態を更新する。
func (r *PostgresOrganizationRepo) SetApproved(ctx context.Context, id int64, approved bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET approved = $1, updated_at = now() WHERE id = $2`,
		approved, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set approval: %w", err)
	}
	return expectAffected(result)
}

// ListLogoURLs は全組織で参照中のロゴURLを返す。
func (r *PostgresOrganizationRepo) ListLogoURLs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT logo_url FROM organizations WHERE logo_url IS NOT NULL AND logo_url <> ''`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list logo urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan logo url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate logo urls: %w", err)
	}
	return urls, nil
}

// compile-time interface check
var _ OrganizationRepository = (*PostgresOrganizationRepo)(nil)
