package model

// LookupItem は名前付きの参照データ（セクター、カテゴリ、活動、法人種別）。
type LookupItem struct {
	ID        int64
	Name      string
	ShortName *string
}

// RangeItem は範囲で表される参照データ（年齢層、人数区分、収入区分）。
// Maxがnilの場合は上限なし。
type RangeItem struct {
	ID  int64
	Min int
	Max *int
}

// Catalog はフォームの選択肢に使う参照データ一式。
type Catalog struct {
	Sectors                  []LookupItem
	Categories               []LookupItem
	Activities               []LookupItem
	CorporationTypes         []LookupItem
	AgeGroups                []RangeItem
	EmployeeCountCategories  []RangeItem
	VolunteerCountCategories []RangeItem
	IncomeCategories         []RangeItem
}
