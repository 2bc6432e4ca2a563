// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザー（個人プロフィール）を表す。
// AuthIDは外部IdP（WorkOS）のユーザーIDで、一意。
type User struct {
	ID         int64
	AuthID     string
	GivenName  string
	FamilyName string
	Email      string
	Phone      string
	IsAdmin    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserWithCount は所有組織数付きのユーザー。
type UserWithCount struct {
	User
	OrganizationCount int
}

// UserInit はオンボーディング時にフォームから受け取るユーザー情報。
// メールアドレスはIdPのディレクトリから取得するため含まない。
type UserInit struct {
	GivenName  string
	FamilyName string
	Phone      string
}

// UserUpdate はユーザー情報の部分更新。nilのフィールドは変更しない。
// Passwordはローカルには保存せず、IdPにのみ送る。
type UserUpdate struct {
	GivenName  *string
	FamilyName *string
	Email      *string
	Phone      *string
	Password   *string
}

// Session はログインセッションを表す。
// ローカルのusersレコードが未作成（オンボーディング前）でも有効なため、
// ユーザーIDではなくIdPのサブジェクトを保持する。
type Session struct {
	ID        string
	AuthID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
