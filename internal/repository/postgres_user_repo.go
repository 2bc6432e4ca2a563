package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/geostats/probono/internal/model"
)

const userColumns = `u.id, u.auth_id, u.given_name, u.family_name, u.email, u.phone, u.is_admin, u.created_at, u.updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db DBTX
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db DBTX) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func userScanDest(u *model.User) []any {
	return []any{&u.ID, &u.AuthID, &u.GivenName, &u.FamilyName, &u.Email, &u.Phone, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`,
		id,
	).Scan(userScanDest(user)...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByAuthID はIdPのサブジェクトでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByAuthID(ctx context.Context, authID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.auth_id = $1`,
		authID,
	).Scan(userScanDest(user)...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by auth ID: %w", err)
	}
	return user, nil
}

// FindByAuthIDWithCount はユーザーを所有組織数付きで取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByAuthIDWithCount(ctx context.Context, authID string) (*model.UserWithCount, error) {
	user := &model.UserWithCount{}
	dest := append(userScanDest(&user.User), &user.OrganizationCount)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+`,
		        (SELECT count(*) FROM organization_owners oo WHERE oo.user_id = u.id)
		 FROM users u
		 WHERE u.auth_id = $1`,
		authID,
	).Scan(dest...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user with organization count: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (auth_id, given_name, family_name, email, phone, is_admin)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		user.AuthID, user.GivenName, user.FamilyName, user.Email, user.Phone, user.IsAdmin,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update は指定されたフィールドのみ更新する。パスワードはローカルに保存しない。
func (r *PostgresUserRepo) Update(ctx context.Context, id int64, update *model.UserUpdate) error {
	b := &updateBuilder{}
	setIfNotNil(b, "given_name", update.GivenName)
	setIfNotNil(b, "family_name", update.FamilyName)
	setIfNotNil(b, "email", update.Email)
	setIfNotNil(b, "phone", update.Phone)

	query, args := b.build("users", id)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectAffected(result)
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectAffected(result)
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
