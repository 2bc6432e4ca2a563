// Package identity は外部IdP（WorkOS User Management）のユーザーディレクトリ操作を提供する。
package identity

import (
	"context"
	"fmt"

	"github.com/workos/workos-go/v6/pkg/usermanagement"
)

// Profile はディレクトリ上のユーザー情報。
type Profile struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// UserPatch はディレクトリ上のユーザーの部分更新。nilは変更しない。
type UserPatch struct {
	Email    *string
	Password *string
}

// IsEmpty は変更項目がないかどうかを返す。
func (p UserPatch) IsEmpty() bool {
	return p.Email == nil && p.Password == nil
}

// Directory は外部サブジェクトIDをキーとするユーザーディレクトリのインターフェース。
type Directory interface {
	GetUser(ctx context.Context, authID string) (*Profile, error)
	UpdateUser(ctx context.Context, authID string, patch UserPatch) error
	DeleteUser(ctx context.Context, authID string) error
}

// WorkOSDirectory はWorkOS User Managementを使用したDirectory実装。
type WorkOSDirectory struct {
	getUser    func(ctx context.Context, opts usermanagement.GetUserOpts) (usermanagement.User, error)
	updateUser func(ctx context.Context, opts usermanagement.UpdateUserOpts) (usermanagement.User, error)
	deleteUser func(ctx context.Context, opts usermanagement.DeleteUserOpts) error
}

// NewWorkOSDirectory はAPIキーを設定し、WorkOSDirectoryを生成する。
func NewWorkOSDirectory(apiKey string) *WorkOSDirectory {
	usermanagement.SetAPIKey(apiKey)
	return &WorkOSDirectory{
		getUser:    usermanagement.GetUser,
		updateUser: usermanagement.UpdateUser,
		deleteUser: usermanagement.DeleteUser,
	}
}

// GetUser はディレクトリからユーザー情報を取得する。
func (d *WorkOSDirectory) GetUser(ctx context.Context, authID string) (*Profile, error) {
	u, err := d.getUser(ctx, usermanagement.GetUserOpts{User: authID})
	if err != nil {
		return nil, fmt.Errorf("failed to get directory user %s: %w", authID, err)
	}
	return &Profile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}, nil
}

// UpdateUser はメールアドレスとパスワードだけをディレクトリに反映する。
// email_verifiedは送らないため、メールアドレスの確認状態はWorkOS側の扱いに従う。
func (d *WorkOSDirectory) UpdateUser(ctx context.Context, authID string, patch UserPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	opts := usermanagement.UpdateUserOpts{User: authID}
	if patch.Email != nil {
		opts.Email = *patch.Email
	}
	if patch.Password != nil {
		opts.Password = *patch.Password
	}

	if _, err := d.updateUser(ctx, opts); err != nil {
		return fmt.Errorf("failed to update directory user %s: %w", authID, err)
	}
	return nil
}

// DeleteUser はディレクトリからユーザーを削除する。
func (d *WorkOSDirectory) DeleteUser(ctx context.Context, authID string) error {
	if err := d.deleteUser(ctx, usermanagement.DeleteUserOpts{User: authID}); err != nil {
		return fmt.Errorf("failed to delete directory user %s: %w", authID, err)
	}
	return nil
}

// compile-time interface check
var _ Directory = (*WorkOSDirectory)(nil)
