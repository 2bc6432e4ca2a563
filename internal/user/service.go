// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"unicode/utf8"

	"github.com/geostats/probono/internal/identity"
	"github.com/geostats/probono/internal/metrics"
	"github.com/geostats/probono/internal/model"
	"github.com/geostats/probono/internal/organization"
	"github.com/geostats/probono/internal/repository"
	"github.com/geostats/probono/internal/security"
)

// minPasswordLength はIdPに送るパスワードの最小長。
const minPasswordLength = 8

// LogoRemover は削除済み組織のロゴ削除インターフェース。
type LogoRemover interface {
	RemoveLogos(ctx context.Context, logoURLs []string)
}

// Service はユーザー管理のサービス層。
// ローカルのusersテーブルとIdPのディレクトリの両方を更新する。
type Service struct {
	tx        repository.TxRunner
	userRepo  repository.UserRepository
	directory identity.Directory
	logos     LogoRemover
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	tx repository.TxRunner,
	userRepo repository.UserRepository,
	directory identity.Directory,
	logos LogoRemover,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		tx:        tx,
		userRepo:  userRepo,
		directory: directory,
		logos:     logos,
		sanitizer: sanitizer,
		metrics:   collector,
	}
}

// Create はオンボーディング時にローカルのユーザーを作成する。
// メールアドレスはディレクトリから取得し、フォームの入力値と組み合わせて保存する。
func (s *Service) Create(ctx context.Context, authID string, init *model.UserInit) (*model.User, error) {
	init.GivenName = s.sanitizer.Sanitize(init.GivenName)
	init.FamilyName = s.sanitizer.Sanitize(init.FamilyName)
	init.Phone = s.sanitizer.Sanitize(init.Phone)
	if err := validateName("givenName", init.GivenName); err != nil {
		return nil, err
	}
	if err := validateName("familyName", init.FamilyName); err != nil {
		return nil, err
	}

	var user *model.User
	err := s.tx.WithTx(ctx, func(stores repository.StoreProvider) error {
		existing, err := stores.Users().FindByAuthID(ctx, authID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if existing != nil {
			return model.NewUserAlreadyExistsError()
		}

		profile, err := s.directory.GetUser(ctx, authID)
		s.metrics.RecordDirectoryCall("get_user", err == nil)
		if err != nil {
			return fmt.Errorf("ディレクトリからのユーザー取得に失敗しました: %w", err)
		}

		user = &model.User{
			AuthID:     authID,
			GivenName:  init.GivenName,
			FamilyName: init.FamilyName,
			Email:      profile.Email,
			Phone:      init.Phone,
		}
		if err := stores.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrAlreadyExists) {
				return model.NewUserAlreadyExistsError()
			}
			return fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("ユーザーを作成しました",
		slog.Int64("user_id", user.ID),
		slog.String("auth_id", authID),
	)
	return user, nil
}

// Delete はユーザーを削除する。
// 削除順序: ディレクトリ → 単独所有の組織 → セッション → ユーザー（organization_ownersはCASCADE削除）
// ディレクトリ削除後にローカルの削除が失敗しても補償処理は行わない。
func (s *Service) Delete(ctx context.Context, userID int64) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.Int64("user_id", userID),
	)

	// 1. ディレクトリから削除
	err = s.directory.DeleteUser(ctx, user.AuthID)
	s.metrics.RecordDirectoryCall("delete_user", err == nil)
	if err != nil {
		return fmt.Errorf("ディレクトリからのユーザー削除に失敗しました: %w", err)
	}

	var deletedOrgs []int64
	var logoURLs []string
	err = s.tx.WithTx(ctx, func(stores repository.StoreProvider) error {
		// 2. 単独所有の組織を削除
		ids, err := organization.SoleOwnedIDs(ctx, stores.Organizations(), userID)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			urls, err := stores.Organizations().DeleteByIDs(ctx, ids)
			if err != nil {
				return fmt.Errorf("組織の削除に失敗しました: %w", err)
			}
			deletedOrgs = ids
			logoURLs = urls
		}

		// 3. セッションを削除
		if err := stores.Sessions().DeleteByAuthID(ctx, user.AuthID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}

		// 4. ユーザーを削除
		if err := stores.Users().DeleteByID(ctx, userID); err != nil {
			return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("ディレクトリ削除後のローカル削除に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("auth_id", user.AuthID),
			slog.String("error", err.Error()),
		)
		return err
	}

	if len(deletedOrgs) > 0 {
		s.metrics.RecordOrganizationsDeleted(len(deletedOrgs))
		if s.logos != nil {
			s.logos.RemoveLogos(ctx, logoURLs)
		}
	}
	s.metrics.RecordUserDeleted()

	slog.Info("退会処理が完了しました",
		slog.Int64("user_id", userID),
		slog.Int("deleted_organizations", len(deletedOrgs)),
	)
	return nil
}

// Update はユーザー情報を部分更新する。
// メールアドレスが変わった場合とパスワードが指定された場合は先にディレクトリへ反映し、
// その後パスワード以外の項目をローカルに保存する。
func (s *Service) Update(ctx context.Context, userID int64, upd *model.UserUpdate) error {
	if err := s.normalizeUpdate(upd); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(stores repository.StoreProvider) error {
		user, err := stores.Users().FindByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if user == nil {
			return model.NewUserNotFoundError()
		}

		patch := identity.UserPatch{Password: upd.Password}
		if upd.Email != nil && *upd.Email != user.Email {
			patch.Email = upd.Email
		}
		if !patch.IsEmpty() {
			err := s.directory.UpdateUser(ctx, user.AuthID, patch)
			s.metrics.RecordDirectoryCall("update_user", err == nil)
			if err != nil {
				return fmt.Errorf("ディレクトリのユーザー更新に失敗しました: %w", err)
			}
		}

		if err := stores.Users().Update(ctx, userID, upd); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.NewUserNotFoundError()
			}
			return fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
		}
		return nil
	})
}

func (s *Service) normalizeUpdate(upd *model.UserUpdate) error {
	upd.GivenName = security.SanitizePtr(s.sanitizer, upd.GivenName)
	upd.FamilyName = security.SanitizePtr(s.sanitizer, upd.FamilyName)
	upd.Phone = security.SanitizePtr(s.sanitizer, upd.Phone)
	upd.Email = security.SanitizePtr(s.sanitizer, upd.Email)

	if upd.GivenName != nil {
		if err := validateName("givenName", *upd.GivenName); err != nil {
			return err
		}
	}
	if upd.FamilyName != nil {
		if err := validateName("familyName", *upd.FamilyName); err != nil {
			return err
		}
	}
	if upd.Email != nil {
		if _, err := mail.ParseAddress(*upd.Email); err != nil {
			return model.NewValidationError("email", "correo electrónico inválido")
		}
	}
	if upd.Password != nil && utf8.RuneCountInString(*upd.Password) < minPasswordLength {
		return model.NewValidationError("password", fmt.Sprintf("debe tener al menos %d caracteres", minPasswordLength))
	}
	return nil
}

func validateName(field, value string) error {
	if value == "" {
		return model.NewValidationError(field, "el campo es obligatorio")
	}
	return nil
}
