// Package organization は組織プロフィールの作成・更新・削除と一覧のドメインロジックを提供する。
package organization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geostats/probono/internal/blob"
	"github.com/geostats/probono/internal/metrics"
	"github.com/geostats/probono/internal/model"
	"github.com/geostats/probono/internal/repository"
	"github.com/geostats/probono/internal/security"
)

// Service は組織管理のサービス層。
// DB書き込みは1トランザクションにまとめ、ロゴの保存はコミット後に行う。
type Service struct {
	tx          repository.TxRunner
	orgRepo     repository.OrganizationRepository
	catalogRepo repository.CatalogRepository
	blobs       blob.Store
	sanitizer   security.TextSanitizer
	metrics     metrics.MetricsCollector
	logoMaxSize int64
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// logoMaxSizeが0以下の場合はサイズを制限しない。
func NewService(
	tx repository.TxRunner,
	orgRepo repository.OrganizationRepository,
	catalogRepo repository.CatalogRepository,
	blobs blob.Store,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	logoMaxSize int64,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		tx:          tx,
		orgRepo:     orgRepo,
		catalogRepo: catalogRepo,
		blobs:       blobs,
		sanitizer:   sanitizer,
		metrics:     collector,
		logoMaxSize: logoMaxSize,
		now:         time.Now,
	}
}

// Create は組織を作成し、作成者を所有者として登録する。
// 組織行・住所・座標・所有者・年齢層・活動・受益組織・セクターを1トランザクションで書き込む。
// ロゴが指定された場合はコミット後に種別を判定してアップロードし、ロゴURLを反映した組織を返す。
// 種別が不正な場合、組織は作成済みのままエラーを返す。
func (s *Service) Create(ctx context.Context, ownerID int64, init *model.OrganizationInit) (*model.Organization, error) {
	if err := s.normalizeInit(init); err != nil {
		return nil, err
	}

	var org *model.Organization
	err := s.tx.WithTx(ctx, func(stores repository.StoreProvider) error {
		orgs := stores.Organizations()

		created, err := orgs.Create(ctx, init)
		if err != nil {
			return fmt.Errorf("組織の作成に失敗しました: %w", err)
		}
		org = created

		if init.Address != nil {
			if _, err := stores.Addresses().UpsertForOrganization(ctx, org.ID, init.Address); err != nil {
				return fmt.Errorf("住所の作成に失敗しました: %w", err)
			}
			if err := stores.Addresses().SetLocationForOrganization(ctx, org.ID, init.Address.Location); err != nil {
				return fmt.Errorf("座標の設定に失敗しました: %w", err)
			}
		}

		if err := orgs.AddOwner(ctx, org.ID, ownerID); err != nil {
			return fmt.Errorf("所有者の登録に失敗しました: %w", err)
		}
		if len(init.AgeGroups) > 0 {
			if err := orgs.InsertAgeGroups(ctx, org.ID, init.AgeGroups); err != nil {
				return fmt.Errorf("年齢層の登録に失敗しました: %w", err)
			}
		}
		if len(init.Activities) > 0 {
			if err := orgs.InsertActivities(ctx, org.ID, prioritized(init.Activities)); err != nil {
				return fmt.Errorf("活動の登録に失敗しました: %w", err)
			}
		}
		if len(init.Beneficiaries) > 0 {
			if err := orgs.ReplaceBeneficiaries(ctx, org.ID, init.Beneficiaries); err != nil {
				return fmt.Errorf("受益組織の登録に失敗しました: %w", err)
			}
		}
		if len(init.Sectors) > 0 {
			if err := orgs.ReplaceSectors(ctx, org.ID, init.Sectors); err != nil {
				return fmt.Errorf("セクターの登録に失敗しました: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOrganizationCreated()
	slog.Info("組織を作成しました",
		slog.Int64("organization_id", org.ID),
		slog.Int64("owner_id", ownerID),
	)

	if init.Logo != nil {
		// 組織はコミット済み。ロゴの種別判定はストレージ操作の前に行う
		logo, err := prepareLogo(init.Logo, s.logoMaxSize)
		if err != nil {
			s.recordLogoRejected(err)
			return nil, err
		}
		url, err := s.uploadLogo(ctx, org.ID, logo)
		if err != nil {
			return nil, err
		}
		org.LogoURL = &url
	}

	return org, nil
}

// Update は組織を部分更新し、更新後の組織を返す。
// 年齢層・活動は指定された場合に既存の関連を全削除してから作り直す（全置換）。
// ロゴが指定された場合はコミット後に旧ロゴを削除してから新ロゴをアップロードする。
func (s *Service) Update(ctx context.Context, organizationID int64, upd *model.OrganizationUpdate) (*model.Organization, error) {
	if err := s.normalizeUpdate(organizationID, upd); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(stores repository.StoreProvider) error {
		orgs := stores.Organizations()

		if upd.AgeGroups != nil {
			if err := orgs.DeleteAgeGroups(ctx, organizationID); err != nil {
				return fmt.Errorf("年齢層の削除に失敗しました: %w", err)
			}
		}
		if upd.Activities != nil {
			if err := orgs.DeleteActivities(ctx, organizationID); err != nil {
				return fmt.Errorf("活動の削除に失敗しました: %w", err)
			}
		}

		if err := orgs.Update(ctx, organizationID, upd); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.NewOrganizationNotFoundError()
			}
			return fmt.Errorf("組織の更新に失敗しました: %w", err)
		}

		if upd.Address != nil {
			if _, err := stores.Addresses().UpsertForOrganization(ctx, organizationID, upd.Address); err != nil {
				return fmt.Errorf("住所の更新に失敗しました: %w", err)
			}
			if err := stores.Addresses().SetLocationForOrganization(ctx, organizationID, upd.Address.Location); err != nil {
				return fmt.Errorf("座標の設定に失敗しました: %w", err)
			}
		}

		if len(upd.AgeGroups) > 0 {
			if err := orgs.InsertAgeGroups(ctx, organizationID, upd.AgeGroups); err != nil {
				return fmt.Errorf("年齢層の登録に失敗しました: %w", err)
			}
		}
		if len(upd.Activities) > 0 {
			if err := orgs.InsertActivities(ctx, organizationID, prioritized(upd.Activities)); err != nil {
				return fmt.Errorf("活動の登録に失敗しました: %w", err)
			}
		}
		if upd.Beneficiaries != nil {
			if err := orgs.ReplaceBeneficiaries(ctx, organizationID, upd.Beneficiaries); err != nil {
				return fmt.Errorf("受益組織の更新に失敗しました: %w", err)
			}
		}
		if upd.Sectors != nil {
			if err := orgs.ReplaceSectors(ctx, organizationID, upd.Sectors); err != nil {
				return fmt.Errorf("セクターの更新に失敗しました: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOrganizationUpdated()

	if upd.Logo != nil {
		// 旧ロゴの削除より前に種別を判定する
		logo, err := prepareLogo(upd.Logo, s.logoMaxSize)
		if err != nil {
			s.recordLogoRejected(err)
			return nil, err
		}
		if err := s.replaceLogo(ctx, organizationID, logo); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, organizationID)
}

// replaceLogo は旧ロゴを削除してから新ロゴをアップロードする。
// 削除後にアップロードが失敗した場合、組織はロゴなしの状態になる。
func (s *Service) replaceLogo(ctx context.Context, organizationID int64, logo *preparedLogo) error {
	current, err := s.orgRepo.GetLogoURL(ctx, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewOrganizationNotFoundError()
		}
		return fmt.Errorf("ロゴURLの取得に失敗しました: %w", err)
	}

	if current != nil && *current != "" {
		if err := s.blobs.Delete(ctx, *current); err != nil {
			s.metrics.RecordBlobDelete(false)
			if !errors.Is(err, blob.ErrForeignURL) {
				return fmt.Errorf("旧ロゴの削除に失敗しました: %w", err)
			}
			slog.Warn("ストア外のロゴURLのため削除をスキップしました",
				slog.Int64("organization_id", organizationID),
				slog.String("logo_url", *current),
			)
		} else {
			s.metrics.RecordBlobDelete(true)
		}
	}

	_, err = s.uploadLogo(ctx, organizationID, logo)
	return err
}

// uploadLogo はロゴをアップロードし、公開URLを組織に保存する。
func (s *Service) uploadLogo(ctx context.Context, organizationID int64, logo *preparedLogo) (string, error) {
	key := logoKey(organizationID, s.now().UnixMilli(), logo.extension)

	url, err := s.blobs.Put(ctx, key, logo.body, logo.contentType)
	if err != nil {
		s.metrics.RecordLogoUpload(metrics.LogoResultFailure)
		return "", fmt.Errorf("ロゴのアップロードに失敗しました: %w", err)
	}
	s.metrics.RecordLogoUpload(metrics.LogoResultSuccess)

	if err := s.orgRepo.SetLogoURL(ctx, organizationID, url); err != nil {
		return "", fmt.Errorf("ロゴURLの保存に失敗しました: %w", err)
	}

	slog.Info("ロゴを保存しました",
		slog.Int64("organization_id", organizationID),
		slog.String("key", key),
	)
	return url, nil
}

func (s *Service) recordLogoRejected(err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnsupportedLogoType {
		s.metrics.RecordLogoUpload(metrics.LogoResultUnsupported)
	}
}

// Get は組織を全ての関連付きで取得する。
func (s *Service) Get(ctx context.Context, organizationID int64) (*model.Organization, error) {
	org, err := s.orgRepo.FindByID(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("組織の取得に失敗しました: %w", err)
	}
	if org == nil {
		return nil, model.NewOrganizationNotFoundError()
	}

	if org.AgeGroups, err = s.orgRepo.ListAgeGroups(ctx, organizationID); err != nil {
		return nil, fmt.Errorf("年齢層の取得に失敗しました: %w", err)
	}
	if org.Activities, err = s.orgRepo.ListActivities(ctx, organizationID); err != nil {
		return nil, fmt.Errorf("活動の取得に失敗しました: %w", err)
	}
	if org.BeneficiaryIDs, err = s.orgRepo.ListBeneficiaryIDs(ctx, organizationID); err != nil {
		return nil, fmt.Errorf("受益組織の取得に失敗しました: %w", err)
	}
	if org.SectorIDs, err = s.orgRepo.ListSectorIDs(ctx, organizationID); err != nil {
		return nil, fmt.Errorf("セクターの取得に失敗しました: %w", err)
	}
	return org, nil
}

// IsOwner はサブジェクトが組織を所有しているかを返す。
func (s *Service) IsOwner(ctx context.Context, authID string, organizationID int64) (bool, error) {
	org, err := s.orgRepo.FindOwnedByAuthID(ctx, authID, organizationID)
	if err != nil {
		return false, fmt.Errorf("所有組織の確認に失敗しました: %w", err)
	}
	return org != nil, nil
}

// ListWithSoleOwner はユーザーが唯一の所有者である組織のIDを返す。
func (s *Service) ListWithSoleOwner(ctx context.Context, userID int64) ([]int64, error) {
	return SoleOwnedIDs(ctx, s.orgRepo, userID)
}

// SoleOwnedIDs はユーザーが唯一の所有者である組織のIDを返す。
// トランザクション内のリポジトリからも呼び出せるよう関数として公開する。
func SoleOwnedIDs(ctx context.Context, orgs repository.OrganizationRepository, userID int64) ([]int64, error) {
	owned, err := orgs.ListOwnedWithOwnerCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("所有組織の取得に失敗しました: %w", err)
	}

	var ids []int64
	for _, o := range owned {
		if o.OwnerCount == 1 {
			ids = append(ids, o.OrganizationID)
		}
	}
	return ids, nil
}

// DeleteMany は組織を一括削除し、削除した組織のロゴを削除する。
func (s *Service) DeleteMany(ctx context.Context, organizationIDs []int64) error {
	if len(organizationIDs) == 0 {
		return nil
	}

	var logoURLs []string
	err := s.tx.WithTx(ctx, func(stores repository.StoreProvider) error {
		urls, err := stores.Organizations().DeleteByIDs(ctx, organizationIDs)
		if err != nil {
			return fmt.Errorf("組織の削除に失敗しました: %w", err)
		}
		logoURLs = urls
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordOrganizationsDeleted(len(organizationIDs))
	s.RemoveLogos(ctx, logoURLs)
	return nil
}

// RemoveLogos は削除済み組織のロゴをベストエフォートで削除する。
// 失敗はログに記録するのみで呼び出し元には返さない。
func (s *Service) RemoveLogos(ctx context.Context, logoURLs []string) {
	for _, url := range logoURLs {
		if err := s.blobs.Delete(ctx, url); err != nil {
			s.metrics.RecordBlobDelete(false)
			slog.Warn("ロゴの削除に失敗しました",
				slog.String("logo_url", url),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.metrics.RecordBlobDelete(true)
	}
}

// ListApproved は承認済み組織をフィルタ条件で絞り込んで返す。
func (s *Service) ListApproved(ctx context.Context, filter model.OrganizationFilter) ([]model.OrganizationCard, error) {
	if filter.Gender != nil && !filter.Gender.Valid() {
		return nil, model.NewValidationError("gender", "valor no reconocido")
	}

	cards, err := s.orgRepo.ListApproved(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("承認済み組織の取得に失敗しました: %w", err)
	}
	if cards == nil {
		cards = []model.OrganizationCard{}
	}
	return cards, nil
}

// SetApproved は組織の承認状態を更新する。
func (s *Service) SetApproved(ctx context.Context, organizationID int64, approved bool) error {
	if err := s.orgRepo.SetApproved(ctx, organizationID, approved); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewOrganizationNotFoundError()
		}
		return fmt.Errorf("承認状態の更新に失敗しました: %w", err)
	}

	slog.Info("組織の承認状態を更新しました",
		slog.Int64("organization_id", organizationID),
		slog.Bool("approved", approved),
	)
	return nil
}

// Catalog はフォームの選択肢に使う参照データを返す。
func (s *Service) Catalog(ctx context.Context) (*model.Catalog, error) {
	catalog, err := s.catalogRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("参照データの取得に失敗しました: %w", err)
	}
	return catalog, nil
}
