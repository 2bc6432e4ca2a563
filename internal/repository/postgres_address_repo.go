package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/geostats/probono/internal/model"
)

// PostgresAddressRepo はPostgreSQLを使用した住所リポジトリ。
type PostgresAddressRepo struct {
	db DBTX
}

// NewPostgresAddressRepo はPostgresAddressRepoを生成する。
func NewPostgresAddressRepo(db DBTX) *PostgresAddressRepo {
	return &PostgresAddressRepo{db: db}
}

// UpsertForOrganization は組織の住所を作成または更新し、住所IDを返す。
// 座標はSetLocationForOrganizationで別途設定する。
func (r *PostgresAddressRepo) UpsertForOrganization(ctx context.Context, organizationID int64, address *model.AddressInit) (int64, error) {
	var current sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT address_id FROM organizations WHERE id = $1`,
		organizationID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find organization address: %w", err)
	}

	if current.Valid {
		_, err := r.db.ExecContext(ctx,
			`UPDATE addresses
			 SET street = $1, number = $2, postal_code = $3, municipality = $4, state = $5
			 WHERE id = $6`,
			address.Street, address.Number, address.PostalCode, address.Municipality, address.State,
			current.Int64,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update address: %w", err)
		}
		return current.Int64, nil
	}

	var addressID int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO addresses (street, number, postal_code, municipality, state)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		address.Street, address.Number, address.PostalCode, address.Municipality, address.State,
	).Scan(&addressID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert address: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET address_id = $1 WHERE id = $2`,
		addressID, organizationID,
	); err != nil {
		return 0, fmt.Errorf("failed to link address: %w", err)
	}
	return addressID, nil
}

// SetLocationForOrganization は組織に紐付く住所のpoint型カラムを (経度, 緯度) で更新する。
func (r *PostgresAddressRepo) SetLocationForOrganization(ctx context.Context, organizationID int64, location model.Location) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE addresses AS a
		 SET location = point($1, $2)
		 FROM organizations AS o
		 WHERE a.id = o.address_id AND o.id = $3`,
		location.Longitude(), location.Latitude(), organizationID,
	)
	if err != nil {
		return fmt.Errorf("failed to set address location: %w", err)
	}
	return expectAffected(result)
}

// compile-time interface check
var _ AddressRepository = (*PostgresAddressRepo)(nil)
