package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

var (
	// ErrNotFound は更新・削除対象の行が存在しないことを示す。
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists は一意制約違反を示す。
	ErrAlreadyExists = errors.New("record already exists")
)

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
// リポジトリはどちらに対しても同じクエリを発行できる。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// StoreProvider はトランザクション内で使うリポジトリ一式を提供する。
type StoreProvider interface {
	Users() UserRepository
	Sessions() SessionRepository
	Organizations() OrganizationRepository
	Addresses() AddressRepository
}

// Stores は同一のDBTXに束縛されたリポジトリ一式。
type Stores struct {
	db DBTX
}

// NewStores はStoresを生成する。
func NewStores(db DBTX) *Stores {
	return &Stores{db: db}
}

func (s *Stores) Users() UserRepository                 { return NewPostgresUserRepo(s.db) }
func (s *Stores) Sessions() SessionRepository           { return NewPostgresSessionRepo(s.db) }
func (s *Stores) Organizations() OrganizationRepository { return NewPostgresOrganizationRepo(s.db) }
func (s *Stores) Addresses() AddressRepository          { return NewPostgresAddressRepo(s.db) }

// TxRunner は関数をトランザクション内で実行し、そのトランザクションに束縛されたリポジトリを渡す。
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

type dbTxRunner struct {
	db TxBeginner
}

// NewTxRunner は*sql.DBをバックエンドとするTxRunnerを生成する。
func NewTxRunner(db TxBeginner) TxRunner {
	return &dbTxRunner{db: db}
}

// WithTx はfnがエラーを返した場合にロールバックし、成功した場合にコミットする。
func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// コミット後のRollbackは何もしない
	defer tx.Rollback() //nolint:errcheck

	if err := fn(NewStores(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation はPostgreSQLの一意制約違反（23505）かどうかを返す。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// updateBuilder はUPDATE文のSET句を組み立てる。
type updateBuilder struct {
	sets []string
	args []any
}

func (b *updateBuilder) set(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

// setIfNotNil はvがnilでない場合のみSET句に追加する。
func setIfNotNil[T any](b *updateBuilder, column string, v *T) {
	if v != nil {
		b.set(column, *v)
	}
}

// build はUPDATE文を返す。WHERE句のIDは最後のプレースホルダになる。
func (b *updateBuilder) build(table string, id int64) (string, []any) {
	sets := append(b.sets, "updated_at = now()")
	args := append(b.args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	return query, args
}

// expectAffected はUPDATE/DELETEの結果が1行以上に影響したかを確認する。
func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
