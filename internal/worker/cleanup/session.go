package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SessionJob は期限切れセッションの削除ジョブ。
// 期限切れのセッションはFindByIDで既に無効だが、行は残り続けるため定期的に削除する。
type SessionJob struct {
	db     Executor
	logger *slog.Logger
	// GracePeriod は期限切れから削除までの猶予（デフォルト: 0）。
	GracePeriod time.Duration
}

// NewSessionJob は新しいSessionJobを生成する。
func NewSessionJob(db Executor, logger *slog.Logger) *SessionJob {
	return &SessionJob{db: db, logger: logger}
}

// Name はジョブ名を返す。
func (j *SessionJob) Name() string { return "session_cleanup" }

// Run はexpires_atが猶予を過ぎたセッションを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *SessionJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int64(j.GracePeriod/time.Second))

	query := `DELETE FROM sessions WHERE expires_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("セッションクリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗しました: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	j.logger.Info("セッションクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
