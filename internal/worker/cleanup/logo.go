package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/geostats/probono/internal/blob"
	"github.com/geostats/probono/internal/metrics"
)

// LogoReferenceLister は組織が参照中のロゴURLを返す。
// repository.PostgresOrganizationRepoが実装する。
type LogoReferenceLister interface {
	ListLogoURLs(ctx context.Context) ([]string, error)
}

// LogoStore はロゴの列挙と削除に使うストレージ操作。
type LogoStore interface {
	blob.Lister
	Delete(ctx context.Context, url string) error
}

// LogoJob はどの組織からも参照されていないロゴを削除するジョブ。
// 組織の削除やロゴの差し替えでストレージ削除に失敗した場合に残ったオブジェクトを回収する。
type LogoJob struct {
	refs    LogoReferenceLister
	store   LogoStore
	prefix  string
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time

	// MinAge より新しいオブジェクトは削除しない。
	// アップロード直後でURLをまだ保存していないロゴを消さないための猶予。
	MinAge time.Duration
}

// NewLogoJob は新しいLogoJobを生成する。prefixはロゴのキープレフィックス。
func NewLogoJob(refs LogoReferenceLister, store LogoStore, prefix string, logger *slog.Logger, collector metrics.MetricsCollector) *LogoJob {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &LogoJob{
		refs:    refs,
		store:   store,
		prefix:  prefix,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
		MinAge:  24 * time.Hour,
	}
}

// Name はジョブ名を返す。
func (j *LogoJob) Name() string { return "orphan_logo_cleanup" }

// Run は参照されていないロゴを削除する。
// 個々の削除失敗はログに残して続行し、次回の実行で再試行される。
func (j *LogoJob) Run(ctx context.Context) error {
	start := j.now()

	urls, err := j.refs.ListLogoURLs(ctx)
	if err != nil {
		return fmt.Errorf("参照中のロゴURLの取得に失敗しました: %w", err)
	}
	referenced := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		referenced[u] = struct{}{}
	}

	objects, err := j.store.List(ctx, j.prefix+"/")
	if err != nil {
		return fmt.Errorf("ロゴの一覧取得に失敗しました: %w", err)
	}

	cutoff := start.Add(-j.MinAge)
	var deleted, failed int
	for _, o := range objects {
		if _, ok := referenced[o.URL]; ok {
			continue
		}
		if o.LastModified.After(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, o.URL); err != nil {
			failed++
			j.metrics.RecordBlobDelete(false)
			j.logger.Warn("未参照ロゴの削除に失敗しました",
				slog.String("key", o.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
		j.metrics.RecordBlobDelete(true)
	}

	j.logger.Info("未参照ロゴのクリーンアップが完了しました",
		slog.Int("scanned_count", len(objects)),
		slog.Int("deleted_count", deleted),
		slog.Int("failed_count", failed),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}
