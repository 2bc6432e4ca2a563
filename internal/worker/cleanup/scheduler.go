// Package cleanup はワーカーで定期実行するクリーンアップジョブを提供する。
// 期限切れセッションと未参照ロゴを削除する。
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job は定期実行されるクリーンアップジョブ。
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler は一定間隔でジョブを実行する。
// 各サイクルでは全ジョブを最大maxConcurrency並列で実行し、全て終わるまで待つ。
type Scheduler struct {
	jobs           []Job
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合は1（逐次実行）を使用する。
func NewScheduler(logger *slog.Logger, maxConcurrency int, jobs ...Job) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Scheduler{
		jobs:           jobs,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はintervalごとにRunOnceを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで戻らない。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("クリーンアップスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("job_count", len(s.jobs)),
	)

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("クリーンアップスケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は全ジョブを1回実行し、失敗したジョブの数を返す。
// 1つのジョブの失敗は他のジョブに影響しない。
func (s *Scheduler) RunOnce(ctx context.Context) int {
	sem := make(chan struct{}, s.maxConcurrency)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)

	for _, job := range s.jobs {
		wg.Add(1)
		sem <- struct{}{}

		go func(j Job) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := j.Run(ctx); err != nil {
				s.logger.Error("クリーンアップジョブが失敗しました",
					slog.String("job", j.Name()),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(job)
	}

	wg.Wait()
	return failed
}
