// Package cleanup は期限切れデータの定期削除を提供する。
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/wallert/internal/repository"
)

// Worker は期限切れトークンを定期的に削除する。
// 期限切れトークンは検証で常に拒否されるため、削除は安全性に影響しない。
// テーブルの肥大化を防ぐための保守処理。
type Worker struct {
	tokenRepo repository.TokenRepository
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewWorker はWorkerを生成する。
func NewWorker(tokenRepo repository.TokenRepository, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		tokenRepo: tokenRepo,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Start は起動直後と以後interval間隔でRunOnceを実行する。
// ctxのキャンセルで停止する。
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("cleanup worker started", "interval", w.interval.String())

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce は期限切れトークンを1回削除する。
func (w *Worker) RunOnce(ctx context.Context) {
	deleted, err := w.tokenRepo.DeleteExpired(ctx, w.now())
	if err != nil {
		w.logger.Error("failed to delete expired tokens", "error", err)
		return
	}
	if deleted > 0 {
		w.logger.Info("expired tokens deleted", "count", deleted)
	}
}
