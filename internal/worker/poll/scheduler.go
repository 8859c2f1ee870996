package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/wallert/internal/repository"
)

// Scheduler は一定間隔で全巡回設定を走査し、確認対象をPollerに渡す。
// 同時実行数はセマフォで制限し、1件の失敗が他の巡回を妨げないようにする。
type Scheduler struct {
	trackRepo     repository.TrackRepository
	poller        *Poller
	tick          time.Duration
	maxConcurrent int
	logger        *slog.Logger
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(trackRepo repository.TrackRepository, poller *Poller, tick time.Duration, maxConcurrent int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		trackRepo:     trackRepo,
		poller:        poller,
		tick:          tick,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Start はティックごとにRunOnceを実行する。
// 起動直後にも1回実行し、ctxのキャンセルで停止する。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("poll scheduler started",
		"tick", s.tick.String(), "max_concurrent", s.maxConcurrent)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("poll scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は全巡回設定を1回走査する。
// 巡回間隔の判定はPoller側で行うため、ここでは絞り込まない。
// すべての巡回が完了するまでブロックする。
func (s *Scheduler) RunOnce(ctx context.Context) {
	tracks, err := s.trackRepo.ListAll(ctx)
	if err != nil {
		s.logger.Error("failed to list tracks", "error", err)
		return
	}
	if len(tracks) == 0 {
		return
	}

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	for _, track := range tracks {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("poll panicked", "track_id", track.ID, "panic", r)
				}
			}()

			// 失敗はProcessTrack内で記録済み。他の巡回は継続する。
			_ = s.poller.ProcessTrack(ctx, track)
		}()
	}

	wg.Wait()
}
