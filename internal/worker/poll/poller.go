package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/wallert/internal/metrics"
	"github.com/hitoshi/wallert/internal/model"
	"github.com/hitoshi/wallert/internal/repository"
)

// FeedClient は検索APIクライアントのインターフェース。
type FeedClient interface {
	FetchListings(ctx context.Context, queryURL string) ([]*model.Listing, error)
}

// Notifier は新着掲載の通知を送信するインターフェース。
type Notifier interface {
	SendNewListings(ctx context.Context, to, trackTitle string, listings []*model.Listing) error
}

// Poller は巡回設定1件の確認処理を行う。
// 検索の実行、新着判定、チェックポイント更新、通知送信をこの順で行う。
type Poller struct {
	trackRepo repository.TrackRepository
	feed      FeedClient
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewPoller はPollerを生成する。
func NewPoller(trackRepo repository.TrackRepository, feed FeedClient, notifier Notifier, m *metrics.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		trackRepo: trackRepo,
		feed:      feed,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessTrack は巡回設定1件を確認する。
//
// 検索に失敗した場合は状態を一切変更せず、次のティックで再試行される。
// チェックポイント更新は前回確認時刻が読み取り時の値と一致する場合のみ
// 成功し、並行するティックに先を越された場合は通知せずに終了する。
// これにより同じ新着が二重に通知されることはない。
func (p *Poller) ProcessTrack(ctx context.Context, track *model.Track) error {
	now := p.now()
	if !ShouldPoll(track, now) {
		p.metrics.PollsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	started := time.Now()
	defer func() {
		p.metrics.PollDuration.Observe(time.Since(started).Seconds())
	}()

	listings, err := p.feed.FetchListings(ctx, track.Query)
	if err != nil {
		p.metrics.PollsTotal.WithLabelValues("failure").Inc()
		p.logger.Warn("poll fetch failed", "track_id", track.ID, "error", err)
		return fmt.Errorf("failed to fetch listings for track %s: %w", track.ID, err)
	}

	fresh := LatestSince(listings, track.LastPostToken)

	// カーソルは今回見えた最新掲載へ進める。新着がなければ据え置く。
	cursor := track.LastPostToken
	if len(listings) > 0 {
		cursor = listings[0].Token
	}

	updated, err := p.trackRepo.UpdateCheckpoint(ctx, track.ID, now, cursor, track.LastCheckTime)
	if err != nil {
		p.metrics.PollsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to update checkpoint for track %s: %w", track.ID, err)
	}
	if !updated {
		// 並行ティックが先にチェックポイントを進めた。通知はそちらに任せる。
		p.metrics.PollsTotal.WithLabelValues("skipped").Inc()
		p.logger.Debug("checkpoint already advanced", "track_id", track.ID)
		return nil
	}

	p.metrics.PollsTotal.WithLabelValues("success").Inc()

	if len(fresh) == 0 {
		return nil
	}

	p.metrics.NewListingsTotal.Add(float64(len(fresh)))
	p.logger.Info("new listings detected",
		"track_id", track.ID, "count", len(fresh))

	return p.notify(ctx, track, fresh)
}

// notify は通知先の種別に応じて新着を送信する。
func (p *Poller) notify(ctx context.Context, track *model.Track, fresh []*model.Listing) error {
	switch track.ContactType {
	case model.ContactTypeEmail:
		if err := p.notifier.SendNewListings(ctx, track.ContactAddress, track.Title, fresh); err != nil {
			p.metrics.NotificationsTotal.WithLabelValues("failure").Inc()
			p.logger.Error("failed to send notification", "track_id", track.ID, "error", err)
			return fmt.Errorf("failed to notify for track %s: %w", track.ID, err)
		}
		p.metrics.NotificationsTotal.WithLabelValues("success").Inc()
		return nil
	case model.ContactTypeTelegram:
		// Telegram通知は未対応。設定としては受け付けるが送信しない。
		p.logger.Warn("telegram notifications are not supported", "track_id", track.ID)
		return nil
	default:
		p.logger.Error("unknown contact type", "track_id", track.ID, "contact_type", track.ContactType)
		return nil
	}
}
