// Package poll は巡回設定の定期確認と新着通知を行うポーリングエンジンを提供する。
package poll

import (
	"time"

	"github.com/hitoshi/wallert/internal/model"
)

// ShouldPoll は巡回設定が今回のティックで確認対象かどうかを判定する。
// 無効化された設定と、前回確認から巡回間隔が経過していない設定は対象外。
// 判定は純粋関数で、副作用を持たない。
func ShouldPoll(track *model.Track, now time.Time) bool {
	if !track.IsActive {
		return false
	}
	interval := time.Duration(track.IntervalMinutes) * time.Minute
	return !now.Before(track.LastCheckTime.Add(interval))
}
