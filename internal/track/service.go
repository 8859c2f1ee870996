// Package track は巡回設定の管理を提供する。
// 巡回設定はユーザーが保存した検索条件と通知先の組で、
// ポーリングエンジンが定期的に新着を確認する対象になる。
package track

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wallert/internal/model"
	"github.com/hitoshi/wallert/internal/repository"
	"github.com/hitoshi/wallert/internal/security"
)

// FeedClient は検索APIクライアントのインターフェース。
type FeedClient interface {
	ValidateSearchURL(rawURL string) error
	FetchListings(ctx context.Context, queryURL string) ([]*model.Listing, error)
}

// UserLookup は通知先の既定値解決に使うユーザー検索のインターフェース。
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Service は巡回設定の作成・取得・更新・削除を行う。
// すべての操作は所有者単位で行われ、他ユーザーの設定には到達できない。
type Service struct {
	trackRepo repository.TrackRepository
	users     UserLookup
	feed      FeedClient
	guard     security.SSRFGuardService
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(trackRepo repository.TrackRepository, users UserLookup, feed FeedClient, guard security.SSRFGuardService, logger *slog.Logger) *Service {
	return &Service{
		trackRepo: trackRepo,
		users:     users,
		feed:      feed,
		guard:     guard,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateParams は巡回設定の作成パラメータ。
type CreateParams struct {
	Title           string
	Query           string
	IntervalMinutes int
	ContactType     model.ContactType
	ContactAddress  string
}

// Create は巡回設定を作成する。
// 検索URLは形式とSSRF安全性の両方を検証する。
// 作成時に初回の検索を実行してカーソルを初期化するため、
// 作成前から存在していた掲載は新着として通知されない。
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (*model.Track, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, model.NewValidationError("タイトルを入力してください。")
	}
	if !model.IsAllowedInterval(params.IntervalMinutes) {
		return nil, model.NewInvalidIntervalError(params.IntervalMinutes)
	}
	if err := s.feed.ValidateSearchURL(params.Query); err != nil {
		return nil, err
	}
	if err := s.guard.ValidateURL(params.Query); err != nil {
		return nil, model.NewInvalidQueryURLError()
	}

	contactType := params.ContactType
	if contactType == "" {
		contactType = model.ContactTypeEmail
	}
	if contactType != model.ContactTypeEmail && contactType != model.ContactTypeTelegram {
		return nil, model.NewValidationError("通知方法が不正です。")
	}

	contactAddress := strings.TrimSpace(params.ContactAddress)
	if contactAddress == "" && contactType == model.ContactTypeEmail {
		// 通知先の省略時は所有者のメールアドレスを使う
		owner, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, model.NewUnauthorizedError()
		}
		contactAddress = owner.Email
	}
	if contactAddress == "" {
		return nil, model.NewValidationError("通知先を入力してください。")
	}

	// 初回の検索でカーソルを現時点の最新掲載に合わせる
	listings, err := s.feed.FetchListings(ctx, params.Query)
	if err != nil {
		return nil, err
	}
	cursor := ""
	if len(listings) > 0 {
		cursor = listings[0].Token
	}

	now := s.now()
	track := &model.Track{
		ID:              uuid.New().String(),
		UserID:          userID,
		Title:           title,
		Query:           params.Query,
		IntervalMinutes: params.IntervalMinutes,
		IsActive:        true,
		LastCheckTime:   now,
		LastPostToken:   cursor,
		ContactType:     contactType,
		ContactAddress:  contactAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.trackRepo.Create(ctx, track); err != nil {
		return nil, err
	}

	s.logger.Info("track created",
		"track_id", track.ID, "user_id", userID, "interval_minutes", track.IntervalMinutes)
	return track, nil
}

// List は所有者の巡回設定一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Track, error) {
	return s.trackRepo.ListByUser(ctx, userID)
}

// Get は所有者の巡回設定を1件取得する。
// 存在しない、または所有者が異なる場合はNotFoundを返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Track, error) {
	track, err := s.trackRepo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, model.NewTrackNotFoundError()
	}
	return track, nil
}

// UpdateStatus は巡回の有効/無効を切り替える。
func (s *Service) UpdateStatus(ctx context.Context, userID, id string, isActive bool) (*model.Track, error) {
	track, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.trackRepo.UpdateStatus(ctx, track.ID, isActive); err != nil {
		return nil, err
	}
	track.IsActive = isActive

	s.logger.Info("track status updated", "track_id", track.ID, "is_active", isActive)
	return track, nil
}

// Delete は巡回設定を削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	track, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.trackRepo.Delete(ctx, track.ID); err != nil {
		return err
	}

	s.logger.Info("track deleted", "track_id", track.ID, "user_id", userID)
	return nil
}
