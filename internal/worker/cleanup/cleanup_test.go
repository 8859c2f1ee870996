package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/wallert/internal/model"
)

// mockTokenRepo はTokenRepositoryのテスト用モック。
type mockTokenRepo struct {
	deleteExpiredFunc func(ctx context.Context, before time.Time) (int64, error)
}

func (m *mockTokenRepo) Create(ctx context.Context, token *model.Token) error { return nil }

func (m *mockTokenRepo) FindByValueAndType(ctx context.Context, value string, typ model.TokenType) (*model.Token, error) {
	return nil, nil
}

func (m *mockTokenRepo) DeleteByID(ctx context.Context, id string) error { return nil }

func (m *mockTokenRepo) DeleteByUserAndType(ctx context.Context, userID string, typ model.TokenType) (int64, error) {
	return 0, nil
}

func (m *mockTokenRepo) RotateRefresh(ctx context.Context, token *model.Token) error { return nil }

func (m *mockTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if m.deleteExpiredFunc != nil {
		return m.deleteExpiredFunc(ctx, before)
	}
	return 0, nil
}

func TestRunOncePassesCurrentTime(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var gotBefore time.Time
	repo := &mockTokenRepo{
		deleteExpiredFunc: func(ctx context.Context, before time.Time) (int64, error) {
			gotBefore = before
			return 3, nil
		},
	}
	w := NewWorker(repo, 24*time.Hour, slog.New(slog.DiscardHandler))
	w.now = func() time.Time { return base }

	w.RunOnce(context.Background())

	if !gotBefore.Equal(base) {
		t.Errorf("DeleteExpired before = %v, want %v", gotBefore, base)
	}
}

func TestRunOnceToleratesFailure(t *testing.T) {
	repo := &mockTokenRepo{
		deleteExpiredFunc: func(ctx context.Context, before time.Time) (int64, error) {
			return 0, errors.New("db down")
		},
	}
	w := NewWorker(repo, 24*time.Hour, slog.New(slog.DiscardHandler))

	// エラーはログに記録されるだけで、パニックや停止は起こさない
	w.RunOnce(context.Background())
}
