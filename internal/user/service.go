// Package user はユーザーアカウントの管理を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wallert/internal/model"
	"github.com/hitoshi/wallert/internal/repository"
	"github.com/hitoshi/wallert/internal/security"
)

// Service はユーザーアカウントの作成・検索・更新を行う。
// パスワードは必ずハッシュ化してから永続化し、平文はこの層の外に出さない。
type Service struct {
	userRepo repository.UserRepository
	hasher   security.PasswordHasherService
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, hasher security.PasswordHasherService) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
	}
}

// Create はユーザーを作成する。
// メールアドレスが既に登録されている場合はEmailConflictを返す。
// メールアドレス確認済みフラグは呼び出し側の文脈で決まる
// （確認トークン経由の登録ではtrue）。
func (s *Service) Create(ctx context.Context, email, name, password string, emailVerified bool) (*model.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:              uuid.New().String(),
		Email:           email,
		Name:            name,
		PasswordHash:    hash,
		IsEmailVerified: emailVerified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailConflictError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (s *Service) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// GetByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
// 存在の開示可否は呼び出し側の文脈で異なるため、ここではエラーに変換しない。
func (s *Service) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// VerifyPassword は平文パスワードを保存済みハッシュと照合する。
func (s *Service) VerifyPassword(user *model.User, password string) (bool, error) {
	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		return false, fmt.Errorf("failed to verify password: %w", err)
	}
	return ok, nil
}

// UpdatePassword はパスワードをハッシュ化して更新する。
func (s *Service) UpdatePassword(ctx context.Context, id, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, id, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// MarkEmailVerified はメールアドレス確認済みフラグを立てる。
func (s *Service) MarkEmailVerified(ctx context.Context, id string) error {
	if err := s.userRepo.MarkEmailVerified(ctx, id); err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return nil
}
