// Package auth は認証フローのオーケストレーションを提供する。
// トークンの発行・検証はtokenパッケージ、アカウント操作はuserパッケージに
// 委譲し、この層はフロー全体の組み立てと失敗時の応答に責任を持つ。
package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/wallert/internal/model"
	"github.com/hitoshi/wallert/internal/token"
)

// TokenService はトークンの発行・検証・無効化のインターフェース。
type TokenService interface {
	Verify(raw string, expected model.TokenType) (*token.Claims, error)
	Validate(ctx context.Context, raw string, typ model.TokenType, userID string) (*model.Token, error)
	IssueAuthPair(ctx context.Context, userID string) (*model.TokenPair, error)
	IssueResetPasswordToken(ctx context.Context, userID, email string) (string, error)
	IssueVerifyEmailToken(ctx context.Context, userID, email string) (string, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string, typ model.TokenType) (int64, error)
}

// UserService はユーザーアカウント操作のインターフェース。
type UserService interface {
	Create(ctx context.Context, email, name, password string, emailVerified bool) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	VerifyPassword(user *model.User, password string) (bool, error)
	UpdatePassword(ctx context.Context, id, password string) error
	MarkEmailVerified(ctx context.Context, id string) error
}

// MailSender は認証フローが送信するメールのインターフェース。
type MailSender interface {
	SendResetPassword(ctx context.Context, to, resetToken string) error
	SendVerifyEmail(ctx context.Context, to, verifyToken string) error
}

// Service は認証フローを組み立てる。
type Service struct {
	tokens TokenService
	users  UserService
	mailer MailSender
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(tokens TokenService, users UserService, mailer MailSender, logger *slog.Logger) *Service {
	return &Service{
		tokens: tokens,
		users:  users,
		mailer: mailer,
		logger: logger,
	}
}

// RequestEmailVerification はメールアドレス確認メールを送信する。
// 登録フローの入口。アドレスが既に登録済みの場合はConflictを返す。
// 発行されるトークンはこの時点でユーザーが存在しないため所有者を持たない。
func (s *Service) RequestEmailVerification(ctx context.Context, email string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return model.NewEmailConflictError()
	}

	verifyToken, err := s.tokens.IssueVerifyEmailToken(ctx, "", email)
	if err != nil {
		return err
	}

	if err := s.mailer.SendVerifyEmail(ctx, email, verifyToken); err != nil {
		s.logger.Error("failed to send verification email", "error", err)
		return model.NewMailUnavailableError()
	}

	s.logger.Info("verification email sent", "email", email)
	return nil
}

// Register はメールアドレス確認済みトークンを消費してユーザーを登録する。
// メールアドレスは入力から受け取らず、トークンのemailクレームから取り出す。
// これによりアドレスの所有確認を経ずに登録することはできない。
// トークンは消費され、同じトークンでの再登録はUnauthorizedになる。
func (s *Service) Register(ctx context.Context, verifyToken, name, password string) (*model.User, *model.TokenPair, error) {
	claims, err := s.tokens.Verify(verifyToken, model.TokenTypeVerifyEmail)
	if err != nil {
		return nil, nil, err
	}

	record, err := s.tokens.Validate(ctx, verifyToken, model.TokenTypeVerifyEmail, "")
	if err != nil {
		return nil, nil, err
	}

	// 消費を登録より先に行う。登録が重複で失敗してもトークンは使い捨て。
	if err := s.tokens.DeleteByID(ctx, record.ID); err != nil {
		return nil, nil, err
	}

	user, err := s.users.Create(ctx, claims.Email, name, password, true)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.IssueAuthPair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, pair, nil
}

// Login はメールアドレスとパスワードで認証し、トークンペアを発行する。
// 失敗理由（ユーザー不在かパスワード誤りか）は応答から区別できない。
// 発行は既存セッションを暗黙に失効させる（ユーザーあたり1セッション）。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *model.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.users.VerifyPassword(user, password)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	pair, err := s.tokens.IssueAuthPair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return user, pair, nil
}

// Logout はrefreshトークンを検証し、対応するセッションを失効させる。
// ストアに存在しないトークン（失効済み・未知）はUnauthorized。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.Verify(refreshToken, model.TokenTypeRefresh)
	if err != nil {
		return err
	}

	record, err := s.tokens.Validate(ctx, refreshToken, model.TokenTypeRefresh, claims.Subject)
	if err != nil {
		return err
	}

	if err := s.tokens.DeleteByID(ctx, record.ID); err != nil {
		return err
	}

	s.logger.Info("user logged out", "user_id", claims.Subject)
	return nil
}

// Refresh はrefreshトークンを検証し、新しいトークンペアを発行する。
// 旧refreshトークンは発行時のローテーションで失効する（使い回し不可）。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.User, *model.TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, model.TokenTypeRefresh)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.tokens.Validate(ctx, refreshToken, model.TokenTypeRefresh, claims.Subject); err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, model.NewUnauthorizedError()
	}

	pair, err := s.tokens.IssueAuthPair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	return user, pair, nil
}

// RequestPasswordReset はパスワード再設定メールを送信する。
// アドレスが未登録の場合はNotFoundを返す（この文脈では存在の開示を許容する）。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	resetToken, err := s.tokens.IssueResetPasswordToken(ctx, user.ID, user.Email)
	if err != nil {
		return err
	}

	if err := s.mailer.SendResetPassword(ctx, user.Email, resetToken); err != nil {
		s.logger.Error("failed to send password reset email", "error", err)
		return model.NewMailUnavailableError()
	}

	s.logger.Info("password reset email sent", "user_id", user.ID)
	return nil
}

// ResetPassword は再設定トークンを消費し、パスワードを更新する。
// 更新後は全refreshトークンを削除し、既存セッションを失効させる。
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	claims, err := s.tokens.Verify(resetToken, model.TokenTypeResetPassword)
	if err != nil {
		return err
	}

	record, err := s.tokens.Validate(ctx, resetToken, model.TokenTypeResetPassword, claims.Subject)
	if err != nil {
		return err
	}

	if err := s.tokens.DeleteByID(ctx, record.ID); err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, claims.Subject, newPassword); err != nil {
		return err
	}

	// 漏洩した可能性のある認証情報で張られたセッションを道連れにする
	if _, err := s.tokens.DeleteAllForUser(ctx, claims.Subject, model.TokenTypeRefresh); err != nil {
		return err
	}

	s.logger.Info("password reset completed", "user_id", claims.Subject)
	return nil
}

// VerifyEmail は確認トークンを消費し、ユーザーのメールアドレスを確認済みにする。
// 所有者付きトークン（登録済みユーザーの再確認）を対象とする。
func (s *Service) VerifyEmail(ctx context.Context, verifyToken string) error {
	claims, err := s.tokens.Verify(verifyToken, model.TokenTypeVerifyEmail)
	if err != nil {
		return err
	}

	record, err := s.tokens.Validate(ctx, verifyToken, model.TokenTypeVerifyEmail, claims.Subject)
	if err != nil {
		return err
	}

	if err := s.tokens.DeleteByID(ctx, record.ID); err != nil {
		return err
	}

	userID := claims.Subject
	if userID == "" {
		// 所有者なしトークンはemailクレームでユーザーを解決する
		user, err := s.users.GetByEmail(ctx, claims.Email)
		if err != nil {
			return err
		}
		if user == nil {
			return model.NewUserNotFoundError()
		}
		userID = user.ID
	}

	if err := s.users.MarkEmailVerified(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("email verified", "user_id", userID)
	return nil
}
