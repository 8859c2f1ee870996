// Package token はトークンの発行・検証・無効化を提供する。
// 署名付きトークンのライフサイクル管理の唯一の窓口であり、
// 他の層はこのサービスを経由せずにトークンを生成・解釈してはならない。
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/wallert/internal/model"
	"github.com/hitoshi/wallert/internal/repository"
)

// Claims は署名付きトークンのペイロードを表す。
// Typeはトークンの用途種別で、検証時に必ず期待種別と照合する。
// EmailはresetPassword/verifyEmailトークンにのみ含まれる。
type Claims struct {
	jwt.RegisteredClaims
	Type  model.TokenType `json:"type"`
	Email string          `json:"email,omitempty"`
}

// ServiceConfig はトークンサービスの設定。
type ServiceConfig struct {
	Secret           []byte
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	ResetPasswordTTL time.Duration
	VerifyEmailTTL   time.Duration
}

// Service はトークンの発行・検証・無効化を行う。
// 時刻はnowフィールド経由で取得し、テストで差し替え可能にする。
type Service struct {
	tokenRepo repository.TokenRepository
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(tokenRepo repository.TokenRepository, config ServiceConfig) *Service {
	return &Service{
		tokenRepo: tokenRepo,
		config:    config,
		now:       time.Now,
	}
}

// Generate は署名付きトークン文字列を生成する。
// ペイロードは {sub, iat, exp, type, email?}。HMAC-SHA256で署名する。
// userIDは登録前のverifyEmailトークンでは空文字を渡す。
func (s *Service) Generate(userID, email string, expiresAt time.Time, typ model.TokenType) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type:  typ,
		Email: email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify は署名と有効期限を暗号的に検証し、種別の一致を確認する。
// 署名不正・期限切れ・種別不一致はすべてUnauthorizedとして返す。
// ストアへの問い合わせは行わない。永続化トークンにはValidateを併用すること。
func (s *Service) Verify(raw string, expected model.TokenType) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.config.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, model.NewUnauthorizedError()
	}

	// 用途の異なるトークンの流用を防ぐ。access⇔refresh等の混用は全て拒否。
	if claims.Type != expected {
		return nil, model.NewUnauthorizedError()
	}

	return claims, nil
}

// IssueAuthPair はaccess/refreshトークンの組を発行する。
// accessトークンは短命で永続化しない。refreshトークンは永続化し、
// 保存前に所有者の既存refreshトークンを同一トランザクションで全て削除する。
// これによりユーザーあたり有効なrefreshトークンは常に最大1つとなる
// （新しいログインは他端末のセッションを暗黙に無効化する）。
func (s *Service) IssueAuthPair(ctx context.Context, userID string) (*model.TokenPair, error) {
	now := s.now()

	accessExpires := now.Add(s.config.AccessTTL)
	access, err := s.Generate(userID, "", accessExpires, model.TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	refreshExpires := now.Add(s.config.RefreshTTL)
	refresh, err := s.Generate(userID, "", refreshExpires, model.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	record := &model.Token{
		ID:        uuid.New().String(),
		Value:     refresh,
		UserID:    userID,
		Type:      model.TokenTypeRefresh,
		ExpiresAt: refreshExpires,
		CreatedAt: now,
	}
	if err := s.tokenRepo.RotateRefresh(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return &model.TokenPair{
		Access:  model.TokenWithExpiry{Token: access, ExpiresAt: accessExpires},
		Refresh: model.TokenWithExpiry{Token: refresh, ExpiresAt: refreshExpires},
	}, nil
}

// Validate は永続化トークンを検索し、所有者と有効期限を確認する。
// userIDが空でない場合は所有者の一致も要求する。
// ストアの一致だけでは不十分なため、有効期限は必ずここで現在時刻と比較する。
// 見つからない・所有者不一致・期限切れはすべてUnauthorized。
func (s *Service) Validate(ctx context.Context, raw string, typ model.TokenType, userID string) (*model.Token, error) {
	record, err := s.tokenRepo.FindByValueAndType(ctx, raw, typ)
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if record == nil {
		return nil, model.NewUnauthorizedError()
	}
	if userID != "" && record.UserID != userID {
		return nil, model.NewUnauthorizedError()
	}
	if !record.ExpiresAt.After(s.now()) {
		return nil, model.NewUnauthorizedError()
	}
	return record, nil
}

// DeleteByID は永続化トークンをIDで削除する。
// ログアウトとワンタイムトークンの消費で使用する。
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	if err := s.tokenRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// DeleteAllForUser は指定ユーザーの指定種別トークンを全て削除する。
// パスワード再設定後のセッション失効等で使用する。
func (s *Service) DeleteAllForUser(ctx context.Context, userID string, typ model.TokenType) (int64, error) {
	deleted, err := s.tokenRepo.DeleteByUserAndType(ctx, userID, typ)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tokens: %w", err)
	}
	return deleted, nil
}

// IssueResetPasswordToken はパスワード再設定用のワンタイムトークンを発行する。
// 既存の同種別トークンを先に削除するため、有効なトークンは常に最新の1つのみ。
func (s *Service) IssueResetPasswordToken(ctx context.Context, userID, email string) (string, error) {
	expires := s.now().Add(s.config.ResetPasswordTTL)
	return s.issuePurposeToken(ctx, userID, email, expires, model.TokenTypeResetPassword)
}

// IssueVerifyEmailToken はメールアドレス確認用のワンタイムトークンを発行する。
// 登録前の発行ではuserIDに空文字を渡す。この場合トークンは所有者なしで
// 永続化され、メールアドレスの所有証明はemailクレームが担う。
func (s *Service) IssueVerifyEmailToken(ctx context.Context, userID, email string) (string, error) {
	expires := s.now().Add(s.config.VerifyEmailTTL)
	return s.issuePurposeToken(ctx, userID, email, expires, model.TokenTypeVerifyEmail)
}

// issuePurposeToken はワンタイムトークンの生成と永続化を行う。
func (s *Service) issuePurposeToken(ctx context.Context, userID, email string, expires time.Time, typ model.TokenType) (string, error) {
	value, err := s.Generate(userID, email, expires, typ)
	if err != nil {
		return "", err
	}

	if userID != "" {
		if _, err := s.tokenRepo.DeleteByUserAndType(ctx, userID, typ); err != nil {
			return "", fmt.Errorf("failed to delete prior tokens: %w", err)
		}
	}

	record := &model.Token{
		ID:        uuid.New().String(),
		Value:     value,
		UserID:    userID,
		Type:      typ,
		ExpiresAt: expires,
		CreatedAt: s.now(),
	}
	if err := s.tokenRepo.Create(ctx, record); err != nil {
		return "", fmt.Errorf("failed to save token: %w", err)
	}

	return value, nil
}
