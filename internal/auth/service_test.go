package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/wallert/internal/model"
	"github.com/hitoshi/wallert/internal/token"
)

// mockTokenService はTokenServiceのテスト用モック。
type mockTokenService struct {
	verifyFunc                  func(raw string, expected model.TokenType) (*token.Claims, error)
	validateFunc                func(ctx context.Context, raw string, typ model.TokenType, userID string) (*model.Token, error)
	issueAuthPairFunc           func(ctx context.Context, userID string) (*model.TokenPair, error)
	issueResetPasswordTokenFunc func(ctx context.Context, userID, email string) (string, error)
	issueVerifyEmailTokenFunc   func(ctx context.Context, userID, email string) (string, error)
	deleteByIDFunc              func(ctx context.Context, id string) error
	deleteAllForUserFunc        func(ctx context.Context, userID string, typ model.TokenType) (int64, error)
}

func (m *mockTokenService) Verify(raw string, expected model.TokenType) (*token.Claims, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(raw, expected)
	}
	return &token.Claims{}, nil
}

func (m *mockTokenService) Validate(ctx context.Context, raw string, typ model.TokenType, userID string) (*model.Token, error) {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, raw, typ, userID)
	}
	return &model.Token{ID: "tok-1"}, nil
}

func (m *mockTokenService) IssueAuthPair(ctx context.Context, userID string) (*model.TokenPair, error) {
	if m.issueAuthPairFunc != nil {
		return m.issueAuthPairFunc(ctx, userID)
	}
	return &model.TokenPair{}, nil
}

func (m *mockTokenService) IssueResetPasswordToken(ctx context.Context, userID, email string) (string, error) {
	if m.issueResetPasswordTokenFunc != nil {
		return m.issueResetPasswordTokenFunc(ctx, userID, email)
	}
	return "reset-token", nil
}

func (m *mockTokenService) IssueVerifyEmailToken(ctx context.Context, userID, email string) (string, error) {
	if m.issueVerifyEmailTokenFunc != nil {
		return m.issueVerifyEmailTokenFunc(ctx, userID, email)
	}
	return "verify-token", nil
}

func (m *mockTokenService) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFunc != nil {
		return m.deleteByIDFunc(ctx, id)
	}
	return nil
}

func (m *mockTokenService) DeleteAllForUser(ctx context.Context, userID string, typ model.TokenType) (int64, error) {
	if m.deleteAllForUserFunc != nil {
		return m.deleteAllForUserFunc(ctx, userID, typ)
	}
	return 0, nil
}

// mockUserService はUserServiceのテスト用モック。
type mockUserService struct {
	createFunc            func(ctx context.Context, email, name, password string, emailVerified bool) (*model.User, error)
	getByIDFunc           func(ctx context.Context, id string) (*model.User, error)
	getByEmailFunc        func(ctx context.Context, email string) (*model.User, error)
	verifyPasswordFunc    func(user *model.User, password string) (bool, error)
	updatePasswordFunc    func(ctx context.Context, id, password string) error
	markEmailVerifiedFunc func(ctx context.Context, id string) error
}

func (m *mockUserService) Create(ctx context.Context, email, name, password string, emailVerified bool) (*model.User, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, email, name, password, emailVerified)
	}
	return &model.User{ID: "user-1", Email: email, Name: name, IsEmailVerified: emailVerified}, nil
}

func (m *mockUserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockUserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.getByEmailFunc != nil {
		return m.getByEmailFunc(ctx, email)
	}
	return nil, nil
}

func (m *mockUserService) VerifyPassword(user *model.User, password string) (bool, error) {
	if m.verifyPasswordFunc != nil {
		return m.verifyPasswordFunc(user, password)
	}
	return false, nil
}

func (m *mockUserService) UpdatePassword(ctx context.Context, id, password string) error {
	if m.updatePasswordFunc != nil {
		return m.updatePasswordFunc(ctx, id, password)
	}
	return nil
}

func (m *mockUserService) MarkEmailVerified(ctx context.Context, id string) error {
	if m.markEmailVerifiedFunc != nil {
		return m.markEmailVerifiedFunc(ctx, id)
	}
	return nil
}

// mockMailSender はMailSenderのテスト用モック。
type mockMailSender struct {
	sendResetPasswordFunc func(ctx context.Context, to, resetToken string) error
	sendVerifyEmailFunc   func(ctx context.Context, to, verifyToken string) error
}

func (m *mockMailSender) SendResetPassword(ctx context.Context, to, resetToken string) error {
	if m.sendResetPasswordFunc != nil {
		return m.sendResetPasswordFunc(ctx, to, resetToken)
	}
	return nil
}

func (m *mockMailSender) SendVerifyEmail(ctx context.Context, to, verifyToken string) error {
	if m.sendVerifyEmailFunc != nil {
		return m.sendVerifyEmailFunc(ctx, to, verifyToken)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func claimsFor(userID, email string, typ model.TokenType) *token.Claims {
	return &token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		Type:             typ,
		Email:            email,
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError with code %s", err, code)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %s, want %s", apiErr.Code, code)
	}
}

func TestRegister(t *testing.T) {
	deletedTokenID := ""
	tokens := &mockTokenService{
		verifyFunc: func(raw string, expected model.TokenType) (*token.Claims, error) {
			return claimsFor("", "new@example.com", model.TokenTypeVerifyEmail), nil
		},
		validateFunc: func(ctx context.Context, raw string, typ model.TokenType, userID string) (*model.Token, error) {
			return &model.Token{ID: "tok-verify"}, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) error {
			deletedTokenID = id
			return nil
		},
	}
	var createdEmail string
	var createdVerified bool
	users := &mockUserService{
		createFunc: func(ctx context.Context, email, name, password string, emailVerified bool) (*model.User, error) {
			createdEmail = email
			createdVerified = emailVerified
			return &model.User{ID: "user-1", Email: email, Name: name, IsEmailVerified: emailVerified}, nil
		},
	}
	svc := NewService(tokens, users, &mockMailSender{}, testLogger())

	user, pair, err := svc.Register(context.Background(), "raw-verify-token", "Taro", "secret123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.ID != "user-1" || pair == nil {
		t.Errorf("unexpected result: user=%+v pair=%v", user, pair)
	}
	// メールアドレスは入力ではなくトークンのクレームから採用される
	if createdEmail != "new@example.com" {
		t.Errorf("created email = %q, want %q", createdEmail, "new@example.com")
	}
	if !createdVerified {
		t.Error("user should be created as email-verified")
	}
	if deletedTokenID != "tok-verify" {
		t.Error("verify token was not consumed")
	}
}

func TestRegisterRejectsConsumedToken(t *testing.T) {
	tokens := &mockTokenService{
		verifyFunc: func(raw string, expected model.TokenType) (*token.Claims, error) {
			return claimsFor("", "new@example.com", model.TokenTypeVerifyEmail), nil
		},
		validateFunc: func(ctx context.Context, raw string, typ model.TokenType, userID string) (*model.Token, error) {
			// 署名は有効だがストアに存在しない = 消費済み
			return nil, model.NewUnauthorizedError()
		},
	}
	svc := NewService(tokens, &mockUserService{}, &mockMailSender{}, testLogger())

	_, _, err := svc.Register(context.Background(), "consumed-token", "Taro", "secret123")
	assertCode(t, err, model.ErrCodeUnauthorized)
}

func TestLogin(t *testing.T) {
	stored := &model.User{ID: "user-1", Email: "u@example.com"}

	tests := []struct {
		name     string
		found    *model.User
		password bool
		wantCode string
	}{
		{name: "success", found: stored, password: true},
		{name: "unknown email", found: nil, wantCode: model.ErrCodeInvalidCredentials},
		{name: "wrong password", found: stored, password: false, wantCode: model.ErrCodeInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserService{
				getByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
					return tt.found, nil
				},
				verifyPasswordFunc: func(user *model.User, password string) (bool, error) {
					return tt.password, nil
				},
			}
			svc := NewService(&mockTokenService{}, users, &mockMailSender{}, testLogger())

			user, pair, err := svc.Login(context.Background(), "u@example.com", "secret123")
			if tt.wantCode != "" {
				assertCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if user.ID != "user-1" || pair == nil {
				t.Errorf("unexpected result: user=%+v pair=%v", user, pair)
			}
		})
	}
}

func TestLogoutDeletesStoredToken(t *testing.T) {
	deleted := ""
	tokens := &mockTokenService{
		verifyFunc: func(raw string, expected model.TokenType) (*token.Claims, error) {
			return claimsFor("user-1", "", model.TokenTypeRefresh), nil
		},
		validateFunc: func(ctx context.Context, raw string, typ model.TokenType, userID string) (*model.Token, error) {
			if userID != "user-1" {
				t.Errorf("Validate userID = %q, want %q", userID, "user-1")
			}
			return &model.Token{ID: "tok-refresh", UserID: "user-1"}, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := NewService(tokens, &mockUserService{}, &mockMailSender{}, testLogger())

	if err := svc.Logout(context.Background(), "raw-refresh"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deleted != "tok-refresh" {
		t.Error("stored refresh token was not deleted")
	}
}

func TestLogoutRejectsUnknownToken(t *testing.T) {
	tokens := &mockTokenService{
		verifyFunc: func(raw string, expected model.TokenType) (*token.Claims, error) {
			return claimsFor("user-1", "", model.TokenTypeRefresh), nil
		},
		validateFunc: func(ctx context.Context, raw string, typ model.TokenType, userID string) (*model.Token, error) {
			return nil, model.NewUnauthorizedError()
		},
	}
	svc := NewService(tokens, &mockUserService{}, &mockMailSender{}, testLogger())

	err := svc.Logout(context.Background(), "unknown-refresh")
	assertCode(t, err, model.ErrCodeUnauthorized)
}

func TestRefreshIssuesNewPair(t *testing.T) {
	issuedFor := ""
	tokens := &mockTokenService{
		verifyFunc: func(raw string, expected model.TokenType) (*token.Claims, error) {
			return claimsFor("user-1", "", model.TokenTypeRefresh), nil
		},
		issueAuthPairFunc: func(ctx context.Context, userID string) (*model.TokenPair, error) {
			issuedFor = userID
			return &model.TokenPair{}, nil
		},
	}
	users := &mockUserService{
		getByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}
	svc := NewService(tokens, users, &mockMailSender{}, testLogger())

	user, pair, err := svc.Refresh(context.Background(), "raw-refresh")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if user.ID != "user-1" || pair == nil {
		t.Errorf("unexpected result: user=%+v pair=%v", user, pair)
	}
	if issuedFor != "user-1" {
		t.Errorf("pair issued for %q, want %q", issuedFor, "user-1")
	}
}

func TestRequestPasswordReset(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		svc := NewService(&mockTokenService{}, &mockUserService{}, &mockMailSender{}, testLogger())
		err := svc.RequestPasswordReset(context.Background(), "nobody@example.com")
		assertCode(t, err, model.ErrCodeUserNotFound)
	})

	t.Run("mail failure surfaces as service unavailable", func(t *testing.T) {
		users := &mockUserService{
			getByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
				return &model.User{ID: "user-1", Email: email}, nil
			},
		}
		mailer := &mockMailSender{
			sendResetPasswordFunc: func(ctx context.Context, to, resetToken string) error {
				return errors.New("smtp connection refused")
			},
		}
		svc := NewService(&mockTokenService{}, users, mailer, testLogger())
		err := svc.RequestPasswordReset(context.Background(), "u@example.com")
		assertCode(t, err, model.ErrCodeMailUnavailable)
	})

	t.Run("success", func(t *testing.T) {
		users := &mockUserService{
			getByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
				return &model.User{ID: "user-1", Email: email}, nil
			},
		}
		sentTo := ""
		mailer := &mockMailSender{
			sendResetPasswordFunc: func(ctx context.Context, to, resetToken string) error {
				sentTo = to
				return nil
			},
		}
		svc := NewService(&mockTokenService{}, users, mailer, testLogger())
		if err := svc.RequestPasswordReset(context.Background(), "u@example.com"); err != nil {
			t.Fatalf("RequestPasswordReset() error = %v", err)
		}
		if sentTo != "u@example.com" {
			t.Errorf("mail sent to %q, want %q", sentTo, "u@example.com")
		}
	})
}

func TestResetPasswordInvalidatesSessions(t *testing.T) {
	consumed := ""
	var killedType model.TokenType
	tokens := &mockTokenService{
		verifyFunc: func(raw string, expected model.TokenType) (*token.Claims, error) {
			return claimsFor("user-1", "u@example.com", model.TokenTypeResetPassword), nil
		},
		validateFunc: func(ctx context.Context, raw string, typ model.TokenType, userID string) (*model.Token, error) {
			return &model.Token{ID: "tok-reset", UserID: "user-1"}, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) error {
			consumed = id
			return nil
		},
		deleteAllForUserFunc: func(ctx context.Context, userID string, typ model.TokenType) (int64, error) {
			killedType = typ
			return 1, nil
		},
	}
	updated := false
	users := &mockUserService{
		updatePasswordFunc: func(ctx context.Context, id, password string) error {
			updated = true
			return nil
		},
	}
	svc := NewService(tokens, users, &mockMailSender{}, testLogger())

	if err := svc.ResetPassword(context.Background(), "raw-reset", "newsecret"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if consumed != "tok-reset" {
		t.Error("reset token was not consumed")
	}
	if !updated {
		t.Error("password was not updated")
	}
	if killedType != model.TokenTypeRefresh {
		t.Error("refresh tokens were not invalidated")
	}
}

func TestRequestEmailVerificationRejectsRegisteredEmail(t *testing.T) {
	users := &mockUserService{
		getByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email}, nil
		},
	}
	svc := NewService(&mockTokenService{}, users, &mockMailSender{}, testLogger())

	err := svc.RequestEmailVerification(context.Background(), "taken@example.com")
	assertCode(t, err, model.ErrCodeEmailConflict)
}

func TestVerifyEmailResolvesOwnerlessToken(t *testing.T) {
	tokens := &mockTokenService{
		verifyFunc: func(raw string, expected model.TokenType) (*token.Claims, error) {
			return claimsFor("", "u@example.com", model.TokenTypeVerifyEmail), nil
		},
		validateFunc: func(ctx context.Context, raw string, typ model.TokenType, userID string) (*model.Token, error) {
			return &model.Token{ID: "tok-verify"}, nil
		},
	}
	marked := ""
	users := &mockUserService{
		getByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email}, nil
		},
		markEmailVerifiedFunc: func(ctx context.Context, id string) error {
			marked = id
			return nil
		},
	}
	svc := NewService(tokens, users, &mockMailSender{}, testLogger())

	if err := svc.VerifyEmail(context.Background(), "raw-verify"); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}
	if marked != "user-1" {
		t.Errorf("marked user = %q, want %q", marked, "user-1")
	}
}
