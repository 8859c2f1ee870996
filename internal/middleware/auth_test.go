package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/wallert/internal/model"
	"github.com/hitoshi/wallert/internal/token"
)

// mockVerifier はTokenVerifierのテスト用モック。
type mockVerifier struct {
	verifyFunc func(raw string, expected model.TokenType) (*token.Claims, error)
}

func (m *mockVerifier) Verify(raw string, expected model.TokenType) (*token.Claims, error) {
	return m.verifyFunc(raw, expected)
}

func TestAuthMiddleware(t *testing.T) {
	verifier := &mockVerifier{
		verifyFunc: func(raw string, expected model.TokenType) (*token.Claims, error) {
			if raw != "valid-token" {
				return nil, model.NewUnauthorizedError()
			}
			if expected != model.TokenTypeAccess {
				t.Errorf("expected type = %q, want access", expected)
			}
			claims := &token.Claims{}
			claims.Subject = "user-1"
			return claims, nil
		},
	}

	var gotUserID string
	handler := NewAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid bearer token", header: "Bearer valid-token", wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "not a bearer scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer bogus", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUserID = ""
			req := httptest.NewRequest(http.MethodGet, "/track", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotUserID != "user-1" {
				t.Errorf("user ID in context = %q, want user-1", gotUserID)
			}
		})
	}
}

func TestUserIDFromContextWithoutAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("UserIDFromContext() should fail without auth middleware")
	}
}
