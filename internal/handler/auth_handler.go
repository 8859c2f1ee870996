// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/hitoshi/wallert/internal/middleware"
	"github.com/hitoshi/wallert/internal/model"
)

// refreshCookieName はrefreshトークンを保持するHTTP Only Cookieの名前。
const refreshCookieName = "wallert_refresh_token"

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 8

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	RequestEmailVerification(ctx context.Context, email string) error
	Register(ctx context.Context, verifyToken, name, password string) (*model.User, *model.TokenPair, error)
	Login(ctx context.Context, email, password string) (*model.User, *model.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*model.User, *model.TokenPair, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	VerifyEmail(ctx context.Context, verifyToken string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler は認証関連のHTTPハンドラー。
// refreshトークンはレスポンスボディに載せず、HTTP Only Cookieで受け渡す。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// authResponse は認証成功時の統一レスポンス。
type authResponse struct {
	StatusCode  int                    `json:"statusCode"`
	Message     string                 `json:"message"`
	User        model.PublicUser       `json:"user"`
	AccessToken *model.TokenWithExpiry `json:"access_token"`
}

// messageResponse は処理結果のみを返すレスポンス。
type messageResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// SendVerificationEmail はメールアドレス確認メールの送信を受け付ける。
// POST /auth/send-verification-email
func (h *AuthHandler) SendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := validateEmail(req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}

	if err := h.service.RequestEmailVerification(r.Context(), req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		StatusCode: http.StatusOK,
		Message:    "確認メールを送信しました。",
	})
}

// Register は確認トークンによるユーザー登録を受け付ける。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Token == "" {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}
	if req.Name == "" {
		middleware.WriteErrorResponse(w, model.NewValidationError("名前を入力してください。"))
		return
	}
	if err := validatePassword(req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}

	user, pair, err := h.service.Register(r.Context(), req.Token, req.Name, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	h.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusCreated, authResponse{
		StatusCode:  http.StatusCreated,
		Message:     "登録が完了しました。",
		User:        user.Public(),
		AccessToken: &pair.Access,
	})
}

// Login はログインを受け付ける。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		// 入力不備も認証失敗と同じ応答にし、探りの手がかりを与えない
		middleware.WriteErrorResponse(w, model.NewInvalidCredentialsError())
		return
	}

	user, pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	h.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, authResponse{
		StatusCode:  http.StatusOK,
		Message:     "ログインしました。",
		User:        user.Public(),
		AccessToken: &pair.Access,
	})
}

// Logout はセッションを失効させる。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
		h.clearRefreshCookie(w)
		middleware.WriteError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{
		StatusCode: http.StatusOK,
		Message:    "ログアウトしました。",
	})
}

// Refresh はrefreshトークンによるトークンペアの再発行を受け付ける。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}

	user, pair, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		h.clearRefreshCookie(w)
		middleware.WriteError(w, err)
		return
	}

	h.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, authResponse{
		StatusCode:  http.StatusOK,
		Message:     "トークンを更新しました。",
		User:        user.Public(),
		AccessToken: &pair.Access,
	})
}

// ForgotPassword はパスワード再設定メールの送信を受け付ける。
// POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := validateEmail(req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		StatusCode: http.StatusOK,
		Message:    "パスワード再設定メールを送信しました。",
	})
}

// ResetPassword は再設定トークンによるパスワード更新を受け付ける。
// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Token == "" {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}
	if err := validatePassword(req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		StatusCode: http.StatusOK,
		Message:    "パスワードを再設定しました。再度ログインしてください。",
	})
}

// VerifyEmail は確認トークンによるメールアドレス確認を受け付ける。
// POST /auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Token == "" {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}

	if err := h.service.VerifyEmail(r.Context(), req.Token); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		StatusCode: http.StatusOK,
		Message:    "メールアドレスを確認しました。",
	})
}

// setRefreshCookie はrefreshトークンをHTTP Only Cookieに設定する。
// フロントエンドが別オリジンでホストされるため、SameSiteはNoneにする。
func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, pair *model.TokenPair) {
	maxAge := int(time.Until(pair.Refresh.ExpiresAt).Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.Refresh.Token,
		Path:     "/auth",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteNoneMode,
	})
}

// clearRefreshCookie はrefreshトークンのCookieを削除する。
func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteNoneMode,
	})
}

// decodeBody はJSONリクエストボディをデコードする。
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewValidationError("リクエストの形式が正しくありません。")
	}
	return nil
}

// validateEmail はメールアドレスの形式を検証する。
func validateEmail(email string) error {
	if email == "" {
		return model.NewValidationError("メールアドレスを入力してください。")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.NewValidationError("メールアドレスの形式が正しくありません。")
	}
	return nil
}

// validatePassword はパスワードの最小要件を検証する。
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return model.NewValidationError("パスワードは8文字以上で入力してください。")
	}
	return nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
