package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/wallert/internal/middleware"
	"github.com/hitoshi/wallert/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// UserHandler はユーザー情報関連のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// Me は認証済みユーザー自身の情報を返す。
// 認証後にユーザーが削除されている場合はUnauthorizedになる。
// GET /user/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}

	found, err := h.service.GetByID(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if found == nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		StatusCode int              `json:"statusCode"`
		User       model.PublicUser `json:"user"`
	}{
		StatusCode: http.StatusOK,
		User:       found.Public(),
	})
}
