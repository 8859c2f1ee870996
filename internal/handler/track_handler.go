package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wallert/internal/middleware"
	"github.com/hitoshi/wallert/internal/model"
	"github.com/hitoshi/wallert/internal/track"
)

// TrackServiceInterface は巡回設定ハンドラーが必要とするサービスインターフェース。
type TrackServiceInterface interface {
	Create(ctx context.Context, userID string, params track.CreateParams) (*model.Track, error)
	List(ctx context.Context, userID string) ([]*model.Track, error)
	Get(ctx context.Context, userID, id string) (*model.Track, error)
	UpdateStatus(ctx context.Context, userID, id string, isActive bool) (*model.Track, error)
	Delete(ctx context.Context, userID, id string) error
}

// TrackHandler は巡回設定関連のHTTPハンドラー。
// すべてのエンドポイントは認証ミドルウェアの内側に配置される。
type TrackHandler struct {
	service TrackServiceInterface
}

// NewTrackHandler はTrackHandlerを生成する。
func NewTrackHandler(service TrackServiceInterface) *TrackHandler {
	return &TrackHandler{service: service}
}

// trackResponse は巡回設定のAPIレスポンス表現。
type trackResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Query          string    `json:"query"`
	Interval       int       `json:"interval"`
	IsActive       bool      `json:"isActive"`
	LastCheckTime  time.Time `json:"lastCheckTime"`
	ContactType    string    `json:"contactType"`
	ContactAddress string    `json:"contactAddress"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toTrackResponse(t *model.Track) trackResponse {
	return trackResponse{
		ID:             t.ID,
		Title:          t.Title,
		Query:          t.Query,
		Interval:       t.IntervalMinutes,
		IsActive:       t.IsActive,
		LastCheckTime:  t.LastCheckTime,
		ContactType:    string(t.ContactType),
		ContactAddress: t.ContactAddress,
		CreatedAt:      t.CreatedAt,
	}
}

// Create は巡回設定の作成を受け付ける。
// POST /track
func (h *TrackHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}

	var req struct {
		Title          string `json:"title"`
		Query          string `json:"query"`
		Interval       int    `json:"interval"`
		ContactType    string `json:"contactType"`
		ContactAddress string `json:"contactAddress"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), userID, track.CreateParams{
		Title:           req.Title,
		Query:           req.Query,
		IntervalMinutes: req.Interval,
		ContactType:     model.ContactType(req.ContactType),
		ContactAddress:  req.ContactAddress,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		StatusCode int           `json:"statusCode"`
		Message    string        `json:"message"`
		Track      trackResponse `json:"track"`
	}{
		StatusCode: http.StatusCreated,
		Message:    "巡回設定を作成しました。",
		Track:      toTrackResponse(created),
	})
}

// List は巡回設定の一覧を返す。
// GET /track
func (h *TrackHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}

	tracks, err := h.service.List(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	responses := make([]trackResponse, 0, len(tracks))
	for _, t := range tracks {
		responses = append(responses, toTrackResponse(t))
	}

	writeJSON(w, http.StatusOK, struct {
		StatusCode int             `json:"statusCode"`
		Tracks     []trackResponse `json:"tracks"`
	}{
		StatusCode: http.StatusOK,
		Tracks:     responses,
	})
}

// Get は巡回設定を1件返す。
// GET /track/{id}
func (h *TrackHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}

	found, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		StatusCode int           `json:"statusCode"`
		Track      trackResponse `json:"track"`
	}{
		StatusCode: http.StatusOK,
		Track:      toTrackResponse(found),
	})
}

// UpdateStatus は巡回の有効/無効の切り替えを受け付ける。
// PATCH /track/{id}/status
func (h *TrackHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}

	var req struct {
		IsActive *bool `json:"isActive"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.IsActive == nil {
		middleware.WriteErrorResponse(w, model.NewValidationError("isActiveを指定してください。"))
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), userID, chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		StatusCode int           `json:"statusCode"`
		Message    string        `json:"message"`
		Track      trackResponse `json:"track"`
	}{
		StatusCode: http.StatusOK,
		Message:    "巡回設定を更新しました。",
		Track:      toTrackResponse(updated),
	})
}

// Delete は巡回設定の削除を受け付ける。
// DELETE /track/{id}
func (h *TrackHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		StatusCode: http.StatusOK,
		Message:    "巡回設定を削除しました。",
	})
}
