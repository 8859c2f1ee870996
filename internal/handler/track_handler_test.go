package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wallert/internal/middleware"
	"github.com/hitoshi/wallert/internal/model"
	"github.com/hitoshi/wallert/internal/track"
)

// mockTrackService はTrackServiceInterfaceのテスト用モック。
type mockTrackService struct {
	createFunc       func(ctx context.Context, userID string, params track.CreateParams) (*model.Track, error)
	listFunc         func(ctx context.Context, userID string) ([]*model.Track, error)
	getFunc          func(ctx context.Context, userID, id string) (*model.Track, error)
	updateStatusFunc func(ctx context.Context, userID, id string, isActive bool) (*model.Track, error)
	deleteFunc       func(ctx context.Context, userID, id string) error
}

func (m *mockTrackService) Create(ctx context.Context, userID string, params track.CreateParams) (*model.Track, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, userID, params)
	}
	return testTrack(), nil
}

func (m *mockTrackService) List(ctx context.Context, userID string) ([]*model.Track, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockTrackService) Get(ctx context.Context, userID, id string) (*model.Track, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, userID, id)
	}
	return testTrack(), nil
}

func (m *mockTrackService) UpdateStatus(ctx context.Context, userID, id string, isActive bool) (*model.Track, error) {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, userID, id, isActive)
	}
	return testTrack(), nil
}

func (m *mockTrackService) Delete(ctx context.Context, userID, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, userID, id)
	}
	return nil
}

func testTrack() *model.Track {
	return &model.Track{
		ID:              "track-1",
		UserID:          "user-1",
		Title:           "自転車ウォッチ",
		Query:           "https://divar.ir/s/tehran/bicycle",
		IntervalMinutes: 30,
		IsActive:        true,
		LastCheckTime:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ContactType:     model.ContactTypeEmail,
		ContactAddress:  "u@example.com",
	}
}

func authedRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	return req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
}

func TestTrackCreateHandler(t *testing.T) {
	var gotParams track.CreateParams
	h := NewTrackHandler(&mockTrackService{
		createFunc: func(ctx context.Context, userID string, params track.CreateParams) (*model.Track, error) {
			gotParams = params
			return testTrack(), nil
		},
	})

	req := authedRequest(http.MethodPost, "/track",
		`{"title":"自転車ウォッチ","query":"https://divar.ir/s/tehran/bicycle","interval":30}`)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rec.Code, rec.Body.String())
	}
	if gotParams.IntervalMinutes != 30 || gotParams.Title != "自転車ウォッチ" {
		t.Errorf("params = %+v", gotParams)
	}

	var resp struct {
		StatusCode int           `json:"statusCode"`
		Track      trackResponse `json:"track"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Track.ID != "track-1" || resp.Track.Interval != 30 {
		t.Errorf("track response = %+v", resp.Track)
	}
}

func TestTrackCreateHandlerInvalidInterval(t *testing.T) {
	h := NewTrackHandler(&mockTrackService{
		createFunc: func(ctx context.Context, userID string, params track.CreateParams) (*model.Track, error) {
			return nil, model.NewInvalidIntervalError(params.IntervalMinutes)
		},
	})

	req := authedRequest(http.MethodPost, "/track",
		`{"title":"t","query":"https://divar.ir/s/tehran","interval":7}`)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), model.ErrCodeInvalidInterval) {
		t.Errorf("body = %s, want INVALID_INTERVAL", rec.Body.String())
	}
}

func TestTrackCreateHandlerRequiresAuth(t *testing.T) {
	h := NewTrackHandler(&mockTrackService{})

	req := httptest.NewRequest(http.MethodPost, "/track", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestTrackListHandler(t *testing.T) {
	h := NewTrackHandler(&mockTrackService{
		listFunc: func(ctx context.Context, userID string) ([]*model.Track, error) {
			return []*model.Track{testTrack()}, nil
		},
	})

	req := authedRequest(http.MethodGet, "/track", "")
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Tracks []trackResponse `json:"tracks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Tracks) != 1 || resp.Tracks[0].ID != "track-1" {
		t.Errorf("tracks = %+v", resp.Tracks)
	}
}

func TestTrackGetHandlerNotFound(t *testing.T) {
	h := NewTrackHandler(&mockTrackService{
		getFunc: func(ctx context.Context, userID, id string) (*model.Track, error) {
			return nil, model.NewTrackNotFoundError()
		},
	})

	r := chi.NewRouter()
	r.Get("/track/{id}", h.Get)

	req := authedRequest(http.MethodGet, "/track/unknown", "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTrackUpdateStatusHandler(t *testing.T) {
	var gotActive bool
	h := NewTrackHandler(&mockTrackService{
		updateStatusFunc: func(ctx context.Context, userID, id string, isActive bool) (*model.Track, error) {
			gotActive = isActive
			updated := testTrack()
			updated.IsActive = isActive
			return updated, nil
		},
	})

	r := chi.NewRouter()
	r.Patch("/track/{id}/status", h.UpdateStatus)

	req := authedRequest(http.MethodPatch, "/track/track-1/status", `{"isActive":false}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	if gotActive {
		t.Error("isActive = true, want false")
	}
}

func TestTrackUpdateStatusHandlerRequiresFlag(t *testing.T) {
	h := NewTrackHandler(&mockTrackService{})

	r := chi.NewRouter()
	r.Patch("/track/{id}/status", h.UpdateStatus)

	req := authedRequest(http.MethodPatch, "/track/track-1/status", `{}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTrackDeleteHandler(t *testing.T) {
	deleted := ""
	h := NewTrackHandler(&mockTrackService{
		deleteFunc: func(ctx context.Context, userID, id string) error {
			deleted = id
			return nil
		},
	})

	r := chi.NewRouter()
	r.Delete("/track/{id}", h.Delete)

	req := authedRequest(http.MethodDelete, "/track/track-1", "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if deleted != "track-1" {
		t.Errorf("deleted = %q, want track-1", deleted)
	}
}
