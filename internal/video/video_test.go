package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/vpplayer/vpplayer/internal/auth"
	"github.com/vpplayer/vpplayer/internal/playback"
)

type mockStorage struct {
	uploadURL   string
	uploadErr   error
	downloadURL string
	downloadErr error
	deleteErr   error
	deleted     []string
}

func (m *mockStorage) GenerateUploadURL(_ context.Context, _ string, _ string, _ int64, _ time.Duration) (string, error) {
	return m.uploadURL, m.uploadErr
}

func (m *mockStorage) GenerateDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if m.downloadErr != nil {
		return "", m.downloadErr
	}
	return m.downloadURL + "/" + key, nil
}

func (m *mockStorage) DeleteObject(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return m.deleteErr
}

type mockCache struct {
	entries     []playback.VideoEntry
	hit         bool
	sets        int
	invalidated int
}

func (m *mockCache) GetVideoList(_ context.Context, dst any) (bool, error) {
	if !m.hit {
		return false, nil
	}
	*(dst.(*[]playback.VideoEntry)) = m.entries
	return true, nil
}

func (m *mockCache) SetVideoList(_ context.Context, v any) error {
	m.sets++
	return nil
}

func (m *mockCache) InvalidateVideoList(_ context.Context) error {
	m.invalidated++
	return nil
}

const testJWTSecret = "test-secret-for-video-tests"
const testUserID = "550e8400-e29b-41d4-a716-446655440000"
const testVideoID = "7a1f0c2e-4b7d-4e0a-9d55-0d6b1f3e9a10"
const missingVideoID = "00000000-0000-4000-8000-000000000000"
const testCommentID = "3c9e5b2a-1d4f-4e6a-8b7c-9d0e1f2a3b4c"

var videoColumns = []string{"id", "title", "file_key", "thumbnail_key", "duration", "order_key", "views", "watch_time", "user_id", "created_at", "updated_at"}

func authenticatedRequest(t *testing.T, method, target string, body []byte, role string) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	token, err := auth.GenerateAccessToken(testJWTSecret, testUserID, role)
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func newAuthMiddleware() func(http.Handler) http.Handler {
	return auth.NewHandler(nil, testJWTSecret, false).Middleware
}

func parseErrorResponse(t *testing.T, body []byte) string {
	t.Helper()
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	return errResp.Error
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func addVideoRow(rows *pgxmock.Rows, id, title string, orderKey *int) *pgxmock.Rows {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return rows.AddRow(id, title, "videos/"+id+".mp4", (*string)(nil), strPtr("1:05"), orderKey,
		int64(3), int64(120), (*string)(nil), created, created)
}

// --- Store Tests ---

func TestListVideos_PresignsAndCaches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows(videoColumns)
	addVideoRow(rows, "v1", "First", intPtr(1))
	addVideoRow(rows, "v2", "Second", nil)
	mock.ExpectQuery(`ORDER BY order_key ASC NULLS LAST, created_at DESC`).WillReturnRows(rows)

	cache := &mockCache{}
	store := NewStore(mock, &mockStorage{downloadURL: "https://s3.example.com"}, cache)

	entries, err := store.ListVideos(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].SourceURL != "https://s3.example.com/videos/v1.mp4" {
		t.Errorf("expected presigned source, got %q", entries[0].SourceURL)
	}
	if entries[0].ThumbnailURL != nil {
		t.Errorf("expected no thumbnail, got %q", *entries[0].ThumbnailURL)
	}
	if cache.sets != 1 {
		t.Errorf("expected cache write, got %d", cache.sets)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestListVideos_CacheHitSkipsDatabase(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	cache := &mockCache{hit: true, entries: []playback.VideoEntry{{ID: "cached"}}}
	store := NewStore(mock, &mockStorage{}, cache)

	entries, err := store.ListVideos(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "cached" {
		t.Errorf("expected cached entries, got %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database use: %v", err)
	}
}

func TestListVideos_PresignFailureIsAnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows(videoColumns)
	addVideoRow(rows, "v1", "First", nil)
	mock.ExpectQuery(`FROM videos`).WillReturnRows(rows)

	store := NewStore(mock, &mockStorage{downloadErr: errors.New("s3 down")}, nil)
	if _, err := store.ListVideos(context.Background()); err == nil {
		t.Fatal("expected error when presigning fails")
	}
}

func TestGetVideo_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`FROM videos WHERE id`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	store := NewStore(mock, &mockStorage{}, nil)
	if _, err := store.GetVideo(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- Handler Tests ---

func TestList_ReturnsEntries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows(videoColumns)
	addVideoRow(rows, "v1", "First", intPtr(1))
	mock.ExpectQuery(`FROM videos`).WillReturnRows(rows)

	handler := NewHandler(mock, &mockStorage{downloadURL: "https://s3.example.com"}, nil, 0)

	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Get("/api/videos", handler.List)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodGet, "/api/videos", nil, auth.RoleGuest))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var entries []playback.VideoEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "First" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestGet_IncludesLikes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows(videoColumns)
	addVideoRow(rows, testVideoID, "First", nil)
	mock.ExpectQuery(`FROM videos WHERE id`).WithArgs(testVideoID).WillReturnRows(rows)
	mock.ExpectQuery(`FROM video_likes`).WithArgs(testVideoID, testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"count", "liked"}).AddRow(int64(4), true))

	handler := NewHandler(mock, &mockStorage{downloadURL: "https://s3.example.com"}, nil, 0)

	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Get("/api/videos/{id}", handler.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodGet, "/api/videos/"+testVideoID, nil, auth.RoleUser))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var detail videoDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if detail.Likes != 4 || !detail.LikedBy {
		t.Errorf("expected 4 likes liked by me, got %d %v", detail.Likes, detail.LikedBy)
	}
}

func TestGet_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`FROM videos WHERE id`).WithArgs(missingVideoID).WillReturnError(pgx.ErrNoRows)

	handler := NewHandler(mock, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Get("/api/videos/{id}", handler.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodGet, "/api/videos/"+missingVideoID, nil, auth.RoleUser))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestCreate_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO videos`).
		WithArgs(pgxmock.AnyArg(), "Intro", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), testUserID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	cache := &mockCache{}
	handler := NewHandler(mock, &mockStorage{uploadURL: "https://s3.example.com/upload?signed=abc"}, cache, 0)

	body, _ := json.Marshal(createRequest{
		Title:                "Intro",
		ContentType:          "video/mp4",
		FileSize:             5_000_000,
		Duration:             strPtr("2:00"),
		ThumbnailContentType: "image/png",
		ThumbnailSize:        2048,
	})

	r := chi.NewRouter()
	r.With(newAuthMiddleware(), auth.RequireAdmin).Post("/api/videos", handler.Create)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos", body, auth.RoleAdmin))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var resp createResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ID == "" {
		t.Error("expected generated video id")
	}
	if resp.UploadURL != "https://s3.example.com/upload?signed=abc" {
		t.Errorf("unexpected upload URL %q", resp.UploadURL)
	}
	if resp.ThumbnailUploadURL == "" {
		t.Error("expected thumbnail upload URL")
	}
	if cache.invalidated != 1 {
		t.Errorf("expected catalog invalidation, got %d", cache.invalidated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestCreate_RequiresAdmin(t *testing.T) {
	handler := NewHandler(nil, &mockStorage{}, nil, 0)

	r := chi.NewRouter()
	r.With(newAuthMiddleware(), auth.RequireAdmin).Post("/api/videos", handler.Create)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos", []byte(`{}`), auth.RoleUser))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  createRequest
		want string
	}{
		{"missing title", createRequest{ContentType: "video/mp4", FileSize: 10}, "title is required"},
		{"bad type", createRequest{Title: "x", ContentType: "video/x-msvideo", FileSize: 10}, "unsupported video type"},
		{"zero size", createRequest{Title: "x", ContentType: "video/mp4"}, "fileSize must be positive"},
		{"too large", createRequest{Title: "x", ContentType: "video/mp4", FileSize: 2_000}, "file too large"},
		{"bad duration", createRequest{Title: "x", ContentType: "video/mp4", FileSize: 10, Duration: strPtr("1:75")}, "duration must be M:SS or H:MM:SS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(nil, &mockStorage{}, nil, 1_000)
			r := chi.NewRouter()
			r.With(newAuthMiddleware()).Post("/api/videos", handler.Create)

			body, _ := json.Marshal(tt.req)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos", body, auth.RoleAdmin))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			if got := parseErrorResponse(t, rec.Body.Bytes()); got != tt.want {
				t.Errorf("expected error %q, got %q", tt.want, got)
			}
		})
	}
}

func TestUpdate_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec(`UPDATE videos SET`).
		WithArgs(testVideoID, pgxmock.AnyArg(), false, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	handler := NewHandler(mock, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Patch("/api/videos/{id}", handler.Update)

	body := []byte(`{"title":"Renamed"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPatch, "/api/videos/"+testVideoID, body, auth.RoleAdmin))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d: %s", http.StatusNotFound, rec.Code, rec.Body.String())
	}
}

func TestUpdate_RejectsOrderKeyWithClear(t *testing.T) {
	handler := NewHandler(nil, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Patch("/api/videos/{id}", handler.Update)

	body := []byte(`{"orderKey":3,"clearOrderKey":true}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPatch, "/api/videos/"+testVideoID, body, auth.RoleAdmin))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestDelete_RemovesRowThenObjects(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`DELETE FROM videos`).WithArgs(testVideoID).
		WillReturnRows(pgxmock.NewRows([]string{"file_key", "thumbnail_key"}).
			AddRow("videos/a.mp4", strPtr("thumbnails/a.png")))

	storage := &mockStorage{deleteErr: errors.New("s3 flaky")}
	cache := &mockCache{}
	handler := NewHandler(mock, storage, cache, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Delete("/api/videos/{id}", handler.Delete)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodDelete, "/api/videos/"+testVideoID, nil, auth.RoleAdmin))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if len(storage.deleted) != 2 {
		t.Errorf("expected 2 object deletions, got %v", storage.deleted)
	}
	if cache.invalidated != 1 {
		t.Errorf("expected catalog invalidation, got %d", cache.invalidated)
	}
}

func TestDelete_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`DELETE FROM videos`).WithArgs(missingVideoID).WillReturnError(pgx.ErrNoRows)

	storage := &mockStorage{}
	handler := NewHandler(mock, storage, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Delete("/api/videos/{id}", handler.Delete)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodDelete, "/api/videos/"+missingVideoID, nil, auth.RoleAdmin))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if len(storage.deleted) != 0 {
		t.Errorf("expected no object deletions, got %v", storage.deleted)
	}
}

// --- Like Tests ---

func TestLike_ReturnsCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO video_likes`).WithArgs(testVideoID, testUserID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT count`).WithArgs(testVideoID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	handler := NewHandler(mock, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos/{id}/like", handler.Like)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/like", nil, auth.RoleUser))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var resp likeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Likes != 1 || !resp.LikedByMe {
		t.Errorf("expected 1 like by me, got %+v", resp)
	}
}

func TestLike_UnknownVideo(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO video_likes`).WithArgs(missingVideoID, testUserID).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	handler := NewHandler(mock, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos/{id}/like", handler.Like)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos/"+missingVideoID+"/like", nil, auth.RoleUser))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

// --- Comment Tests ---

func TestListComments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM video_comments c`).WithArgs(testVideoID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "display_name", "body", "created_at"}).
			AddRow("c1", testUserID, "Ada", "nice", created))

	handler := NewHandler(mock, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Get("/api/videos/{id}/comments", handler.ListComments)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodGet, "/api/videos/"+testVideoID+"/comments", nil, auth.RoleGuest))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var comments []commentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &comments); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(comments) != 1 || comments[0].AuthorName != "Ada" {
		t.Errorf("unexpected comments: %+v", comments)
	}
}

func TestCreateComment_EmptyBody(t *testing.T) {
	handler := NewHandler(nil, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos/{id}/comments", handler.CreateComment)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/comments", []byte(`{"body":"   "}`), auth.RoleUser))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestCreateComment_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO video_comments`).
		WithArgs(pgxmock.AnyArg(), testVideoID, testUserID, "great video").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "display_name"}).AddRow(created, "Ada"))

	handler := NewHandler(mock, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos/{id}/comments", handler.CreateComment)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/comments", []byte(`{"body":"great video"}`), auth.RoleUser))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var c commentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if c.AuthorName != "Ada" || c.Body != "great video" || c.ID == "" {
		t.Errorf("unexpected comment: %+v", c)
	}
}

func TestDeleteComment_Permissions(t *testing.T) {
	const otherUser = "11111111-2222-3333-4444-555555555555"
	tests := []struct {
		name     string
		author   string
		role     string
		wantCode int
	}{
		{"author", testUserID, auth.RoleUser, http.StatusNoContent},
		{"admin", otherUser, auth.RoleAdmin, http.StatusNoContent},
		{"stranger", otherUser, auth.RoleUser, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatal(err)
			}
			defer mock.Close()

			mock.ExpectQuery(`SELECT user_id FROM video_comments`).WithArgs(testCommentID, testVideoID).
				WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(tt.author))
			if tt.wantCode == http.StatusNoContent {
				mock.ExpectExec(`DELETE FROM video_comments`).WithArgs(testCommentID).
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
			}

			handler := NewHandler(mock, &mockStorage{}, nil, 0)
			r := chi.NewRouter()
			r.With(newAuthMiddleware()).Delete("/api/videos/{id}/comments/{commentId}", handler.DeleteComment)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, authenticatedRequest(t, http.MethodDelete, "/api/videos/"+testVideoID+"/comments/"+testCommentID, nil, tt.role))

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet pgxmock expectations: %v", err)
			}
		})
	}
}

// --- View Tests ---

type stubGeo struct{}

func (stubGeo) Lookup(string) (string, string) { return "DE", "Berlin" }

func TestRecordView_FirstPingCountsView(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO video_views`).
		WithArgs(testVideoID, "sess-1", pgxmock.AnyArg(), int64(15), "DE", "Berlin", "Firefox", "Linux", "desktop").
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectExec(`UPDATE videos SET views`).WithArgs(testVideoID, 1, int64(15)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	handler := NewHandler(mock, &mockStorage{}, nil, 0)
	handler.SetGeoLocator(stubGeo{})
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos/{id}/views", handler.RecordView)

	req := authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/views", []byte(`{"sessionId":"sess-1","watchSeconds":15}`), auth.RoleUser)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestRecordView_RepeatPingOnlyAddsWatchTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO video_views`).
		WithArgs(testVideoID, "sess-1", pgxmock.AnyArg(), int64(10), "", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectExec(`UPDATE videos SET views`).WithArgs(testVideoID, 0, int64(10)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	handler := NewHandler(mock, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos/{id}/views", handler.RecordView)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/views", []byte(`{"sessionId":"sess-1","watchSeconds":10}`), auth.RoleGuest))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestRecordView_CounterFailureRollsBackSessionRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO video_views`).
		WithArgs(testVideoID, "sess-1", pgxmock.AnyArg(), int64(5), "", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectExec(`UPDATE videos SET views`).WithArgs(testVideoID, 1, int64(5)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	handler := NewHandler(mock, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos/{id}/views", handler.RecordView)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/views", []byte(`{"sessionId":"sess-1","watchSeconds":5}`), auth.RoleUser))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestRecordView_UnknownVideoIsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO video_views`).
		WithArgs(missingVideoID, "sess-1", pgxmock.AnyArg(), int64(5), "", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	handler := NewHandler(mock, &mockStorage{}, nil, 0)
	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos/{id}/views", handler.RecordView)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos/"+missingVideoID+"/views", []byte(`{"sessionId":"sess-1","watchSeconds":5}`), auth.RoleUser))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestRecordView_RejectsBadInput(t *testing.T) {
	tests := []string{
		`{"sessionId":"","watchSeconds":1}`,
		`{"sessionId":"s","watchSeconds":-1}`,
		`{"sessionId":"s","watchSeconds":100000}`,
		`not json`,
	}
	for _, body := range tests {
		handler := NewHandler(nil, &mockStorage{}, nil, 0)
		r := chi.NewRouter()
		r.With(newAuthMiddleware()).Post("/api/videos/{id}/views", handler.RecordView)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/views", []byte(body), auth.RoleUser))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected status %d, got %d", body, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestMalformedIDsAnswerNotFoundWithoutQuerying(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		target  string
		body    []byte
		route   func(h *Handler) http.HandlerFunc
	}{
		{"get", http.MethodGet, "/api/videos/{id}", "/api/videos/nope", nil, func(h *Handler) http.HandlerFunc { return h.Get }},
		{"update", http.MethodPatch, "/api/videos/{id}", "/api/videos/nope", []byte(`{"title":"x"}`), func(h *Handler) http.HandlerFunc { return h.Update }},
		{"delete", http.MethodDelete, "/api/videos/{id}", "/api/videos/nope", nil, func(h *Handler) http.HandlerFunc { return h.Delete }},
		{"like", http.MethodPost, "/api/videos/{id}/like", "/api/videos/42/like", nil, func(h *Handler) http.HandlerFunc { return h.Like }},
		{"unlike", http.MethodDelete, "/api/videos/{id}/like", "/api/videos/42/like", nil, func(h *Handler) http.HandlerFunc { return h.Unlike }},
		{"list comments", http.MethodGet, "/api/videos/{id}/comments", "/api/videos/nope/comments", nil, func(h *Handler) http.HandlerFunc { return h.ListComments }},
		{"create comment", http.MethodPost, "/api/videos/{id}/comments", "/api/videos/nope/comments", []byte(`{"body":"hi"}`), func(h *Handler) http.HandlerFunc { return h.CreateComment }},
		{"delete comment", http.MethodDelete, "/api/videos/{id}/comments/{commentId}", "/api/videos/" + testVideoID + "/comments/c1", nil, func(h *Handler) http.HandlerFunc { return h.DeleteComment }},
		{"views", http.MethodPost, "/api/videos/{id}/views", "/api/videos/x/views", []byte(`{"sessionId":"s","watchSeconds":1}`), func(h *Handler) http.HandlerFunc { return h.RecordView }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatal(err)
			}
			defer mock.Close()

			handler := NewHandler(mock, &mockStorage{}, nil, 0)
			r := chi.NewRouter()
			r.With(newAuthMiddleware()).Method(tt.method, tt.pattern, tt.route(handler))

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, authenticatedRequest(t, tt.method, tt.target, tt.body, auth.RoleAdmin))

			if rec.Code != http.StatusNotFound {
				t.Errorf("expected status %d, got %d: %s", http.StatusNotFound, rec.Code, rec.Body.String())
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet pgxmock expectations: %v", err)
			}
		})
	}
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		ua     string
		device string
	}{
		{"", "unknown"},
		{"Googlebot/2.1 (+http://www.google.com/bot.html)", "bot"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", "mobile"},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", "tablet"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "desktop"},
	}
	for _, tt := range tests {
		if got := parseUserAgent(tt.ua); got.Device != tt.device {
			t.Errorf("parseUserAgent(%q).Device = %q, want %q", tt.ua, got.Device, tt.device)
		}
	}
	if got := parseUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"); !strings.Contains(got.OS, "Windows") {
		t.Errorf("expected Windows OS, got %q", got.OS)
	}
}
