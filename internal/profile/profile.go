// Package profile serves the signed-in user's profile and the admin user
// directory.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vpplayer/vpplayer/internal/auth"
	"github.com/vpplayer/vpplayer/internal/database"
	"github.com/vpplayer/vpplayer/internal/httputil"
	"github.com/vpplayer/vpplayer/internal/storage"
	"github.com/vpplayer/vpplayer/internal/validate"
)

const (
	maxAvatarBytes     = 5 * 1024 * 1024
	avatarURLExpiry    = 1 * time.Hour
	avatarUploadExpiry = 15 * time.Minute
)

type AvatarStorage interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string, contentLength int64, expiry time.Duration) (string, error)
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

type Handler struct {
	db      database.DBTX
	storage AvatarStorage
}

func NewHandler(db database.DBTX, s AvatarStorage) *Handler {
	return &Handler{db: db, storage: s}
}

type profileResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

type updateRequest struct {
	DisplayName string `json:"displayName"`
}

type avatarRequest struct {
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type avatarResponse struct {
	UploadURL string `json:"uploadUrl"`
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var p profileResponse
	var avatarKey *string
	err := h.db.QueryRow(r.Context(),
		`SELECT u.id, u.email, p.display_name, p.avatar_key, p.role, u.created_at
		 FROM users u JOIN profiles p ON p.user_id = u.id
		 WHERE u.id = $1`,
		userID,
	).Scan(&p.ID, &p.Email, &p.DisplayName, &avatarKey, &p.Role, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		slog.Error("profile: failed to load profile", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	p.AvatarURL = h.avatarURL(r.Context(), avatarKey)
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req updateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validate.DisplayName(req.DisplayName); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`UPDATE profiles SET display_name = $2, updated_at = now() WHERE user_id = $1`,
		userID, req.DisplayName,
	)
	if err != nil {
		slog.Error("profile: failed to update profile", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "profile not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadAvatar points the profile at a new avatar key and returns a presigned
// PUT for it. The previous avatar object is removed.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req avatarRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ext, ok := validate.ImageExtension(req.ContentType)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "unsupported image type")
		return
	}
	if req.Size <= 0 || req.Size > maxAvatarBytes {
		httputil.WriteError(w, http.StatusBadRequest, "avatar must be between 1 byte and 5 MB")
		return
	}

	key := storage.AvatarKey(userID, ext)
	uploadURL, err := h.storage.GenerateUploadURL(r.Context(), key, req.ContentType, req.Size, avatarUploadExpiry)
	if err != nil {
		slog.Error("profile: failed to presign avatar upload", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate upload URL")
		return
	}

	var previous *string
	err = h.db.QueryRow(r.Context(),
		`UPDATE profiles p SET avatar_key = $2, updated_at = now()
		 FROM (SELECT avatar_key FROM profiles WHERE user_id = $1) old
		 WHERE p.user_id = $1
		 RETURNING old.avatar_key`,
		userID, key,
	).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		slog.Error("profile: failed to store avatar key", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update avatar")
		return
	}

	if previous != nil && *previous != key {
		if err := h.storage.DeleteObject(r.Context(), *previous); err != nil {
			slog.Warn("profile: failed to delete previous avatar", "key", *previous, "error", err)
		}
	}

	httputil.WriteJSON(w, http.StatusOK, avatarResponse{UploadURL: uploadURL})
}

func (h *Handler) avatarURL(ctx context.Context, key *string) *string {
	if key == nil {
		return nil
	}
	u, err := h.storage.GenerateDownloadURL(ctx, *key, avatarURLExpiry)
	if err != nil {
		slog.Warn("profile: failed to presign avatar", "key", *key, "error", err)
		return nil
	}
	return &u
}
