package video

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/vpplayer/vpplayer/internal/auth"
	"github.com/vpplayer/vpplayer/internal/httputil"
	"github.com/vpplayer/vpplayer/internal/storage"
	"github.com/vpplayer/vpplayer/internal/timefmt"
	"github.com/vpplayer/vpplayer/internal/validate"
)

type createRequest struct {
	Title                string  `json:"title"`
	ContentType          string  `json:"contentType"`
	FileSize             int64   `json:"fileSize"`
	Duration             *string `json:"duration,omitempty"`
	OrderKey             *int    `json:"orderKey,omitempty"`
	ThumbnailContentType string  `json:"thumbnailContentType,omitempty"`
	ThumbnailSize        int64   `json:"thumbnailSize,omitempty"`
}

type createResponse struct {
	ID                 string `json:"id"`
	UploadURL          string `json:"uploadUrl"`
	ThumbnailUploadURL string `json:"thumbnailUploadUrl,omitempty"`
}

type updateRequest struct {
	Title                *string `json:"title,omitempty"`
	OrderKey             *int    `json:"orderKey,omitempty"`
	ClearOrderKey        bool    `json:"clearOrderKey,omitempty"`
	Duration             *string `json:"duration,omitempty"`
	ThumbnailContentType *string `json:"thumbnailContentType,omitempty"`
	ThumbnailSize        int64   `json:"thumbnailSize,omitempty"`
}

type updateResponse struct {
	ThumbnailUploadURL string `json:"thumbnailUploadUrl,omitempty"`
}

// Create registers a video row and hands back presigned upload URLs. The
// browser uploads the media straight to the bucket.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validate.Title(req.Title); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if req.FileSize <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "fileSize must be positive")
		return
	}
	if h.maxUploadBytes > 0 && req.FileSize > h.maxUploadBytes {
		httputil.WriteError(w, http.StatusBadRequest, "file too large")
		return
	}
	ext, ok := validate.VideoExtension(req.ContentType)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "unsupported video type")
		return
	}
	if msg := validateDuration(req.Duration); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if req.OrderKey != nil {
		if msg := validate.OrderKey(*req.OrderKey); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
	}

	videoID := uuid.NewString()
	fileKey := storage.VideoKey(videoID, ext)

	var thumbnailKey *string
	if req.ThumbnailContentType != "" {
		thumbExt, ok := validate.ImageExtension(req.ThumbnailContentType)
		if !ok {
			httputil.WriteError(w, http.StatusBadRequest, "unsupported thumbnail type")
			return
		}
		k := storage.ThumbnailKey(videoID, thumbExt)
		thumbnailKey = &k
	}

	uploadURL, err := h.storage.GenerateUploadURL(r.Context(), fileKey, req.ContentType, req.FileSize, uploadURLExpiry)
	if err != nil {
		slog.Error("video: failed to presign upload", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate upload URL")
		return
	}

	resp := createResponse{ID: videoID, UploadURL: uploadURL}
	if thumbnailKey != nil {
		u, err := h.storage.GenerateUploadURL(r.Context(), *thumbnailKey, req.ThumbnailContentType, req.ThumbnailSize, uploadURLExpiry)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		resp.ThumbnailUploadURL = u
	}

	if _, err := h.db.Exec(r.Context(),
		`INSERT INTO videos (id, title, file_key, thumbnail_key, duration, order_key, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		videoID, req.Title, fileKey, thumbnailKey, req.Duration, req.OrderKey, userID,
	); err != nil {
		slog.Error("video: failed to create video", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create video")
		return
	}

	h.store.invalidate(r.Context())
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	videoID, ok := httputil.UUIDParam(w, r, "id", "video not found")
	if !ok {
		return
	}

	var req updateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		if msg := validate.Title(*req.Title); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
	}
	if req.OrderKey != nil {
		if req.ClearOrderKey {
			httputil.WriteError(w, http.StatusBadRequest, "orderKey and clearOrderKey are mutually exclusive")
			return
		}
		if msg := validate.OrderKey(*req.OrderKey); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
	}
	if msg := validateDuration(req.Duration); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	var resp updateResponse
	var thumbnailKey *string
	if req.ThumbnailContentType != nil {
		ext, ok := validate.ImageExtension(*req.ThumbnailContentType)
		if !ok {
			httputil.WriteError(w, http.StatusBadRequest, "unsupported thumbnail type")
			return
		}
		k := storage.ThumbnailKey(videoID, ext)
		thumbnailKey = &k
		u, err := h.storage.GenerateUploadURL(r.Context(), k, *req.ThumbnailContentType, req.ThumbnailSize, uploadURLExpiry)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		resp.ThumbnailUploadURL = u
	}

	tag, err := h.db.Exec(r.Context(),
		`UPDATE videos SET
			title = COALESCE($2, title),
			order_key = CASE WHEN $3 THEN NULL ELSE COALESCE($4, order_key) END,
			duration = COALESCE($5, duration),
			thumbnail_key = COALESCE($6, thumbnail_key),
			updated_at = now()
		 WHERE id = $1`,
		videoID, req.Title, req.ClearOrderKey, req.OrderKey, req.Duration, thumbnailKey,
	)
	if err != nil {
		slog.Error("video: failed to update video", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update video")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	h.store.invalidate(r.Context())
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Delete removes the row first so the video disappears from the catalog even
// when object cleanup fails.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	videoID, ok := httputil.UUIDParam(w, r, "id", "video not found")
	if !ok {
		return
	}

	var fileKey string
	var thumbnailKey *string
	err := h.db.QueryRow(r.Context(),
		`DELETE FROM videos WHERE id = $1 RETURNING file_key, thumbnail_key`, videoID,
	).Scan(&fileKey, &thumbnailKey)
	if isNoRows(err) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		slog.Error("video: failed to delete video", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}

	h.store.invalidate(r.Context())

	keys := []string{fileKey}
	if thumbnailKey != nil {
		keys = append(keys, *thumbnailKey)
	}
	for _, key := range keys {
		if err := h.storage.DeleteObject(r.Context(), key); err != nil {
			slog.Warn("video: failed to delete object", "video_id", videoID, "key", key, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func validateDuration(d *string) string {
	if d == nil {
		return ""
	}
	if _, err := timefmt.ParseClock(*d); err != nil {
		return "duration must be M:SS or H:MM:SS"
	}
	return ""
}
