package video

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/vpplayer/vpplayer/internal/auth"
	"github.com/vpplayer/vpplayer/internal/httputil"
	"github.com/vpplayer/vpplayer/internal/playback"
)

type videoDetail struct {
	playback.VideoEntry
	Likes   int64 `json:"likes"`
	LikedBy bool  `json:"likedByMe"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListVideos(r.Context())
	if err != nil {
		slog.Error("video: failed to list videos", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	videoID, ok := httputil.UUIDParam(w, r, "id", "video not found")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	entry, err := h.store.GetVideo(r.Context(), videoID)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		slog.Error("video: failed to get video", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get video")
		return
	}

	detail := videoDetail{VideoEntry: entry}
	err = h.db.QueryRow(r.Context(),
		`SELECT count(*), COALESCE(bool_or(user_id::text = $2), false) FROM video_likes WHERE video_id = $1`,
		videoID, userID,
	).Scan(&detail.Likes, &detail.LikedBy)
	if err != nil {
		slog.Error("video: failed to count likes", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get video")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, detail)
}
