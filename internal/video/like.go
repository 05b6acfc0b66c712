package video

import (
	"log/slog"
	"net/http"

	"github.com/vpplayer/vpplayer/internal/auth"
	"github.com/vpplayer/vpplayer/internal/httputil"
)

type likeResponse struct {
	Likes     int64 `json:"likes"`
	LikedByMe bool  `json:"likedByMe"`
}

// Like is idempotent: liking twice keeps a single like.
func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	videoID, ok := httputil.UUIDParam(w, r, "id", "video not found")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	_, err := h.db.Exec(r.Context(),
		`INSERT INTO video_likes (video_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		videoID, userID,
	)
	if isForeignKeyViolation(err) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		slog.Error("video: failed to like", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to like video")
		return
	}
	h.writeLikeCount(w, r, videoID, true)
}

func (h *Handler) Unlike(w http.ResponseWriter, r *http.Request) {
	videoID, ok := httputil.UUIDParam(w, r, "id", "video not found")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	if _, err := h.db.Exec(r.Context(),
		`DELETE FROM video_likes WHERE video_id = $1 AND user_id = $2`,
		videoID, userID,
	); err != nil {
		slog.Error("video: failed to unlike", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to unlike video")
		return
	}
	h.writeLikeCount(w, r, videoID, false)
}

func (h *Handler) writeLikeCount(w http.ResponseWriter, r *http.Request, videoID string, liked bool) {
	var count int64
	if err := h.db.QueryRow(r.Context(),
		`SELECT count(*) FROM video_likes WHERE video_id = $1`, videoID,
	).Scan(&count); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to count likes")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, likeResponse{Likes: count, LikedByMe: liked})
}
