package video

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vpplayer/vpplayer/internal/auth"
	"github.com/vpplayer/vpplayer/internal/httputil"
	"github.com/vpplayer/vpplayer/internal/validate"
)

type commentResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	AuthorName string    `json:"authorName"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

type createCommentRequest struct {
	Body string `json:"body"`
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	videoID, ok := httputil.UUIDParam(w, r, "id", "video not found")
	if !ok {
		return
	}

	rows, err := h.db.Query(r.Context(),
		`SELECT c.id, c.user_id, COALESCE(p.display_name, ''), c.body, c.created_at
		 FROM video_comments c
		 LEFT JOIN profiles p ON p.user_id = c.user_id
		 WHERE c.video_id = $1
		 ORDER BY c.created_at ASC`,
		videoID,
	)
	if err != nil {
		slog.Error("video: failed to list comments", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list comments")
		return
	}
	defer rows.Close()

	comments := make([]commentResponse, 0)
	for rows.Next() {
		var c commentResponse
		if err := rows.Scan(&c.ID, &c.UserID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to list comments")
			return
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list comments")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, comments)
}

func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	videoID, ok := httputil.UUIDParam(w, r, "id", "video not found")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	var req createCommentRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validate.CommentBody(req.Body); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	c := commentResponse{ID: uuid.NewString(), UserID: userID, Body: req.Body}
	err := h.db.QueryRow(r.Context(),
		`WITH inserted AS (
			INSERT INTO video_comments (id, video_id, user_id, body) VALUES ($1, $2, $3, $4)
			RETURNING created_at
		)
		SELECT inserted.created_at, COALESCE((SELECT display_name FROM profiles WHERE user_id = $3), '')
		FROM inserted`,
		c.ID, videoID, userID, req.Body,
	).Scan(&c.CreatedAt, &c.AuthorName)
	if isForeignKeyViolation(err) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		slog.Error("video: failed to create comment", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create comment")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, c)
}

// DeleteComment is allowed for the comment's author and for admins.
func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	videoID, ok := httputil.UUIDParam(w, r, "id", "video not found")
	if !ok {
		return
	}
	commentID, ok := httputil.UUIDParam(w, r, "commentId", "comment not found")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	var authorID string
	err := h.db.QueryRow(r.Context(),
		`SELECT user_id FROM video_comments WHERE id = $1 AND video_id = $2`,
		commentID, videoID,
	).Scan(&authorID)
	if isNoRows(err) {
		httputil.WriteError(w, http.StatusNotFound, "comment not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete comment")
		return
	}

	if authorID != userID && auth.RoleFromContext(r.Context()) != auth.RoleAdmin {
		httputil.WriteError(w, http.StatusForbidden, "not allowed to delete this comment")
		return
	}

	if _, err := h.db.Exec(r.Context(), `DELETE FROM video_comments WHERE id = $1`, commentID); err != nil {
		slog.Error("video: failed to delete comment", "comment_id", commentID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
