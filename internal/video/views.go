package video

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/vpplayer/vpplayer/internal/auth"
	"github.com/vpplayer/vpplayer/internal/httputil"
	"github.com/vpplayer/vpplayer/internal/ratelimit"
)

// maxWatchSecondsPerPing bounds a single progress report so a client cannot
// inflate watch time in one request.
const maxWatchSecondsPerPing = 300

type viewRequest struct {
	SessionID    string `json:"sessionId"`
	WatchSeconds int64  `json:"watchSeconds"`
}

// RecordView counts one view per playback session and accumulates watch
// time from periodic progress pings.
func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	videoID, ok := httputil.UUIDParam(w, r, "id", "video not found")
	if !ok {
		return
	}

	var req viewRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" || len(req.SessionID) > 64 {
		httputil.WriteError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if req.WatchSeconds < 0 || req.WatchSeconds > maxWatchSecondsPerPing {
		httputil.WriteError(w, http.StatusBadRequest, "watchSeconds out of range")
		return
	}

	var viewerID *string
	if id := auth.UserIDFromContext(r.Context()); id != "" && !auth.IsGuest(r.Context()) {
		viewerID = &id
	}

	client := parseUserAgent(r.UserAgent())
	var country, city string
	if h.geo != nil {
		country, city = h.geo.Lookup(ratelimit.ClientIP(r))
	}

	// The session row and the video counters move together or not at all.
	err := pgx.BeginFunc(r.Context(), h.db, func(tx pgx.Tx) error {
		var inserted bool
		if err := tx.QueryRow(r.Context(),
			`INSERT INTO video_views (video_id, session_id, user_id, watch_seconds, country, city, browser, os, device)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (video_id, session_id) DO UPDATE
			 SET watch_seconds = video_views.watch_seconds + EXCLUDED.watch_seconds, updated_at = now()
			 RETURNING (xmax = 0)`,
			videoID, req.SessionID, viewerID, req.WatchSeconds, country, city, client.Browser, client.OS, client.Device,
		).Scan(&inserted); err != nil {
			return err
		}

		newViews := 0
		if inserted {
			newViews = 1
		}
		if _, err := tx.Exec(r.Context(),
			`UPDATE videos SET views = views + $2, watch_time = watch_time + $3 WHERE id = $1`,
			videoID, newViews, req.WatchSeconds,
		); err != nil {
			return fmt.Errorf("update counters: %w", err)
		}
		return nil
	})
	if isForeignKeyViolation(err) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		slog.Error("video: failed to record view", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to record view")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
