package session

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/vpplayer/vpplayer/internal/auth"
	"github.com/vpplayer/vpplayer/internal/httputil"
	"github.com/vpplayer/vpplayer/internal/playback"
)

const maxEventsPerRequest = 100

type Handler struct {
	registry *Registry
	lister   playback.VideoLister
	upgrader websocket.Upgrader
}

// NewHandler serves sessions from registry. Websocket upgrades are accepted
// from allowedOrigins and from the server's own host.
func NewHandler(registry *Registry, lister playback.VideoLister, allowedOrigins []string) *Handler {
	return &Handler{
		registry: registry,
		lister:   lister,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

type createResponse struct {
	ID       string            `json:"id"`
	Snapshot playback.Snapshot `json:"snapshot"`
}

type eventsRequest struct {
	Events   []playback.MediaEvent `json:"events"`
	Activity bool                  `json:"activity,omitempty"`
}

type eventsResponse struct {
	Applied  int               `json:"applied"`
	Snapshot playback.Snapshot `json:"snapshot"`
}

type commandsResponse struct {
	Commands []Command `json:"commands"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	sess := h.registry.Create(userID)
	if err := sess.Player.Refresh(r.Context(), h.lister); err != nil {
		h.registry.Remove(sess.ID)
		slog.Error("session: failed to load videos", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusBadGateway, "failed to load videos")
		return
	}

	slog.Info("session: created", "session_id", sess.ID, "user_id", userID, "videos", len(sess.Player.Entries()))
	httputil.WriteJSON(w, http.StatusCreated, createResponse{ID: sess.ID, Snapshot: sess.Player.Snapshot()})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess.Player.Snapshot())
}

func (h *Handler) Transport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var in Intent
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !transportOps[in.Op] {
		httputil.WriteError(w, http.StatusBadRequest, "invalid op")
		return
	}
	if err := applyTransport(sess.Player, in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess.Player.Snapshot())
}

func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var in Intent
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !queueOps[in.Op] {
		httputil.WriteError(w, http.StatusBadRequest, "invalid op")
		return
	}
	if err := applyQueue(r.Context(), sess.Player, h.lister, in); err != nil {
		if errors.Is(err, errRefresh) {
			slog.Error("session: refresh failed", "session_id", sess.ID, "error", err)
			httputil.WriteError(w, http.StatusBadGateway, errRefresh.Error())
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess.Player.Snapshot())
}

// Events takes media element events and pointer activity from clients that
// poll instead of holding a websocket.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req eventsRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Events) > maxEventsPerRequest {
		httputil.WriteError(w, http.StatusBadRequest, "too many events")
		return
	}
	for _, ev := range req.Events {
		if ev.Type == "" {
			httputil.WriteError(w, http.StatusBadRequest, "event type is required")
			return
		}
	}

	applied := 0
	for _, ev := range req.Events {
		if applyEvent(sess.Player, ev) {
			applied++
		}
	}
	if req.Activity {
		sess.Player.Activity()
	}
	httputil.WriteJSON(w, http.StatusOK, eventsResponse{Applied: applied, Snapshot: sess.Player.Snapshot()})
}

func (h *Handler) Commands(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, commandsResponse{Commands: sess.Outbox.Drain()})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.registry.Remove(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := h.registry.Get(chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}
