package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vpplayer/vpplayer/internal/playback"
)

const (
	pingInterval  = 25 * time.Second
	readTimeout   = 60 * time.Second
	writeTimeout  = 5 * time.Second
	maxFrameBytes = 64 * 1024

	frameSnapshot = "snapshot"
	frameCommand  = "command"
	frameError    = "error"
	frameEvent    = "event"
	frameIntent   = "intent"
	frameActivity = "activity"
)

type outFrame struct {
	Type     string             `json:"type"`
	Snapshot *playback.Snapshot `json:"snapshot,omitempty"`
	Command  *Command           `json:"command,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type inFrame struct {
	Type   string               `json:"type"`
	Event  *playback.MediaEvent `json:"event,omitempty"`
	Intent *Intent              `json:"intent,omitempty"`
}

// snapshotSlot keeps only the newest snapshot for a slow writer.
type snapshotSlot struct {
	mu     sync.Mutex
	latest *playback.Snapshot
	sent   uint64
	ready  chan struct{}
}

func newSnapshotSlot() *snapshotSlot {
	return &snapshotSlot{ready: make(chan struct{}, 1)}
}

func (s *snapshotSlot) offer(snap playback.Snapshot) {
	s.mu.Lock()
	if snap.Seq <= s.sent || (s.latest != nil && snap.Seq <= s.latest.Seq) {
		s.mu.Unlock()
		return
	}
	s.latest = &snap
	s.mu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *snapshotSlot) take() (playback.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return playback.Snapshot{}, false
	}
	snap := *s.latest
	s.latest = nil
	s.sent = snap.Seq
	return snap, true
}

// Socket upgrades to a websocket that pushes snapshots and element commands
// and accepts element events and user intents. A newer socket for the same
// session replaces this one.
func (h *Handler) Socket(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("session: websocket upgrade failed", "session_id", sess.ID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess.claimConn(cancel)

	slot := newSnapshotSlot()
	unsubscribe := sess.Player.Subscribe(slot.offer)
	slot.offer(sess.Player.Snapshot())

	slog.Info("session: websocket connected", "session_id", sess.ID)
	go h.writePump(ctx, conn, sess, slot)
	h.readPump(ctx, cancel, conn, sess)

	unsubscribe()
	slog.Info("session: websocket disconnected", "session_id", sess.ID)
}

func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *Session) {
	defer func() {
		cancel()
		conn.Close()
	}()

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				slog.Warn("session: websocket read failed", "session_id", sess.ID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var frame inFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			slog.Debug("session: malformed websocket frame", "session_id", sess.ID, "error", err)
			continue
		}

		switch frame.Type {
		case frameEvent:
			if frame.Event != nil {
				applyEvent(sess.Player, *frame.Event)
			}
		case frameIntent:
			if frame.Intent == nil {
				continue
			}
			if err := applyIntent(ctx, sess.Player, h.lister, *frame.Intent); err != nil {
				sess.reportError(err)
			}
		case frameActivity:
			sess.Player.Activity()
		default:
			slog.Debug("session: unknown websocket frame", "session_id", sess.ID, "type", frame.Type)
		}
	}
}

// writePump is the connection's only writer.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sess *Session, slot *snapshotSlot) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(v); err != nil {
			slog.Debug("session: websocket write failed", "session_id", sess.ID, "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(writeTimeout))
			return
		case <-sess.Outbox.Ready():
			for _, cmd := range sess.Outbox.Drain() {
				if !write(outFrame{Type: frameCommand, Command: &cmd}) {
					return
				}
			}
		case <-slot.ready:
			if snap, ok := slot.take(); ok {
				if !write(outFrame{Type: frameSnapshot, Snapshot: &snap}) {
					return
				}
			}
		case msg := <-sess.errs:
			if !write(outFrame{Type: frameError, Error: msg}) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
