// Package session hosts remote playback sessions: one playback.Player per
// browser tab, driven over HTTP and websockets.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/vpplayer/vpplayer/internal/metrics"
	"github.com/vpplayer/vpplayer/internal/playback"
)

var ErrSessionNotFound = errors.New("session not found")

type Session struct {
	ID        string
	OwnerID   string
	Player    *playback.Player
	Outbox    *Outbox
	CreatedAt time.Time

	connMu     sync.Mutex
	cancelConn context.CancelFunc
	errs       chan string
}

// reportError hands an intent failure to the live websocket writer, if any.
// Errors are dropped when nobody is reading.
func (s *Session) reportError(err error) {
	select {
	case s.errs <- err.Error():
	default:
	}
}

// claimConn makes the caller the session's only live websocket and cancels
// the previous one.
func (s *Session) claimConn(cancel context.CancelFunc) {
	s.connMu.Lock()
	prev := s.cancelConn
	s.cancelConn = cancel
	s.connMu.Unlock()
	if prev != nil {
		prev()
	}
}

func (s *Session) close() {
	s.connMu.Lock()
	cancel := s.cancelConn
	s.cancelConn = nil
	s.connMu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.Player.Close()
}

type Registry struct {
	clock     clockwork.Clock
	idleTTL   time.Duration
	hideDelay time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

type Option func(*Registry)

func WithClock(c clockwork.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

func WithHideDelay(d time.Duration) Option {
	return func(r *Registry) { r.hideDelay = d }
}

func NewRegistry(idleTTL time.Duration, opts ...Option) *Registry {
	r := &Registry{
		clock:     clockwork.NewRealClock(),
		idleTTL:   idleTTL,
		hideDelay: playback.DefaultHideDelay,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts an empty session owned by ownerID.
func (r *Registry) Create(ownerID string) *Session {
	outbox := NewOutbox()
	s := &Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Outbox:    outbox,
		Player:    playback.NewPlayer(outbox, r.clock, playback.WithHideDelay(r.hideDelay)),
		CreatedAt: r.clock.Now(),
		errs:      make(chan string, 8),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
	return s
}

// Get returns the session only to its owner. Sessions of other users are
// reported as missing.
func (r *Registry) Get(id, ownerID string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.close()
	metrics.SetActiveSessions(n)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Evict closes every session idle for longer than the TTL and returns how
// many were removed.
func (r *Registry) Evict() int {
	now := r.clock.Now()

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if now.Sub(s.Player.LastActive()) > r.idleTTL {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range stale {
		s.close()
	}
	if len(stale) > 0 {
		slog.Info("session: evicted idle sessions", "count", len(stale), "active", n)
		metrics.SetActiveSessions(n)
	}
	return len(stale)
}

// StartEvictionLoop runs Evict every interval until ctx is done.
func (r *Registry) StartEvictionLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := r.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				r.Evict()
			}
		}
	}()
}

// CloseAll ends every session. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.close()
	}
	metrics.SetActiveSessions(0)
}
