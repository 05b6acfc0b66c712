// Package playback holds the player core: the media session controller, the
// playback queue and the controls visibility timer, composed by Player.
package playback

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/vpplayer/vpplayer/internal/timefmt"
)

const DefaultVolumeStep = 0.1

var (
	ErrSourceUnavailable = errors.New("media source unavailable")
	ErrPlaybackDenied    = errors.New("playback request denied")
)

// PlayState models play/pause with an explicit pending state so an optimistic
// play request can be reconciled against the element's own events.
type PlayState int

const (
	Paused PlayState = iota
	PendingPlay
	Playing
)

func (s PlayState) String() string {
	switch s {
	case PendingPlay:
		return "pending"
	case Playing:
		return "playing"
	default:
		return "paused"
	}
}

// Source identifies one attachment of a locator. Token changes on every
// Attach, even when the same locator is attached twice.
type Source struct {
	Token   uint64 `json:"token"`
	Locator string `json:"locator"`
}

// MediaElement is the playback environment: a browser <video> element on the
// other side of a websocket, or a fake in tests. Commands are fire-and-forget;
// outcomes come back through Media.HandleEvent.
type MediaElement interface {
	Load(src Source)
	Play(token uint64)
	Pause(token uint64)
	Seek(token uint64, seconds float64)
	SetVolume(level float64)
	RequestFullscreen()
	ExitFullscreen()
}

type EventType string

const (
	EventLoadStart        EventType = "loadstart"
	EventLoadedMetadata   EventType = "loadedmetadata"
	EventDurationChange   EventType = "durationchange"
	EventTimeUpdate       EventType = "timeupdate"
	EventProgress         EventType = "progress"
	EventWaiting          EventType = "waiting"
	EventCanPlay          EventType = "canplay"
	EventPlaying          EventType = "playing"
	EventPlay             EventType = "play"
	EventPause            EventType = "pause"
	EventPlayRejected     EventType = "playrejected"
	EventEnded            EventType = "ended"
	EventError            EventType = "error"
	EventFullscreenChange EventType = "fullscreenchange"
)

// MediaEvent is one notification from the element. Token must echo the token
// of the Source the element was loaded with.
type MediaEvent struct {
	Type        EventType `json:"type"`
	Token       uint64    `json:"token"`
	Time        float64   `json:"time,omitempty"`
	Duration    float64   `json:"duration,omitempty"`
	BufferedEnd float64   `json:"bufferedEnd,omitempty"`
	Fullscreen  bool      `json:"fullscreen,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// MediaState is the observable transport state. Duration 0 means unknown.
type MediaState struct {
	Source     Source
	PlayState  PlayState
	Position   float64
	Duration   float64
	Volume     float64
	Fullscreen bool
	Loading    bool
	Buffered   float64
	Err        error
}

// Playing reports the optimistic is-playing flag: true while a play request
// is pending as well as once it is confirmed.
func (s MediaState) Playing() bool {
	return s.PlayState != Paused
}

// Attached reports whether a source is bound.
func (s MediaState) Attached() bool {
	return s.Source.Token != 0 && s.Source.Locator != ""
}

// Media is the media session controller. It is the only writer of MediaState.
// Media is not safe for concurrent use; Player serialises access to it.
type Media struct {
	element   MediaElement
	state     MediaState
	lastToken uint64
	onEnded   func()

	observers      map[int]func(MediaState)
	nextObserverID int
}

func NewMedia(element MediaElement) *Media {
	return &Media{
		element:   element,
		state:     MediaState{Volume: 1},
		observers: make(map[int]func(MediaState)),
	}
}

// State returns a copy of the current state.
func (m *Media) State() MediaState {
	return m.state
}

// OnEnded registers the hook run after a natural end-of-media.
func (m *Media) OnEnded(fn func()) {
	m.onEnded = fn
}

// Subscribe registers fn to receive every state change. The returned func
// removes the subscription.
func (m *Media) Subscribe(fn func(MediaState)) func() {
	id := m.nextObserverID
	m.nextObserverID++
	m.observers[id] = fn
	return func() { delete(m.observers, id) }
}

func (m *Media) notify() {
	if len(m.observers) == 0 {
		return
	}
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		m.observers[id](m.state)
	}
}

// Attach binds a new source and abandons the previous one. Position, duration
// and buffering reset; volume and fullscreen carry over.
func (m *Media) Attach(locator string) {
	m.lastToken++
	m.state.Source = Source{Token: m.lastToken, Locator: locator}
	m.state.PlayState = Paused
	m.state.Position = 0
	m.state.Duration = 0
	m.state.Buffered = 0
	m.state.Err = nil

	if locator == "" {
		m.state.Loading = false
		m.state.Err = fmt.Errorf("%w: empty locator", ErrSourceUnavailable)
		m.notify()
		return
	}

	m.state.Loading = true
	m.element.Load(m.state.Source)
	m.notify()
}

// TogglePlayPause pauses a playing (or pending) session and requests playback
// on a paused one. Without a source it does nothing.
func (m *Media) TogglePlayPause() {
	if m.state.Playing() {
		m.Pause()
		return
	}
	m.Play()
}

// Play requests playback. is-playing flips optimistically; a later play,
// pause, playrejected or error event settles it.
func (m *Media) Play() {
	if !m.state.Attached() || m.state.PlayState != Paused {
		return
	}
	if errors.Is(m.state.Err, ErrPlaybackDenied) {
		m.state.Err = nil
	}
	m.state.PlayState = PendingPlay
	m.element.Play(m.state.Source.Token)
	m.notify()
}

func (m *Media) Pause() {
	if !m.state.Attached() || m.state.PlayState == Paused {
		return
	}
	m.state.PlayState = Paused
	m.element.Pause(m.state.Source.Token)
	m.notify()
}

// Seek moves to target clamped into [0, duration] (or [0, +inf) while the
// duration is unknown). Play state is untouched.
func (m *Media) Seek(target float64) {
	if !m.state.Attached() {
		return
	}
	m.state.Position = m.clampPosition(target)
	m.element.Seek(m.state.Source.Token, m.state.Position)
	m.notify()
}

func (m *Media) SeekForward(delta float64) {
	m.Seek(m.state.Position + delta)
}

func (m *Media) SeekBackward(delta float64) {
	m.Seek(m.state.Position - delta)
}

// SetVolume applies level clamped to [0,1]. Volume lives in memory only.
func (m *Media) SetVolume(level float64) {
	m.state.Volume = clamp(level, 0, 1)
	m.element.SetVolume(m.state.Volume)
	m.notify()
}

func (m *Media) IncreaseVolume(step float64) {
	if step <= 0 {
		step = DefaultVolumeStep
	}
	m.SetVolume(roundVolume(m.state.Volume + step))
}

func (m *Media) DecreaseVolume(step float64) {
	if step <= 0 {
		step = DefaultVolumeStep
	}
	m.SetVolume(roundVolume(m.state.Volume - step))
}

// ToggleFullscreen only issues the request. The fullscreen flag follows the
// environment's fullscreenchange event, since requests can be denied.
func (m *Media) ToggleFullscreen() {
	if m.state.Fullscreen {
		m.element.ExitFullscreen()
		return
	}
	m.element.RequestFullscreen()
}

// HandleEvent applies one element event and reports whether it was applied.
// Events carrying a token other than the current source's are dropped.
func (m *Media) HandleEvent(ev MediaEvent) bool {
	if ev.Type == EventFullscreenChange {
		m.state.Fullscreen = ev.Fullscreen
		m.notify()
		return true
	}
	if ev.Token == 0 || ev.Token != m.state.Source.Token {
		return false
	}

	ended := false
	switch ev.Type {
	case EventLoadStart, EventWaiting:
		m.state.Loading = true
	case EventLoadedMetadata, EventDurationChange:
		if !validDuration(ev.Duration) {
			return false
		}
		m.state.Duration = ev.Duration
		m.state.Position = m.clampPosition(m.state.Position)
	case EventTimeUpdate:
		m.state.Position = m.clampPosition(ev.Time)
	case EventProgress:
		m.state.Buffered = timefmt.Percent(ev.BufferedEnd, m.state.Duration)
	case EventCanPlay, EventPlaying:
		m.state.Loading = false
		if ev.Type == EventPlaying {
			m.state.PlayState = Playing
		}
	case EventPlay:
		m.state.PlayState = Playing
	case EventPause:
		m.state.PlayState = Paused
	case EventPlayRejected:
		m.state.PlayState = Paused
		m.state.Err = ErrPlaybackDenied
	case EventEnded:
		m.state.PlayState = Paused
		if m.state.Duration > 0 {
			m.state.Position = m.state.Duration
		}
		ended = true
	case EventError:
		m.state.PlayState = Paused
		m.state.Loading = false
		m.state.Duration = 0
		m.state.Buffered = 0
		msg := ev.Message
		if msg == "" {
			msg = "media error"
		}
		m.state.Err = fmt.Errorf("%w: %s", ErrSourceUnavailable, msg)
	default:
		return false
	}

	m.notify()
	if ended && m.onEnded != nil {
		m.onEnded()
	}
	return true
}

func (m *Media) clampPosition(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if math.IsInf(t, 1) && m.state.Duration <= 0 {
		return m.state.Position
	}
	if m.state.Duration > 0 && t > m.state.Duration {
		return m.state.Duration
	}
	return t
}

func validDuration(d float64) bool {
	return d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// roundVolume keeps repeated 0.1 steps from drifting (0.1+0.2 != 0.3).
func roundVolume(v float64) float64 {
	return math.Round(v*100) / 100
}
