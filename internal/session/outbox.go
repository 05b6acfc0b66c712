package session

import (
	"sync"

	"github.com/vpplayer/vpplayer/internal/playback"
)

const maxPendingCommands = 256

type CommandType string

const (
	CommandLoad              CommandType = "load"
	CommandPlay              CommandType = "play"
	CommandPause             CommandType = "pause"
	CommandSeek              CommandType = "seek"
	CommandVolume            CommandType = "volume"
	CommandRequestFullscreen CommandType = "requestFullscreen"
	CommandExitFullscreen    CommandType = "exitFullscreen"
)

// Command is one instruction for the browser's <video> element. Token ties
// load, play, pause and seek to the source they were issued for.
type Command struct {
	Type    CommandType `json:"type"`
	Token   uint64      `json:"token,omitempty"`
	Locator string      `json:"locator,omitempty"`
	Value   float64     `json:"value"`
}

// Outbox is the playback.MediaElement of a remote session. It never blocks:
// commands queue until the websocket writer or a poll drains them.
type Outbox struct {
	mu      sync.Mutex
	pending []Command
	ready   chan struct{}
}

func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Ready is signalled whenever commands become pending.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

// Drain returns and clears the pending commands in issue order.
func (o *Outbox) Drain() []Command {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	if out == nil {
		out = []Command{}
	}
	return out
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *Outbox) push(c Command) {
	o.mu.Lock()
	switch {
	case c.Type == CommandLoad:
		// earlier source-bound commands target an abandoned source
		kept := o.pending[:0]
		for _, p := range o.pending {
			if p.Token == 0 {
				kept = append(kept, p)
			}
		}
		o.pending = kept
	case len(o.pending) > 0 && (c.Type == CommandSeek || c.Type == CommandVolume):
		if last := &o.pending[len(o.pending)-1]; last.Type == c.Type && last.Token == c.Token {
			*last = c
			o.mu.Unlock()
			o.signal()
			return
		}
	}
	if len(o.pending) >= maxPendingCommands {
		o.evictLocked()
	}
	o.pending = append(o.pending, c)
	o.mu.Unlock()
	o.signal()
}

// evictLocked drops the oldest command other than the pending load, which
// the browser needs to reach the current source at all.
func (o *Outbox) evictLocked() {
	victim := 0
	for i, p := range o.pending {
		if p.Type != CommandLoad {
			victim = i
			break
		}
	}
	o.pending = append(o.pending[:victim], o.pending[victim+1:]...)
}

func (o *Outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

func (o *Outbox) Load(src playback.Source) {
	o.push(Command{Type: CommandLoad, Token: src.Token, Locator: src.Locator})
}

func (o *Outbox) Play(token uint64) {
	o.push(Command{Type: CommandPlay, Token: token})
}

func (o *Outbox) Pause(token uint64) {
	o.push(Command{Type: CommandPause, Token: token})
}

func (o *Outbox) Seek(token uint64, seconds float64) {
	o.push(Command{Type: CommandSeek, Token: token, Value: seconds})
}

func (o *Outbox) SetVolume(level float64) {
	o.push(Command{Type: CommandVolume, Value: level})
}

func (o *Outbox) RequestFullscreen() {
	o.push(Command{Type: CommandRequestFullscreen})
}

func (o *Outbox) ExitFullscreen() {
	o.push(Command{Type: CommandExitFullscreen})
}

var _ playback.MediaElement = (*Outbox)(nil)
