package playback

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultHideDelay = 3 * time.Second

type ControlsOption func(*Controls)

func WithHideDelay(d time.Duration) ControlsOption {
	return func(c *Controls) {
		if d > 0 {
			c.delay = d
		}
	}
}

// Controls is the on-screen controls visibility timer. It starts visible,
// and a countdown elapsing while playing hides it. Controls is safe for
// concurrent use; listeners run without any Controls lock held.
type Controls struct {
	clock clockwork.Clock
	delay time.Duration

	mu        sync.Mutex
	visible   bool
	playing   bool
	timer     clockwork.Timer
	gen       uint64
	listeners map[int]func(bool)
	nextID    int
}

func NewControls(clock clockwork.Clock, opts ...ControlsOption) *Controls {
	c := &Controls{
		clock:     clock,
		delay:     DefaultHideDelay,
		visible:   true,
		listeners: make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controls) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Subscribe registers fn for visibility changes.
func (c *Controls) Subscribe(fn func(visible bool)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Activity shows the controls and restarts the countdown.
func (c *Controls) Activity() {
	c.mu.Lock()
	changed := !c.visible
	c.visible = true
	c.restartLocked()
	c.mu.Unlock()

	if changed {
		c.notify(true)
	}
}

// OnPlay allows the next countdown elapse to hide the controls. If no
// countdown is pending one is started, so the controls fade out after play
// even without pointer movement.
func (c *Controls) OnPlay() {
	c.mu.Lock()
	c.playing = true
	if c.timer == nil {
		c.restartLocked()
	}
	c.mu.Unlock()
}

// OnPause forces the controls visible and cancels any pending countdown.
func (c *Controls) OnPause() {
	c.mu.Lock()
	c.playing = false
	c.stopLocked()
	changed := !c.visible
	c.visible = true
	c.mu.Unlock()

	if changed {
		c.notify(true)
	}
}

// SetPlaying applies a play-state edge. Repeating the current state is a
// no-op, so callers may report the state rather than track edges. Callers
// must serialise SetPlaying among themselves.
func (c *Controls) SetPlaying(playing bool) {
	c.mu.Lock()
	same := c.playing == playing
	c.mu.Unlock()
	if same {
		return
	}
	if playing {
		c.OnPlay()
		return
	}
	c.OnPause()
}

// Stop cancels the pending countdown. Used when the session goes away.
func (c *Controls) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

func (c *Controls) restartLocked() {
	c.stopLocked()
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.delay, func() { c.expire(gen) })
}

func (c *Controls) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controls) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		// a later reset superseded this countdown
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if !c.playing || !c.visible {
		c.mu.Unlock()
		return
	}
	c.visible = false
	c.mu.Unlock()

	c.notify(false)
}

func (c *Controls) notify(visible bool) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(visible)
	}
}
