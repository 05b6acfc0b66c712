package playback

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vpplayer/vpplayer/internal/timefmt"
)

// Snapshot is the observable state of one player. Seq increases with every
// published change so consumers can drop stale snapshots.
type Snapshot struct {
	Seq             uint64      `json:"seq"`
	Playing         bool        `json:"playing"`
	PlayState       string      `json:"playState"`
	Position        float64     `json:"position"`
	Duration        float64     `json:"duration"`
	PositionLabel   string      `json:"positionLabel"`
	DurationLabel   string      `json:"durationLabel"`
	Volume          float64     `json:"volume"`
	Muted           bool        `json:"muted"`
	Fullscreen      bool        `json:"fullscreen"`
	Loading         bool        `json:"loading"`
	Buffered        float64     `json:"buffered"`
	Source          Source      `json:"source"`
	Current         *VideoEntry `json:"current"`
	CurrentIndex    int         `json:"currentIndex"`
	QueueLength     int         `json:"queueLength"`
	Filter          string      `json:"filter"`
	VisibleIndices  []int       `json:"visibleIndices"`
	ControlsVisible bool        `json:"controlsVisible"`
	Error           string      `json:"error,omitempty"`
}

// Player wires a Media, a Queue and a Controls timer together: end-of-media
// advances the queue, play state drives the controls timer. All media and
// queue mutations are serialised by one mutex.
type Player struct {
	clock    clockwork.Clock
	controls *Controls
	ctrlMu   sync.Mutex

	mu         sync.Mutex
	media      *Media
	queue      *Queue
	seq        uint64
	unmuted    float64
	lastActive time.Time

	lmu       sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int
}

func NewPlayer(element MediaElement, clock clockwork.Clock, opts ...ControlsOption) *Player {
	media := NewMedia(element)
	p := &Player{
		clock:      clock,
		media:      media,
		queue:      NewQueue(media),
		controls:   NewControls(clock, opts...),
		lastActive: clock.Now(),
		listeners:  make(map[int]func(Snapshot)),
	}
	media.OnEnded(func() { p.queue.AdvanceOnEnd() })
	p.controls.Subscribe(func(bool) { p.publish() })
	return p
}

// Subscribe registers fn for every published snapshot. fn must not block.
func (p *Player) Subscribe(fn func(Snapshot)) func() {
	p.lmu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.lmu.Unlock()
	return func() {
		p.lmu.Lock()
		delete(p.listeners, id)
		p.lmu.Unlock()
	}
}

// do runs fn under the player lock, then syncs the controls timer and
// publishes one snapshot. Controls are driven outside p.mu because their own
// listeners re-enter publish.
func (p *Player) do(fn func()) {
	p.mu.Lock()
	fn()
	p.lastActive = p.clock.Now()
	p.mu.Unlock()

	p.syncControls()
	p.publish()
}

// syncControls hands the controls timer the media's current play state.
// ctrlMu orders concurrent syncs, so the last one applied always reads the
// state left by the last mutation.
func (p *Player) syncControls() {
	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()

	p.mu.Lock()
	playing := p.media.State().Playing()
	p.mu.Unlock()

	p.controls.SetPlaying(playing)
}

func (p *Player) publish() {
	snap := p.Snapshot()

	p.lmu.Lock()
	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.listeners[id])
	}
	p.lmu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (p *Player) Snapshot() Snapshot {
	visible := p.controls.Visible()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	st := p.media.State()
	snap := Snapshot{
		Seq:             p.seq,
		Playing:         st.Playing(),
		PlayState:       st.PlayState.String(),
		Position:        st.Position,
		Duration:        st.Duration,
		PositionLabel:   timefmt.Clock(st.Position),
		DurationLabel:   timefmt.Clock(st.Duration),
		Volume:          st.Volume,
		Muted:           st.Volume == 0,
		Fullscreen:      st.Fullscreen,
		Loading:         st.Loading,
		Buffered:        st.Buffered,
		Source:          st.Source,
		CurrentIndex:    p.queue.CurrentIndex(),
		QueueLength:     p.queue.Len(),
		Filter:          p.queue.Term(),
		VisibleIndices:  p.queue.View().Indices(),
		ControlsVisible: visible,
	}
	if cur, ok := p.queue.Current(); ok {
		snap.Current = &cur
	}
	if st.Err != nil {
		snap.Error = st.Err.Error()
	}
	return snap
}

// MediaState returns the raw transport state.
func (p *Player) MediaState() MediaState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.media.State()
}

func (p *Player) Entries() []VideoEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Entries()
}

// LastActive is the time of the last state-changing call.
func (p *Player) LastActive() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActive
}

func (p *Player) TogglePlayPause()          { p.do(p.media.TogglePlayPause) }
func (p *Player) Play()                     { p.do(p.media.Play) }
func (p *Player) Pause()                    { p.do(p.media.Pause) }
func (p *Player) Seek(seconds float64)      { p.do(func() { p.media.Seek(seconds) }) }
func (p *Player) SeekForward(delta float64) { p.do(func() { p.media.SeekForward(delta) }) }
func (p *Player) SeekBackward(delta float64) {
	p.do(func() { p.media.SeekBackward(delta) })
}
func (p *Player) SetVolume(level float64)     { p.do(func() { p.media.SetVolume(level) }) }
func (p *Player) IncreaseVolume(step float64) { p.do(func() { p.media.IncreaseVolume(step) }) }
func (p *Player) DecreaseVolume(step float64) { p.do(func() { p.media.DecreaseVolume(step) }) }
func (p *Player) ToggleFullscreen()           { p.do(p.media.ToggleFullscreen) }

// ToggleMute drops the volume to zero, or restores the level in effect
// before the last mute.
func (p *Player) ToggleMute() {
	p.do(func() {
		vol := p.media.State().Volume
		if vol > 0 {
			p.unmuted = vol
			p.media.SetVolume(0)
			return
		}
		restore := p.unmuted
		if restore <= 0 {
			restore = 1
		}
		p.media.SetVolume(restore)
	})
}

// SeekFraction seeks to frac of the known duration. Unknown durations make it
// a no-op.
func (p *Player) SeekFraction(frac float64) {
	p.do(func() {
		d := p.media.State().Duration
		if d <= 0 {
			return
		}
		p.media.Seek(clamp(frac, 0, 1) * d)
	})
}

func (p *Player) Load(entries []VideoEntry) { p.do(func() { p.queue.Load(entries) }) }

func (p *Player) SelectIndex(i int) bool {
	var ok bool
	p.do(func() { ok = p.queue.SelectIndex(i) })
	return ok
}

func (p *Player) AdvanceOnEnd() bool {
	var ok bool
	p.do(func() { ok = p.queue.AdvanceOnEnd() })
	return ok
}

func (p *Player) Next() bool {
	var ok bool
	p.do(func() { ok = p.queue.Next() })
	return ok
}

func (p *Player) Previous() bool {
	var ok bool
	p.do(func() { ok = p.queue.Previous() })
	return ok
}

func (p *Player) Filter(term string) View {
	var v View
	p.do(func() { v = p.queue.Filter(term) })
	return v
}

// Refresh re-fetches the catalog and loads it. A failed fetch leaves the
// queue as it was.
func (p *Player) Refresh(ctx context.Context, lister VideoLister) error {
	entries, err := lister.ListVideos(ctx)
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}
	p.Load(entries)
	return nil
}

// HandleEvent applies an element event. Events from abandoned sources are
// dropped and reported as false.
func (p *Player) HandleEvent(ev MediaEvent) bool {
	var applied bool
	p.do(func() { applied = p.media.HandleEvent(ev) })
	return applied
}

// Activity records pointer activity over the player surface.
func (p *Player) Activity() {
	p.mu.Lock()
	p.lastActive = p.clock.Now()
	p.mu.Unlock()
	p.controls.Activity()
}

// Close stops the controls timer.
func (p *Player) Close() {
	p.controls.Stop()
}
