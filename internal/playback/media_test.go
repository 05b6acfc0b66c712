package playback

import (
	"errors"
	"math"
	"testing"
)

func attachedMedia(t *testing.T, duration float64) (*Media, *fakeElement) {
	t.Helper()
	el := &fakeElement{}
	m := NewMedia(el)
	m.Attach("https://cdn.test/video.mp4")
	if duration > 0 {
		m.HandleEvent(MediaEvent{Type: EventLoadedMetadata, Token: m.State().Source.Token, Duration: duration})
	}
	return m, el
}

func TestAttachResetsState(t *testing.T) {
	m, el := attachedMedia(t, 120)
	token := m.State().Source.Token
	m.HandleEvent(MediaEvent{Type: EventPlay, Token: token})
	m.HandleEvent(MediaEvent{Type: EventTimeUpdate, Token: token, Time: 40})
	m.SetVolume(0.4)

	m.Attach("https://cdn.test/other.mp4")
	st := m.State()

	if st.Position != 0 {
		t.Errorf("expected position 0, got %v", st.Position)
	}
	if st.Duration != 0 {
		t.Errorf("expected unknown duration, got %v", st.Duration)
	}
	if st.Playing() {
		t.Error("expected paused after attach")
	}
	if !st.Loading {
		t.Error("expected loading after attach")
	}
	if st.Volume != 0.4 {
		t.Errorf("expected volume to carry over, got %v", st.Volume)
	}
	if st.Source.Token == token {
		t.Error("expected a new source token")
	}
	if el.lastSource().Locator != "https://cdn.test/other.mp4" {
		t.Errorf("expected element to load new source, got %q", el.lastSource().Locator)
	}
}

func TestAttachEmptyLocatorSurfacesError(t *testing.T) {
	el := &fakeElement{}
	m := NewMedia(el)
	m.Attach("")

	st := m.State()
	if !errors.Is(st.Err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", st.Err)
	}
	if st.Loading || st.Playing() {
		t.Error("expected not loading and not playing")
	}
	if len(el.loaded) != 0 {
		t.Error("expected no load command for an empty locator")
	}
}

func TestTogglePlayPauseWithoutSourceIsNoop(t *testing.T) {
	el := &fakeElement{}
	m := NewMedia(el)

	m.TogglePlayPause()

	if m.State().Playing() {
		t.Error("expected not playing without a source")
	}
	if len(el.commands) != 0 {
		t.Errorf("expected no commands, got %v", el.commands)
	}
}

func TestTogglePlayPauseOptimisticThenConfirmed(t *testing.T) {
	m, el := attachedMedia(t, 60)
	token := m.State().Source.Token

	m.TogglePlayPause()
	if m.State().PlayState != PendingPlay {
		t.Fatalf("expected pending, got %v", m.State().PlayState)
	}
	if !m.State().Playing() {
		t.Error("expected optimistic is-playing while pending")
	}
	if el.lastCommand() != "play 1" {
		t.Errorf("expected play command, got %q", el.lastCommand())
	}

	m.HandleEvent(MediaEvent{Type: EventPlay, Token: token})
	if m.State().PlayState != Playing {
		t.Errorf("expected playing after play event, got %v", m.State().PlayState)
	}
}

func TestTogglePlayPauseTwiceReturnsToPaused(t *testing.T) {
	m, _ := attachedMedia(t, 60)
	token := m.State().Source.Token

	m.TogglePlayPause()
	m.HandleEvent(MediaEvent{Type: EventPlay, Token: token})
	m.TogglePlayPause()
	m.HandleEvent(MediaEvent{Type: EventPause, Token: token})

	if m.State().PlayState != Paused {
		t.Errorf("expected paused, got %v", m.State().PlayState)
	}
}

func TestPlayRejectedRevertsOptimisticState(t *testing.T) {
	m, _ := attachedMedia(t, 60)
	token := m.State().Source.Token

	m.TogglePlayPause()
	m.HandleEvent(MediaEvent{Type: EventPlayRejected, Token: token, Message: "NotAllowedError"})

	st := m.State()
	if st.Playing() {
		t.Error("expected is-playing reverted")
	}
	if !errors.Is(st.Err, ErrPlaybackDenied) {
		t.Errorf("expected ErrPlaybackDenied, got %v", st.Err)
	}

	m.TogglePlayPause()
	if m.State().Err != nil {
		t.Errorf("expected denial cleared on a new play request, got %v", m.State().Err)
	}
}

func TestSeekClampsToDuration(t *testing.T) {
	tests := []struct {
		target float64
		want   float64
	}{
		{30, 30},
		{-10, 0},
		{500, 100},
		{100, 100},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		m, el := attachedMedia(t, 100)
		m.Seek(tt.target)
		if got := m.State().Position; got != tt.want {
			t.Errorf("Seek(%v): expected %v, got %v", tt.target, tt.want, got)
		}
		if el.lastCommand() == "" {
			t.Error("expected seek command")
		}
	}
}

func TestSeekWithUnknownDurationOnlyClampsBelow(t *testing.T) {
	m, _ := attachedMedia(t, 0)

	m.Seek(900)
	if m.State().Position != 900 {
		t.Errorf("expected 900, got %v", m.State().Position)
	}
	m.Seek(-3)
	if m.State().Position != 0 {
		t.Errorf("expected 0, got %v", m.State().Position)
	}
}

func TestSeekDoesNotChangePlayState(t *testing.T) {
	m, _ := attachedMedia(t, 100)
	m.Play()
	m.Seek(20)
	if m.State().PlayState != PendingPlay {
		t.Errorf("expected play state untouched, got %v", m.State().PlayState)
	}
}

func TestSeekForwardAndBackward(t *testing.T) {
	m, _ := attachedMedia(t, 100)
	m.Seek(50)

	m.SeekForward(10)
	if m.State().Position != 60 {
		t.Errorf("expected 60, got %v", m.State().Position)
	}
	m.SeekForward(100)
	if m.State().Position != 100 {
		t.Errorf("expected clamp to 100, got %v", m.State().Position)
	}
	m.SeekBackward(130)
	if m.State().Position != 0 {
		t.Errorf("expected clamp to 0, got %v", m.State().Position)
	}
}

func TestSetVolumeClamps(t *testing.T) {
	tests := []struct {
		level float64
		want  float64
	}{
		{0.5, 0.5},
		{-1, 0},
		{2, 1},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		m := NewMedia(&fakeElement{})
		m.SetVolume(tt.level)
		if got := m.State().Volume; got != tt.want {
			t.Errorf("SetVolume(%v): expected %v, got %v", tt.level, tt.want, got)
		}
	}
}

func TestVolumeSteps(t *testing.T) {
	m := NewMedia(&fakeElement{})
	m.SetVolume(0.5)

	m.IncreaseVolume(0)
	if m.State().Volume != 0.6 {
		t.Errorf("expected default step to 0.6, got %v", m.State().Volume)
	}
	for i := 0; i < 10; i++ {
		m.IncreaseVolume(0.1)
	}
	if m.State().Volume != 1 {
		t.Errorf("expected clamp at 1, got %v", m.State().Volume)
	}
	for i := 0; i < 3; i++ {
		m.DecreaseVolume(0.1)
	}
	if m.State().Volume != 0.7 {
		t.Errorf("expected 0.7, got %v", m.State().Volume)
	}
	m.DecreaseVolume(5)
	if m.State().Volume != 0 {
		t.Errorf("expected clamp at 0, got %v", m.State().Volume)
	}
}

func TestToggleFullscreenFollowsEnvironment(t *testing.T) {
	m, el := attachedMedia(t, 60)

	m.ToggleFullscreen()
	if el.lastCommand() != "requestFullscreen" {
		t.Errorf("expected requestFullscreen, got %q", el.lastCommand())
	}
	if m.State().Fullscreen {
		t.Error("expected fullscreen to wait for the change notification")
	}

	m.HandleEvent(MediaEvent{Type: EventFullscreenChange, Fullscreen: true})
	if !m.State().Fullscreen {
		t.Error("expected fullscreen after change notification")
	}

	m.ToggleFullscreen()
	if el.lastCommand() != "exitFullscreen" {
		t.Errorf("expected exitFullscreen, got %q", el.lastCommand())
	}
}

func TestDeniedFullscreenStaysWindowed(t *testing.T) {
	m, _ := attachedMedia(t, 60)
	m.ToggleFullscreen()
	m.HandleEvent(MediaEvent{Type: EventFullscreenChange, Fullscreen: false})
	if m.State().Fullscreen {
		t.Error("expected windowed after denied request")
	}
}

func TestBufferedFraction(t *testing.T) {
	m, _ := attachedMedia(t, 200)
	token := m.State().Source.Token

	m.HandleEvent(MediaEvent{Type: EventProgress, Token: token, BufferedEnd: 50})
	if m.State().Buffered != 25 {
		t.Errorf("expected 25, got %v", m.State().Buffered)
	}
	m.HandleEvent(MediaEvent{Type: EventProgress, Token: token, BufferedEnd: 400})
	if m.State().Buffered != 100 {
		t.Errorf("expected clamp to 100, got %v", m.State().Buffered)
	}
}

func TestLoadingLifecycle(t *testing.T) {
	m, _ := attachedMedia(t, 0)
	token := m.State().Source.Token

	m.HandleEvent(MediaEvent{Type: EventLoadStart, Token: token})
	if !m.State().Loading {
		t.Error("expected loading at load start")
	}
	m.HandleEvent(MediaEvent{Type: EventCanPlay, Token: token})
	if m.State().Loading {
		t.Error("expected not loading at first playable point")
	}
	m.HandleEvent(MediaEvent{Type: EventWaiting, Token: token})
	if !m.State().Loading {
		t.Error("expected loading while waiting for data")
	}
}

func TestTimeUpdateClampedToDuration(t *testing.T) {
	m, _ := attachedMedia(t, 30)
	token := m.State().Source.Token

	m.HandleEvent(MediaEvent{Type: EventTimeUpdate, Token: token, Time: 12.5})
	if m.State().Position != 12.5 {
		t.Errorf("expected 12.5, got %v", m.State().Position)
	}
	m.HandleEvent(MediaEvent{Type: EventTimeUpdate, Token: token, Time: 31})
	if m.State().Position != 30 {
		t.Errorf("expected 30, got %v", m.State().Position)
	}
}

func TestInvalidDurationIgnored(t *testing.T) {
	m, _ := attachedMedia(t, 0)
	token := m.State().Source.Token

	for _, d := range []float64{0, -1, math.Inf(1), math.NaN()} {
		if m.HandleEvent(MediaEvent{Type: EventDurationChange, Token: token, Duration: d}) {
			t.Errorf("expected duration %v to be ignored", d)
		}
	}
	if m.State().Duration != 0 {
		t.Errorf("expected unknown duration, got %v", m.State().Duration)
	}
}

func TestStaleSourceEventsDiscarded(t *testing.T) {
	el := &fakeElement{}
	m := NewMedia(el)

	m.Attach("https://cdn.test/x.mp4")
	tokenX := m.State().Source.Token
	m.Attach("https://cdn.test/y.mp4")
	tokenY := m.State().Source.Token

	if m.HandleEvent(MediaEvent{Type: EventLoadedMetadata, Token: tokenX, Duration: 999}) {
		t.Error("expected event for abandoned source to be discarded")
	}
	if m.State().Duration != 0 {
		t.Errorf("expected duration still unknown, got %v", m.State().Duration)
	}

	if !m.HandleEvent(MediaEvent{Type: EventLoadedMetadata, Token: tokenY, Duration: 42}) {
		t.Error("expected event for current source to apply")
	}
	if m.State().Duration != 42 {
		t.Errorf("expected 42, got %v", m.State().Duration)
	}
}

func TestSameLocatorReattachedStillDiscardsOldEvents(t *testing.T) {
	m := NewMedia(&fakeElement{})
	m.Attach("https://cdn.test/x.mp4")
	old := m.State().Source.Token
	m.Attach("https://cdn.test/x.mp4")

	if m.HandleEvent(MediaEvent{Type: EventTimeUpdate, Token: old, Time: 10}) {
		t.Error("expected old attachment's event to be discarded")
	}
}

func TestErrorEventSurfacesState(t *testing.T) {
	m, _ := attachedMedia(t, 60)
	token := m.State().Source.Token
	m.Play()

	m.HandleEvent(MediaEvent{Type: EventError, Token: token, Message: "MEDIA_ERR_SRC_NOT_SUPPORTED"})

	st := m.State()
	if !errors.Is(st.Err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", st.Err)
	}
	if st.Playing() || st.Loading || st.Duration != 0 {
		t.Errorf("expected paused, not loading, unknown duration; got %+v", st)
	}
}

func TestEndedRunsHook(t *testing.T) {
	m, _ := attachedMedia(t, 60)
	token := m.State().Source.Token
	called := 0
	m.OnEnded(func() { called++ })

	m.HandleEvent(MediaEvent{Type: EventPlay, Token: token})
	m.HandleEvent(MediaEvent{Type: EventEnded, Token: token})

	if called != 1 {
		t.Errorf("expected hook once, got %d", called)
	}
	if m.State().Playing() {
		t.Error("expected paused after end")
	}
	if m.State().Position != 60 {
		t.Errorf("expected position at duration, got %v", m.State().Position)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	m := NewMedia(&fakeElement{})
	var got []MediaState
	unsubscribe := m.Subscribe(func(s MediaState) { got = append(got, s) })

	m.SetVolume(0.3)
	m.Attach("https://cdn.test/a.mp4")
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Volume != 0.3 {
		t.Errorf("expected volume 0.3 in first notification, got %v", got[0].Volume)
	}

	unsubscribe()
	m.SetVolume(0.9)
	if len(got) != 2 {
		t.Errorf("expected no notification after unsubscribe, got %d", len(got))
	}
}
