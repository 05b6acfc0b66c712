package playback

import "fmt"

// fakeElement records every command issued to the media element.
type fakeElement struct {
	loaded   []Source
	commands []string
	volume   float64
}

func (f *fakeElement) Load(src Source) {
	f.loaded = append(f.loaded, src)
	f.commands = append(f.commands, "load "+src.Locator)
}

func (f *fakeElement) Play(token uint64) {
	f.commands = append(f.commands, fmt.Sprintf("play %d", token))
}

func (f *fakeElement) Pause(token uint64) {
	f.commands = append(f.commands, fmt.Sprintf("pause %d", token))
}

func (f *fakeElement) Seek(token uint64, seconds float64) {
	f.commands = append(f.commands, fmt.Sprintf("seek %d %g", token, seconds))
}

func (f *fakeElement) SetVolume(level float64) {
	f.volume = level
	f.commands = append(f.commands, fmt.Sprintf("volume %g", level))
}

func (f *fakeElement) RequestFullscreen() {
	f.commands = append(f.commands, "requestFullscreen")
}

func (f *fakeElement) ExitFullscreen() {
	f.commands = append(f.commands, "exitFullscreen")
}

func (f *fakeElement) lastCommand() string {
	if len(f.commands) == 0 {
		return ""
	}
	return f.commands[len(f.commands)-1]
}

func (f *fakeElement) lastSource() Source {
	if len(f.loaded) == 0 {
		return Source{}
	}
	return f.loaded[len(f.loaded)-1]
}

func intPtr(v int) *int { return &v }

func testEntries() []VideoEntry {
	return []VideoEntry{
		{ID: "a", Title: "Intro", SourceURL: "https://cdn.test/a.mp4", OrderKey: intPtr(1)},
		{ID: "b", Title: "Basics", SourceURL: "https://cdn.test/b.mp4", OrderKey: intPtr(2)},
		{ID: "c", Title: "Build", SourceURL: "https://cdn.test/c.mp4"},
	}
}
