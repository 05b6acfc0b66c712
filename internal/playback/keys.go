package playback

const (
	shortSeek = 5
	longSeek  = 10
)

type keyAction struct {
	name    string
	handler func(p *Player)
}

// keyBindings maps KeyboardEvent.key values to player actions.
var keyBindings = map[string]keyAction{
	" ":          {"togglePlay", (*Player).TogglePlayPause},
	"k":          {"togglePlay", (*Player).TogglePlayPause},
	"ArrowLeft":  {"seekBack", func(p *Player) { p.SeekBackward(shortSeek) }},
	"ArrowRight": {"seekForward", func(p *Player) { p.SeekForward(shortSeek) }},
	"j":          {"seekBackLong", func(p *Player) { p.SeekBackward(longSeek) }},
	"l":          {"seekForwardLong", func(p *Player) { p.SeekForward(longSeek) }},
	"ArrowUp":    {"volumeUp", func(p *Player) { p.IncreaseVolume(DefaultVolumeStep) }},
	"ArrowDown":  {"volumeDown", func(p *Player) { p.DecreaseVolume(DefaultVolumeStep) }},
	"f":          {"fullscreen", (*Player).ToggleFullscreen},
	"m":          {"mute", (*Player).ToggleMute},
	"n":          {"next", func(p *Player) { p.Next() }},
	"p":          {"previous", func(p *Player) { p.Previous() }},
}

// HandleKey dispatches a key press and reports whether it was bound. Digits
// 0-9 jump to that tenth of the video.
func (p *Player) HandleKey(key string) bool {
	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		p.SeekFraction(float64(key[0]-'0') / 10)
		return true
	}
	action, ok := keyBindings[key]
	if !ok {
		return false
	}
	action.handler(p)
	return true
}

// KeyActionName returns the action bound to key, or "" when unbound.
func KeyActionName(key string) string {
	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		return "seekFraction"
	}
	return keyBindings[key].name
}
