package session

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/vpplayer/vpplayer/internal/metrics"
	"github.com/vpplayer/vpplayer/internal/playback"
	"github.com/vpplayer/vpplayer/internal/validate"
)

const defaultSeekStep = 5

var (
	errInvalidOp    = errors.New("invalid op")
	errMissingValue = errors.New("value is required")
	errRefresh      = errors.New("failed to refresh videos")
)

// Intent is a user request against a session, either transport or queue.
type Intent struct {
	Op    string   `json:"op"`
	Value *float64 `json:"value,omitempty"`
	Key   string   `json:"key,omitempty"`
	Index *int     `json:"index,omitempty"`
	Term  string   `json:"term,omitempty"`
}

func (in Intent) value() (float64, error) {
	if in.Value == nil || math.IsNaN(*in.Value) || math.IsInf(*in.Value, 0) {
		return 0, errMissingValue
	}
	return *in.Value, nil
}

func (in Intent) step(def float64) float64 {
	if in.Value == nil || *in.Value <= 0 || math.IsInf(*in.Value, 0) {
		return def
	}
	return *in.Value
}

var transportOps = map[string]bool{
	"toggle": true, "play": true, "pause": true, "seek": true,
	"seekForward": true, "seekBackward": true, "volume": true,
	"volumeUp": true, "volumeDown": true, "fullscreen": true,
	"mute": true, "key": true,
}

var queueOps = map[string]bool{
	"select": true, "next": true, "previous": true, "filter": true, "refresh": true,
}

func applyTransport(p *playback.Player, in Intent) error {
	switch in.Op {
	case "toggle":
		p.TogglePlayPause()
	case "play":
		p.Play()
	case "pause":
		p.Pause()
	case "seek":
		v, err := in.value()
		if err != nil {
			return err
		}
		p.Seek(v)
	case "seekForward":
		p.SeekForward(in.step(defaultSeekStep))
	case "seekBackward":
		p.SeekBackward(in.step(defaultSeekStep))
	case "volume":
		v, err := in.value()
		if err != nil {
			return err
		}
		p.SetVolume(v)
	case "volumeUp":
		p.IncreaseVolume(in.step(playback.DefaultVolumeStep))
	case "volumeDown":
		p.DecreaseVolume(in.step(playback.DefaultVolumeStep))
	case "fullscreen":
		p.ToggleFullscreen()
	case "mute":
		p.ToggleMute()
	case "key":
		if in.Key == "" {
			return fmt.Errorf("%w: key is required", errInvalidOp)
		}
		// unbound keys are ignored, as in the browser
		if p.HandleKey(in.Key) {
			metrics.ObserveOperation("key:" + playback.KeyActionName(in.Key))
			return nil
		}
	default:
		return fmt.Errorf("%w: %q", errInvalidOp, in.Op)
	}
	metrics.ObserveOperation(in.Op)
	return nil
}

// applyQueue runs a queue op. Selecting an index outside the queue is not an
// error; the player is left as it was.
func applyQueue(ctx context.Context, p *playback.Player, lister playback.VideoLister, in Intent) error {
	switch in.Op {
	case "select":
		if in.Index == nil {
			return fmt.Errorf("%w: index is required", errInvalidOp)
		}
		p.SelectIndex(*in.Index)
	case "next":
		p.Next()
	case "previous":
		p.Previous()
	case "filter":
		if msg := validate.FilterTerm(in.Term); msg != "" {
			return fmt.Errorf("%w: %s", errInvalidOp, msg)
		}
		p.Filter(in.Term)
	case "refresh":
		if err := p.Refresh(ctx, lister); err != nil {
			return fmt.Errorf("%w: %w", errRefresh, err)
		}
	default:
		return fmt.Errorf("%w: %q", errInvalidOp, in.Op)
	}
	metrics.ObserveOperation(in.Op)
	return nil
}

// applyIntent routes a websocket intent to the transport or the queue.
func applyIntent(ctx context.Context, p *playback.Player, lister playback.VideoLister, in Intent) error {
	switch {
	case transportOps[in.Op]:
		return applyTransport(p, in)
	case queueOps[in.Op]:
		return applyQueue(ctx, p, lister, in)
	default:
		return fmt.Errorf("%w: %q", errInvalidOp, in.Op)
	}
}

func applyEvent(p *playback.Player, ev playback.MediaEvent) bool {
	applied := p.HandleEvent(ev)
	metrics.ObserveMediaEvent(string(ev.Type), applied)
	return applied
}
