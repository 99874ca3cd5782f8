// Package remote maps OS-level remote-control and background-audio events
// onto player operations. The bridge holds no playback state of its own
// beyond the transient duck bookkeeping.
package remote

import (
	"sync"
	"time"

	"github.com/stillwave/player/internal/constants"
	"github.com/stillwave/player/internal/logger"
	"github.com/stillwave/player/internal/player"
)

// EventType identifies an incoming remote-control signal.
type EventType string

const (
	EventPlay          EventType = "play"
	EventPause         EventType = "pause"
	EventStop          EventType = "stop"
	EventNext          EventType = "next"
	EventPrevious      EventType = "previous"
	EventSeek          EventType = "seek"
	EventJumpForward   EventType = "jump_forward"
	EventJumpBackward  EventType = "jump_backward"
	EventDuck          EventType = "duck"
	EventPlaybackError EventType = "playback_error"
)

// Event is one remote-control signal. Fields beyond Type are read only by
// the event kinds that use them.
type Event struct {
	Type            EventType `json:"type"`
	PositionSeconds float64   `json:"position_seconds,omitempty"`
	IntervalSeconds float64   `json:"interval_seconds,omitempty"`
	DuckPaused      bool      `json:"duck_paused,omitempty"`
	DuckPermanent   bool      `json:"duck_permanent,omitempty"`
	Message         string    `json:"message,omitempty"`
}

// PlayerControl is the slice of the player the bridge drives.
type PlayerControl interface {
	Play()
	Pause()
	Stop()
	SkipToNext()
	SkipToPrevious()
	SeekTo(seconds float64)
	SetVolumeTransient(v float64)
	State() player.Snapshot
}

type Bridge struct {
	mu     sync.Mutex
	player PlayerControl
	log    *logger.Logger

	registered bool

	ducking    bool
	duckGen    uint64
	preDuckVol float64
	duckDelay  time.Duration
}

func NewBridge(p PlayerControl, log *logger.Logger) *Bridge {
	return &Bridge{
		player:    p,
		log:       log.WithComponent("remote"),
		duckDelay: constants.DuckRestoreDelay,
	}
}

// Register enables event handling. Safe to call repeatedly on app
// foreground transitions.
func (b *Bridge) Register() {
	b.mu.Lock()
	b.registered = true
	b.mu.Unlock()
}

// Unregister disables event handling. A duck in progress is wound down:
// its timer is invalidated and the pre-duck volume restored now, so the
// player is not left at the ducked level. Safe to call repeatedly.
func (b *Bridge) Unregister() {
	b.mu.Lock()
	b.registered = false
	wasDucking := b.ducking
	restore := b.preDuckVol
	b.ducking = false
	b.duckGen++
	b.mu.Unlock()
	if wasDucking {
		b.player.SetVolumeTransient(restore)
	}
}

func (b *Bridge) Registered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registered
}

// HandleEvent dispatches one remote event to the player. Events arriving
// while unregistered are dropped.
func (b *Bridge) HandleEvent(e Event) {
	b.mu.Lock()
	if !b.registered {
		b.mu.Unlock()
		b.log.Debug("dropping remote event while unregistered", "type", e.Type)
		return
	}
	b.mu.Unlock()

	switch e.Type {
	case EventPlay:
		b.player.Play()
	case EventPause:
		b.player.Pause()
	case EventStop:
		b.player.Stop()
	case EventNext:
		b.player.SkipToNext()
	case EventPrevious:
		b.player.SkipToPrevious()
	case EventSeek:
		b.player.SeekTo(e.PositionSeconds)
	case EventJumpForward:
		b.jump(+1, e.IntervalSeconds)
	case EventJumpBackward:
		b.jump(-1, e.IntervalSeconds)
	case EventDuck:
		b.duck(e)
	case EventPlaybackError:
		b.recoverFromError(e)
	default:
		b.log.Warn("unknown remote event", "type", e.Type)
	}
}

// jump seeks relative to the current position, clamped to [0, duration].
// A zero interval falls back to the ten-second default.
func (b *Bridge) jump(direction float64, interval float64) {
	if interval <= 0 {
		interval = constants.DefaultJumpIntervalSeconds
	}
	st := b.player.State()
	target := st.Playback.PositionSeconds + direction*interval
	if target < 0 {
		target = 0
	}
	if st.Playback.DurationSeconds > 0 && target > st.Playback.DurationSeconds {
		target = st.Playback.DurationSeconds
	}
	b.player.SeekTo(target)
}

// duck lowers volume for a competing audio source. The paused flag pauses
// outright, the permanent flag stops; otherwise volume drops to 30% of the
// pre-duck value and the captured value is restored after two seconds.
func (b *Bridge) duck(e Event) {
	if e.DuckPaused {
		b.player.Pause()
		return
	}
	if e.DuckPermanent {
		b.player.Stop()
		return
	}

	b.mu.Lock()
	if !b.ducking {
		b.preDuckVol = b.player.State().Playback.Volume
		b.ducking = true
	}
	pre := b.preDuckVol
	b.duckGen++
	gen := b.duckGen
	delay := b.duckDelay
	b.mu.Unlock()

	// Transient: a duck is never the user's volume preference.
	b.player.SetVolumeTransient(pre * constants.DuckVolumeFactor)

	time.AfterFunc(delay, func() {
		b.mu.Lock()
		if gen != b.duckGen || !b.ducking {
			b.mu.Unlock()
			return
		}
		b.ducking = false
		restore := b.preDuckVol
		b.mu.Unlock()
		b.player.SetVolumeTransient(restore)
	})
}

// recoverFromError treats a native playback failure as best-effort: move
// on when a next track exists, otherwise stop.
func (b *Bridge) recoverFromError(e Event) {
	b.log.Error("native playback error", "message", e.Message)
	st := b.player.State()
	if st.CurrentTrackIndex != nil && *st.CurrentTrackIndex+1 < len(st.Queue) {
		b.player.SkipToNext()
		return
	}
	b.player.Stop()
}
