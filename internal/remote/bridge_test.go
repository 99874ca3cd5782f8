package remote

import (
	"sync"
	"testing"
	"time"

	"github.com/stillwave/player/internal/domain"
	"github.com/stillwave/player/internal/logger"
	"github.com/stillwave/player/internal/player"
)

// fakeControl records the player calls the bridge makes and serves a
// settable state.
type fakeControl struct {
	mu    sync.Mutex
	state player.Snapshot
	calls []string
	seeks []float64
	vols  []float64
}

func newFakeControl() *fakeControl {
	return &fakeControl{state: player.Snapshot{
		Playback: domain.PlaybackState{Volume: 1.0},
	}}
}

func (f *fakeControl) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeControl) Play()           { f.record("play") }
func (f *fakeControl) Pause()          { f.record("pause") }
func (f *fakeControl) Stop()           { f.record("stop") }
func (f *fakeControl) SkipToNext()     { f.record("next") }
func (f *fakeControl) SkipToPrevious() { f.record("previous") }

func (f *fakeControl) SeekTo(seconds float64) {
	f.mu.Lock()
	f.calls = append(f.calls, "seek")
	f.seeks = append(f.seeks, seconds)
	f.mu.Unlock()
}

func (f *fakeControl) SetVolumeTransient(v float64) {
	f.mu.Lock()
	f.calls = append(f.calls, "volume")
	f.vols = append(f.vols, v)
	f.state.Playback.Volume = v
	f.mu.Unlock()
}

func (f *fakeControl) State() player.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeControl) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeControl) LastSeek() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seeks) == 0 {
		return 0, false
	}
	return f.seeks[len(f.seeks)-1], true
}

func (f *fakeControl) Volumes() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.vols))
	copy(out, f.vols)
	return out
}

func newTestBridge(t *testing.T) (*Bridge, *fakeControl) {
	t.Helper()
	ctl := newFakeControl()
	b := NewBridge(ctl, logger.Default())
	b.Register()
	return b, ctl
}

func TestDirectEventMapping(t *testing.T) {
	b, ctl := newTestBridge(t)
	for _, e := range []EventType{EventPlay, EventPause, EventStop, EventNext, EventPrevious} {
		b.HandleEvent(Event{Type: e})
	}
	b.HandleEvent(Event{Type: EventSeek, PositionSeconds: 42})

	want := []string{"play", "pause", "stop", "next", "previous", "seek"}
	got := ctl.Calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
	if s, _ := ctl.LastSeek(); s != 42 {
		t.Errorf("seek position = %v, want 42", s)
	}
}

func TestJumpForwardClampsAtDuration(t *testing.T) {
	b, ctl := newTestBridge(t)
	ctl.state.Playback.PositionSeconds = 175
	ctl.state.Playback.DurationSeconds = 180

	b.HandleEvent(Event{Type: EventJumpForward, IntervalSeconds: 30})
	if s, ok := ctl.LastSeek(); !ok || s != 180 {
		t.Errorf("jump forward seeked to %v, want clamp at 180", s)
	}
}

func TestJumpBackwardClampsAtZero(t *testing.T) {
	b, ctl := newTestBridge(t)
	ctl.state.Playback.PositionSeconds = 4
	ctl.state.Playback.DurationSeconds = 180

	b.HandleEvent(Event{Type: EventJumpBackward, IntervalSeconds: 30})
	if s, ok := ctl.LastSeek(); !ok || s != 0 {
		t.Errorf("jump backward seeked to %v, want clamp at 0", s)
	}
}

func TestJumpDefaultsToTenSeconds(t *testing.T) {
	b, ctl := newTestBridge(t)
	ctl.state.Playback.PositionSeconds = 60
	ctl.state.Playback.DurationSeconds = 180

	b.HandleEvent(Event{Type: EventJumpForward})
	if s, _ := ctl.LastSeek(); s != 70 {
		t.Errorf("default jump forward seeked to %v, want 70", s)
	}
	b.HandleEvent(Event{Type: EventJumpBackward})
	if s, _ := ctl.LastSeek(); s != 50 {
		t.Errorf("default jump backward seeked to %v, want 50", s)
	}
}

func TestDuckRestoresPreDuckVolume(t *testing.T) {
	b, ctl := newTestBridge(t)
	b.duckDelay = 10 * time.Millisecond
	ctl.state.Playback.Volume = 0.8

	b.HandleEvent(Event{Type: EventDuck})
	vols := ctl.Volumes()
	if got := vols[len(vols)-1]; got < 0.23 || got > 0.25 {
		t.Fatalf("ducked volume = %v, want 30%% of 0.8", got)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ctl.State().Playback.Volume == 0.8 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("volume never restored to the pre-duck value, got %v", ctl.State().Playback.Volume)
}

func TestRepeatedDuckKeepsOriginalRestoreTarget(t *testing.T) {
	b, ctl := newTestBridge(t)
	b.duckDelay = 20 * time.Millisecond
	ctl.state.Playback.Volume = 0.6

	b.HandleEvent(Event{Type: EventDuck})
	b.HandleEvent(Event{Type: EventDuck})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ctl.State().Playback.Volume == 0.6 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("volume = %v, want restore to the original 0.6", ctl.State().Playback.Volume)
}

func TestUnregisterMidDuckRestoresVolume(t *testing.T) {
	b, ctl := newTestBridge(t)
	b.duckDelay = time.Hour
	ctl.state.Playback.Volume = 0.8

	b.HandleEvent(Event{Type: EventDuck})
	if got := ctl.State().Playback.Volume; got > 0.25 {
		t.Fatalf("volume after duck = %v, want ducked", got)
	}

	b.Unregister()
	if got := ctl.State().Playback.Volume; got != 0.8 {
		t.Errorf("volume after unregister = %v, want pre-duck 0.8", got)
	}

	// The duck timer was invalidated; a second unregister restores nothing.
	b.Unregister()
	if got := len(ctl.Volumes()); got != 2 {
		t.Errorf("volume calls = %d, want duck plus one restore", got)
	}
}

func TestDuckPausedAndPermanentFlags(t *testing.T) {
	b, ctl := newTestBridge(t)
	b.HandleEvent(Event{Type: EventDuck, DuckPaused: true})
	b.HandleEvent(Event{Type: EventDuck, DuckPermanent: true})

	got := ctl.Calls()
	if len(got) != 2 || got[0] != "pause" || got[1] != "stop" {
		t.Errorf("calls = %v, want [pause stop]", got)
	}
}

func TestPlaybackErrorSkipsWhenNextExists(t *testing.T) {
	b, ctl := newTestBridge(t)
	idx := 0
	ctl.state.Queue = []domain.QueueItem{{ID: "a"}, {ID: "b"}}
	ctl.state.CurrentTrackIndex = &idx

	b.HandleEvent(Event{Type: EventPlaybackError, Message: "decoder died"})
	got := ctl.Calls()
	if len(got) != 1 || got[0] != "next" {
		t.Errorf("calls = %v, want [next]", got)
	}
}

func TestPlaybackErrorStopsAtQueueEnd(t *testing.T) {
	b, ctl := newTestBridge(t)
	idx := 1
	ctl.state.Queue = []domain.QueueItem{{ID: "a"}, {ID: "b"}}
	ctl.state.CurrentTrackIndex = &idx

	b.HandleEvent(Event{Type: EventPlaybackError})
	got := ctl.Calls()
	if len(got) != 1 || got[0] != "stop" {
		t.Errorf("calls = %v, want [stop]", got)
	}
}

func TestRegisterUnregisterIdempotent(t *testing.T) {
	ctl := newFakeControl()
	b := NewBridge(ctl, logger.Default())

	b.HandleEvent(Event{Type: EventPlay})
	if len(ctl.Calls()) != 0 {
		t.Error("events before register should be dropped")
	}

	b.Register()
	b.Register()
	b.HandleEvent(Event{Type: EventPlay})
	if got := ctl.Calls(); len(got) != 1 {
		t.Errorf("calls after double register = %v, want one play", got)
	}

	b.Unregister()
	b.Unregister()
	b.HandleEvent(Event{Type: EventPause})
	if got := ctl.Calls(); len(got) != 1 {
		t.Errorf("events after unregister should be dropped, got %v", got)
	}
}
