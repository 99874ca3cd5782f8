package engine

import "sync"

// LoadCall records one Load invocation on the Fake.
type LoadCall struct {
	URI      string
	AutoPlay bool
}

// Fake is an in-memory Engine for tests. Tests drive time by calling
// EmitStatus and Finish instead of waiting on a real ticker.
type Fake struct {
	mu sync.Mutex

	LoadErr      error
	NextDuration float64

	loads     []LoadCall
	hasHandle bool
	playing   bool
	ended     bool
	position  float64
	duration  float64
	volume    float64
	rate      float64
	loop      bool
	disposed  int

	onStatus    func(Status)
	onFinished  func()
	onColdStart func() (string, bool)
	onError     func(error)
}

func NewFake() *Fake {
	return &Fake{volume: 1.0, rate: 1.0, NextDuration: 300}
}

func (f *Fake) SetOnStatus(fn func(Status)) { f.mu.Lock(); f.onStatus = fn; f.mu.Unlock() }
func (f *Fake) SetOnFinished(fn func())     { f.mu.Lock(); f.onFinished = fn; f.mu.Unlock() }
func (f *Fake) SetOnColdStart(fn func() (string, bool)) {
	f.mu.Lock()
	f.onColdStart = fn
	f.mu.Unlock()
}
func (f *Fake) SetOnError(fn func(err error)) { f.mu.Lock(); f.onError = fn; f.mu.Unlock() }

func (f *Fake) Load(uri string, autoPlay bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadErr != nil {
		return f.LoadErr
	}
	f.loads = append(f.loads, LoadCall{URI: uri, AutoPlay: autoPlay})
	f.hasHandle = true
	f.ended = false
	f.playing = autoPlay
	f.position = 0
	f.duration = f.NextDuration
	return nil
}

func (f *Fake) Play() error {
	f.mu.Lock()
	if !f.hasHandle || f.ended {
		cold := f.onColdStart
		f.mu.Unlock()
		if cold == nil {
			return nil
		}
		uri, ok := cold()
		if !ok {
			return nil
		}
		return f.Load(uri, true)
	}
	f.playing = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Pause() error {
	f.mu.Lock()
	f.playing = false
	f.mu.Unlock()
	return nil
}

func (f *Fake) SeekTo(seconds float64) error {
	f.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if f.hasHandle && seconds > f.duration {
		seconds = f.duration
	}
	f.position = seconds
	f.ended = false
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetVolume(v float64) error {
	f.mu.Lock()
	f.volume = v
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetPlaybackRate(r float64) error {
	f.mu.Lock()
	f.rate = r
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetLoop(loop bool) error {
	f.mu.Lock()
	f.loop = loop
	f.mu.Unlock()
	return nil
}

func (f *Fake) HasHandle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasHandle && !f.ended
}

func (f *Fake) Dispose() {
	f.mu.Lock()
	f.hasHandle = false
	f.playing = false
	f.position = 0
	f.disposed++
	f.mu.Unlock()
}

// SetPosition moves the fake playhead without going through SeekTo, so
// tests can simulate elapsed playback.
func (f *Fake) SetPosition(seconds float64) {
	f.mu.Lock()
	f.position = seconds
	f.mu.Unlock()
}

// EmitStatus delivers one status event to the subscriber, as the real
// engine's ticker would.
func (f *Fake) EmitStatus() {
	f.mu.Lock()
	st := Status{IsPlaying: f.playing && !f.ended, PositionSeconds: f.position, DurationSeconds: f.duration}
	fn := f.onStatus
	f.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// Finish simulates the stream reaching its natural end. While looping the
// track restarts and no finished signal is delivered.
func (f *Fake) Finish() {
	f.mu.Lock()
	if !f.hasHandle {
		f.mu.Unlock()
		return
	}
	if f.loop {
		f.position = 0
		f.mu.Unlock()
		return
	}
	f.ended = true
	f.playing = false
	f.position = f.duration
	fn := f.onFinished
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *Fake) Loads() []LoadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LoadCall, len(f.loads))
	copy(out, f.loads)
	return out
}

func (f *Fake) LastLoad() (LoadCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loads) == 0 {
		return LoadCall{}, false
	}
	return f.loads[len(f.loads)-1], true
}

func (f *Fake) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *Fake) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *Fake) Rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *Fake) Loop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loop
}

func (f *Fake) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *Fake) Disposed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}
