// Package engine wraps the native audio backend behind a narrow adapter.
// Exactly one native handle exists at a time; the player injects the
// adapter rather than reaching for a global, so tests can substitute a
// fake.
package engine

// Status is one observation of the native player, emitted on every tick.
type Status struct {
	IsPlaying       bool
	PositionSeconds float64
	DurationSeconds float64
}

// Engine is the playback adapter consumed by the player state machine.
//
// Load replaces whatever is currently loaded and applies the configured
// volume, rate and loop flag to the new handle. Control calls are no-ops
// when no handle exists, except Play, which performs a cold-start reload
// via the OnColdStart callback when one is registered.
//
// Implementations emit status events in order and a distinct finished
// signal on natural end of track (not when looping). After Dispose returns
// no further events are delivered.
type Engine interface {
	Load(uri string, autoPlay bool) error
	Play() error
	Pause() error
	SeekTo(seconds float64) error
	SetVolume(v float64) error
	SetPlaybackRate(r float64) error
	SetLoop(loop bool) error
	HasHandle() bool
	Dispose()

	SetOnStatus(fn func(Status))
	SetOnFinished(fn func())
	SetOnColdStart(fn func() (uri string, ok bool))
	SetOnError(fn func(err error))
}
