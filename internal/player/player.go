// Package player is the core playback state machine. All entry points and
// engine event callbacks serialize through one mutex; the queue, the
// current index and the playback state have no other writers.
package player

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/stillwave/player/internal/catalog"
	"github.com/stillwave/player/internal/constants"
	"github.com/stillwave/player/internal/domain"
	"github.com/stillwave/player/internal/engine"
	"github.com/stillwave/player/internal/logger"
	"github.com/stillwave/player/internal/store"
)

// Settings is the persisted preference store. Only repeat mode, playback
// rate, volume and the queue snapshot are ever written; transient position
// and playing state never survive a restart.
type Settings interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// LocalSource reports a verified local file for a track, if one exists.
type LocalSource interface {
	GetLocalAudioURI(trackID string) string
}

// Snapshot is the observable player state handed to listeners and the API.
type Snapshot struct {
	Queue             []domain.QueueItem   `json:"queue"`
	CurrentTrackIndex *int                 `json:"current_track_index"`
	CurrentTrack      *domain.QueueItem    `json:"current_track,omitempty"`
	Playback          domain.PlaybackState `json:"playback"`
	SleepTimer        domain.SleepTimer    `json:"sleep_timer"`
}

// Listener observes state changes. Called outside the player lock, in
// mutation order.
type Listener func(Snapshot)

type Player struct {
	mu       sync.Mutex
	engine   engine.Engine
	resolver catalog.Resolver
	local    LocalSource
	settings Settings
	log      *logger.Logger

	queue    []domain.QueueItem
	current  *int
	playback domain.PlaybackState
	sleep    domain.SleepTimer

	// loadGen invalidates in-flight loads superseded by a newer command.
	loadGen uint64
	// loadMu serializes engine.Load calls so the most recent one wins.
	loadMu sync.Mutex

	sleepGen    uint64
	sleepStop   chan struct{}
	sleepBase   float64
	now         func() time.Time
	listeners   []Listener
	pending     []Snapshot
	listenerSeq sync.Mutex
}

func New(eng engine.Engine, resolver catalog.Resolver, local LocalSource, settings Settings, log *logger.Logger) *Player {
	p := &Player{
		engine:   eng,
		resolver: resolver,
		local:    local,
		settings: settings,
		log:      log.WithComponent("player"),
		now:      time.Now,
		playback: domain.PlaybackState{
			PlaybackRate: 1.0,
			Volume:       1.0,
			RepeatMode:   domain.RepeatOff,
		},
	}
	p.restore()

	eng.SetOnStatus(p.onEngineStatus)
	eng.SetOnFinished(p.onEngineFinished)
	eng.SetOnColdStart(p.coldStartSource)
	eng.SetOnError(p.onEngineError)

	eng.SetVolume(p.playback.Volume)
	eng.SetPlaybackRate(p.playback.PlaybackRate)
	eng.SetLoop(p.playback.RepeatMode == domain.RepeatTrack)
	return p
}

// restore loads the persisted preferences and queue snapshot. Position and
// playing state intentionally start from zero.
func (p *Player) restore() {
	if p.settings == nil {
		return
	}
	if v, err := p.settings.Get(store.SettingRepeatMode); err == nil && v != "" {
		if m := domain.RepeatMode(v); m.Valid() {
			p.playback.RepeatMode = m
		}
	}
	if v, err := p.settings.Get(store.SettingPlaybackRate); err == nil && v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r > 0 {
			p.playback.PlaybackRate = r
		}
	}
	if v, err := p.settings.Get(store.SettingVolume); err == nil && v != "" {
		if vol, err := strconv.ParseFloat(v, 64); err == nil && vol >= 0 && vol <= 1 {
			p.playback.Volume = vol
		}
	}
	v, err := p.settings.Get(store.SettingQueueSnapshot)
	if err != nil || v == "" {
		return
	}
	var snap domain.QueueSnapshot
	if err := json.Unmarshal([]byte(v), &snap); err != nil {
		p.log.Warn("discarding corrupt queue snapshot", "error", err)
		return
	}
	p.queue = snap.Items
	if snap.CurrentTrackIndex != nil && *snap.CurrentTrackIndex >= 0 && *snap.CurrentTrackIndex < len(p.queue) {
		idx := *snap.CurrentTrackIndex
		p.current = &idx
	}
}

func (p *Player) AddListener(fn Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// queueEmitLocked records the post-mutation state for delivery. It runs
// with p.mu held, so snapshots enter the pending queue in the order their
// mutations held the state lock. The caller flushes after unlocking.
func (p *Player) queueEmitLocked() {
	p.pending = append(p.pending, p.snapshotLocked())
}

// flushEmits delivers pending snapshots to every listener, in queue order.
// listenerSeq serializes delivery across flushers without holding the
// state lock during callbacks; a flusher may end up delivering snapshots
// queued by a concurrent mutation, which is fine.
func (p *Player) flushEmits() {
	p.listenerSeq.Lock()
	defer p.listenerSeq.Unlock()
	for {
		p.mu.Lock()
		if len(p.pending) == 0 {
			p.mu.Unlock()
			return
		}
		snap := p.pending[0]
		p.pending = p.pending[1:]
		fns := make([]Listener, len(p.listeners))
		copy(fns, p.listeners)
		p.mu.Unlock()
		for _, fn := range fns {
			fn(snap)
		}
	}
}

func (p *Player) snapshotLocked() Snapshot {
	snap := Snapshot{
		Queue:      make([]domain.QueueItem, len(p.queue)),
		Playback:   p.playback,
		SleepTimer: p.sleep,
	}
	copy(snap.Queue, p.queue)
	if p.current != nil {
		idx := *p.current
		snap.CurrentTrackIndex = &idx
		track := p.queue[idx]
		snap.CurrentTrack = &track
	}
	return snap
}

// State returns the current observable state.
func (p *Player) State() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// SetQueue replaces the queue wholesale. A non-empty queue starts playing
// from index 0; an empty queue is the only path that fully tears down
// playback.
func (p *Player) SetQueue(tracks []domain.QueueItem) {
	p.mu.Lock()
	p.queue = make([]domain.QueueItem, len(tracks))
	copy(p.queue, tracks)
	if len(p.queue) == 0 {
		p.teardownLocked()
	} else {
		idx := 0
		p.current = &idx
		p.loadCurrentLocked(true)
	}
	p.persistQueueLocked()
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

// AddToQueue inserts a track without touching engine state. A nil
// beforeIndex appends.
func (p *Player) AddToQueue(track domain.QueueItem, beforeIndex *int) {
	p.mu.Lock()
	if beforeIndex == nil || *beforeIndex < 0 || *beforeIndex > len(p.queue) {
		p.queue = append(p.queue, track)
	} else {
		at := *beforeIndex
		p.queue = append(p.queue, domain.QueueItem{})
		copy(p.queue[at+1:], p.queue[at:])
		p.queue[at] = track
		if p.current != nil && at <= *p.current {
			*p.current++
		}
	}
	p.persistQueueLocked()
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

// RemoveFromQueue removes the track at index. Removing the current track
// advances to min(index, newLength-1) preserving the playing state, or
// tears playback down when the queue empties. Removing before the current
// track shifts the index with no audible change.
func (p *Player) RemoveFromQueue(index int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.queue) {
		p.mu.Unlock()
		return fmt.Errorf("queue index %d out of range [0,%d)", index, len(p.queue))
	}
	p.queue = append(p.queue[:index], p.queue[index+1:]...)

	switch {
	case p.current == nil:
	case index < *p.current:
		*p.current--
	case index == *p.current:
		if len(p.queue) == 0 {
			p.teardownLocked()
		} else {
			idx := index
			if idx > len(p.queue)-1 {
				idx = len(p.queue) - 1
			}
			p.current = &idx
			p.loadCurrentLocked(p.playback.IsPlaying)
		}
	}
	p.persistQueueLocked()
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
	return nil
}

// MoveInQueue reorders the queue. The current index follows the standard
// list-move shift rules; the engine is never touched.
func (p *Player) MoveInQueue(from, to int) error {
	p.mu.Lock()
	n := len(p.queue)
	if from < 0 || from >= n || to < 0 || to >= n {
		p.mu.Unlock()
		return fmt.Errorf("move %d -> %d out of range [0,%d)", from, to, n)
	}
	if from != to {
		item := p.queue[from]
		p.queue = append(p.queue[:from], p.queue[from+1:]...)
		p.queue = append(p.queue[:to], append([]domain.QueueItem{item}, p.queue[to:]...)...)
		if p.current != nil {
			switch cur := *p.current; {
			case cur == from:
				*p.current = to
			case from < cur && to >= cur:
				*p.current--
			case from > cur && to <= cur:
				*p.current++
			}
		}
	}
	p.persistQueueLocked()
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
	return nil
}

func (p *Player) Play() {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	// The engine's cold-start path calls back into coldStartSource, so the
	// lock cannot be held across Play.
	err := p.engine.Play()

	p.mu.Lock()
	if err != nil {
		p.playback.Error = err.Error()
	} else {
		p.playback.IsPlaying = true
		p.playback.Error = ""
	}
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

// Stop halts playback and rewinds, keeping the queue and index so a later
// play resumes from the start of the current track.
func (p *Player) Stop() {
	p.mu.Lock()
	if err := p.engine.Pause(); err != nil {
		p.playback.Error = err.Error()
	} else {
		p.playback.IsPlaying = false
	}
	p.seekLocked(0)
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

func (p *Player) Pause() {
	p.mu.Lock()
	if err := p.engine.Pause(); err != nil {
		p.playback.Error = err.Error()
	} else {
		p.playback.IsPlaying = false
	}
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

func (p *Player) SkipToNext() {
	p.mu.Lock()
	if p.current == nil || *p.current+1 >= len(p.queue) {
		p.mu.Unlock()
		return
	}
	*p.current++
	p.loadCurrentLocked(true)
	p.persistQueueLocked()
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

// SkipToPrevious restarts the current track when more than three seconds
// in; the boundary is exclusive, so exactly 3.0s still moves back.
func (p *Player) SkipToPrevious() {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	if p.playback.PositionSeconds > constants.PreviousRestartThresholdSeconds || *p.current == 0 {
		p.seekLocked(0)
	} else {
		*p.current--
		p.loadCurrentLocked(true)
		p.persistQueueLocked()
	}
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

func (p *Player) SkipTo(index int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.queue) {
		p.mu.Unlock()
		return fmt.Errorf("queue index %d out of range [0,%d)", index, len(p.queue))
	}
	p.current = &index
	p.loadCurrentLocked(true)
	p.persistQueueLocked()
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
	return nil
}

func (p *Player) SeekTo(seconds float64) {
	p.mu.Lock()
	p.seekLocked(seconds)
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

// seekLocked updates the position optimistically; engine ticks reconcile.
func (p *Player) seekLocked(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	if p.playback.DurationSeconds > 0 && seconds > p.playback.DurationSeconds {
		seconds = p.playback.DurationSeconds
	}
	if err := p.engine.SeekTo(seconds); err != nil {
		p.playback.Error = err.Error()
		return
	}
	p.playback.PositionSeconds = seconds
}

func (p *Player) SetRepeatMode(mode domain.RepeatMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid repeat mode %q", mode)
	}
	p.mu.Lock()
	p.playback.RepeatMode = mode
	if err := p.engine.SetLoop(mode == domain.RepeatTrack); err != nil {
		p.playback.Error = err.Error()
	}
	p.persistSettingLocked(store.SettingRepeatMode, string(mode))
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
	return nil
}

func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.mu.Lock()
	if err := p.engine.SetVolume(v); err != nil {
		p.playback.Error = err.Error()
	} else {
		p.playback.Volume = v
		if p.sleep.Active {
			p.sleepBase = v
		}
	}
	p.persistSettingLocked(store.SettingVolume, strconv.FormatFloat(v, 'f', -1, 64))
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

// SetVolumeTransient changes the output volume without recording it as the
// user's preference. Ducking uses it so a crash mid-duck cannot restore a
// ducked volume on the next start, and the sleep-fade base is left alone.
func (p *Player) SetVolumeTransient(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.mu.Lock()
	if err := p.engine.SetVolume(v); err != nil {
		p.playback.Error = err.Error()
	} else {
		p.playback.Volume = v
	}
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

func (p *Player) SetPlaybackRate(r float64) error {
	if r <= 0 {
		return fmt.Errorf("playback rate must be positive, got %v", r)
	}
	p.mu.Lock()
	if err := p.engine.SetPlaybackRate(r); err != nil {
		p.playback.Error = err.Error()
	} else {
		p.playback.PlaybackRate = r
	}
	p.persistSettingLocked(store.SettingPlaybackRate, strconv.FormatFloat(r, 'f', -1, 64))
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
	return nil
}

// SetSleepTimer starts (or replaces) the countdown. Volume fades linearly
// over the final ten seconds; at expiry playback pauses and the timer
// clears itself.
func (p *Player) SetSleepTimer(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("sleep timer minutes must be positive, got %d", minutes)
	}
	p.mu.Lock()
	p.cancelSleepLocked(false)
	end := p.now().Add(time.Duration(minutes) * time.Minute)
	p.sleep = domain.SleepTimer{
		Active:          true,
		EndTimeEpochMs:  domain.NowMs(end),
		DurationMinutes: minutes,
	}
	p.sleepBase = p.playback.Volume
	p.sleepGen++
	gen := p.sleepGen
	stop := make(chan struct{})
	p.sleepStop = stop
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()

	go func() {
		t := time.NewTicker(constants.SleepTickPeriod)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if done := p.sleepTick(gen); done {
					return
				}
			}
		}
	}()
	return nil
}

// sleepTick runs one countdown step. Returns true once the timer is spent
// or superseded.
func (p *Player) sleepTick(gen uint64) bool {
	p.mu.Lock()
	if gen != p.sleepGen || !p.sleep.Active {
		p.mu.Unlock()
		return true
	}
	remaining := time.UnixMilli(p.sleep.EndTimeEpochMs).Sub(p.now())
	if remaining <= 0 {
		if err := p.engine.Pause(); err != nil {
			p.playback.Error = err.Error()
		} else {
			p.playback.IsPlaying = false
		}
		p.cancelSleepLocked(true)
		p.queueEmitLocked()
		p.mu.Unlock()
		p.flushEmits()
		return true
	}
	if remaining <= constants.SleepFadeWindow {
		frac := float64(remaining) / float64(constants.SleepFadeWindow)
		faded := p.sleepBase * frac
		if err := p.engine.SetVolume(faded); err == nil {
			p.playback.Volume = faded
		}
		p.queueEmitLocked()
		p.mu.Unlock()
		p.flushEmits()
		return false
	}
	p.mu.Unlock()
	return false
}

// CancelSleepTimer clears the countdown. Safe to call when none is active.
func (p *Player) CancelSleepTimer() {
	p.mu.Lock()
	p.cancelSleepLocked(true)
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

// cancelSleepLocked stops the tick goroutine and, when restoreVolume is
// set, undoes any fade back to the pre-timer volume.
func (p *Player) cancelSleepLocked(restoreVolume bool) {
	if p.sleepStop != nil {
		close(p.sleepStop)
		p.sleepStop = nil
	}
	p.sleepGen++
	if p.sleep.Active && restoreVolume && p.sleepBase > 0 && p.playback.Volume != p.sleepBase {
		if err := p.engine.SetVolume(p.sleepBase); err == nil {
			p.playback.Volume = p.sleepBase
		}
	}
	p.sleep = domain.SleepTimer{}
}

// teardownLocked disposes the engine and clears all playback pointers.
func (p *Player) teardownLocked() {
	p.loadGen++
	p.engine.Dispose()
	p.current = nil
	p.playback.IsPlaying = false
	p.playback.PositionSeconds = 0
	p.playback.DurationSeconds = 0
	p.playback.Error = ""
}

// loadCurrentLocked starts an asynchronous load of the current track.
// Source resolution may hit the network; a generation check discards the
// result when a newer command supersedes it.
func (p *Player) loadCurrentLocked(autoPlay bool) {
	if p.current == nil {
		return
	}
	track := p.queue[*p.current]
	p.loadGen++
	gen := p.loadGen

	p.playback.PositionSeconds = 0
	p.playback.DurationSeconds = track.DurationSeconds
	p.playback.IsPlaying = autoPlay
	p.playback.Error = ""

	go p.resolveAndLoad(track, gen, autoPlay)
}

func (p *Player) resolveAndLoad(track domain.QueueItem, gen uint64, autoPlay bool) {
	uri, err := p.sourceFor(track)
	if err != nil {
		p.mu.Lock()
		if gen != p.loadGen {
			p.mu.Unlock()
			return
		}
		p.playback.Error = err.Error()
		p.playback.IsPlaying = false
		p.queueEmitLocked()
		p.mu.Unlock()
		p.log.Error("resolving track source", "track", track.ID, "error", err)
		p.flushEmits()
		return
	}

	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	p.mu.Lock()
	if gen != p.loadGen {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := p.engine.Load(uri, autoPlay); err != nil {
		p.mu.Lock()
		if gen == p.loadGen {
			p.playback.Error = err.Error()
			p.playback.IsPlaying = false
		}
		p.queueEmitLocked()
		p.mu.Unlock()
		p.log.Error("loading track", "track", track.ID, "error", err)
		p.flushEmits()
	}
}

// sourceFor picks the playback source: a verified local file first, then
// the item's own URL, then a signed URL from the catalog.
func (p *Player) sourceFor(track domain.QueueItem) (string, error) {
	if p.local != nil {
		if uri := p.local.GetLocalAudioURI(track.ID); uri != "" {
			return uri, nil
		}
	}
	if track.LocalPath != "" && track.IsDownloaded {
		return track.LocalPath, nil
	}
	if track.URL != "" {
		return track.URL, nil
	}
	if p.resolver == nil {
		return "", fmt.Errorf("no source for track %s", track.ID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	uri, err := p.resolver.ResolveSignedURL(ctx, track.ID)
	if err != nil {
		return "", fmt.Errorf("resolving source for track %s: %w", track.ID, err)
	}
	return uri, nil
}

// coldStartSource feeds the engine's cold-start recovery: play with no
// handle reloads the current track.
func (p *Player) coldStartSource() (string, bool) {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return "", false
	}
	track := p.queue[*p.current]
	p.mu.Unlock()
	uri, err := p.sourceFor(track)
	if err != nil {
		p.log.Error("cold-start resolve failed", "track", track.ID, "error", err)
		return "", false
	}
	return uri, true
}

func (p *Player) onEngineStatus(st engine.Status) {
	p.mu.Lock()
	if p.current == nil {
		// A stale tick from a handle torn down concurrently must not
		// resurrect playback state.
		p.mu.Unlock()
		return
	}
	p.playback.IsPlaying = st.IsPlaying
	p.playback.PositionSeconds = st.PositionSeconds
	if st.DurationSeconds > 0 {
		p.playback.DurationSeconds = st.DurationSeconds
	}
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

// onEngineFinished handles natural end of track. Track-loop never reaches
// here; the engine restarts natively.
func (p *Player) onEngineFinished() {
	p.mu.Lock()
	if p.playback.RepeatMode == domain.RepeatTrack || p.current == nil {
		p.mu.Unlock()
		return
	}
	switch {
	case *p.current+1 < len(p.queue):
		*p.current++
		p.loadCurrentLocked(true)
		p.persistQueueLocked()
	case p.playback.RepeatMode == domain.RepeatQueue && len(p.queue) > 0:
		idx := 0
		p.current = &idx
		p.loadCurrentLocked(true)
		p.persistQueueLocked()
	default:
		// End of queue: stop where we are, keep the index.
		p.playback.IsPlaying = false
	}
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

func (p *Player) onEngineError(err error) {
	p.mu.Lock()
	p.playback.Error = err.Error()
	p.queueEmitLocked()
	p.mu.Unlock()
	p.flushEmits()
}

func (p *Player) persistSettingLocked(key, value string) {
	if p.settings == nil {
		return
	}
	if err := p.settings.Set(key, value); err != nil {
		p.log.Warn("persisting setting", "key", key, "error", err)
	}
}

func (p *Player) persistQueueLocked() {
	if p.settings == nil {
		return
	}
	snap := domain.QueueSnapshot{Items: p.queue}
	if p.current != nil {
		idx := *p.current
		snap.CurrentTrackIndex = &idx
	}
	data, err := json.Marshal(snap)
	if err != nil {
		p.log.Warn("encoding queue snapshot", "error", err)
		return
	}
	if err := p.settings.Set(store.SettingQueueSnapshot, string(data)); err != nil {
		p.log.Warn("persisting queue snapshot", "error", err)
	}
}

// SaveSnapshot forces a queue snapshot write, used at shutdown.
func (p *Player) SaveSnapshot() {
	p.mu.Lock()
	p.persistQueueLocked()
	p.mu.Unlock()
}

// Close cancels the sleep timer and disposes the engine.
func (p *Player) Close() {
	p.mu.Lock()
	p.cancelSleepLocked(false)
	p.persistQueueLocked()
	p.teardownLocked()
	p.mu.Unlock()
}
