// Package analytics derives playback events from player state transitions
// and ships them off-process. Nothing here may ever affect playback:
// every failure is swallowed and logged.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stillwave/player/internal/httpclient"
	"github.com/stillwave/player/internal/identity"
	"github.com/stillwave/player/internal/logger"
	"github.com/stillwave/player/internal/player"
)

type EventType string

const (
	EventPlay     EventType = "play"
	EventPause    EventType = "pause"
	EventResume   EventType = "resume"
	EventComplete EventType = "complete"
	EventSkip     EventType = "skip"
)

// Event is one analytics record posted to the collector.
type Event struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Type             EventType `json:"type"`
	TrackID          string    `json:"track_id"`
	PositionSeconds  float64   `json:"position_seconds"`
	TimestampEpochMs int64     `json:"timestamp_epoch_ms"`
}

// completionSlack is how close to the end a track must get for a change
// of track to count as a completion rather than a skip.
const completionSlack = 2.0

type Emitter struct {
	mu       sync.Mutex
	http     *httpclient.Client
	url      string
	identity identity.Provider
	log      *logger.Logger

	prevTrackID  string
	prevPlaying  bool
	prevPosition float64
	prevDuration float64
}

func NewEmitter(hc *httpclient.Client, url string, id identity.Provider, log *logger.Logger) *Emitter {
	return &Emitter{
		http:     hc,
		url:      url,
		identity: id,
		log:      log.WithComponent("analytics"),
	}
}

// Observe is registered as a player listener. It diffs each snapshot
// against the previous one and emits the derived events.
func (e *Emitter) Observe(s player.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	curID := ""
	if s.CurrentTrack != nil {
		curID = s.CurrentTrack.ID
	}
	playing := s.Playback.IsPlaying

	switch {
	case curID != e.prevTrackID:
		if e.prevTrackID != "" {
			if e.prevDuration > 0 && e.prevPosition >= e.prevDuration-completionSlack {
				e.send(EventComplete, e.prevTrackID, e.prevPosition)
			} else {
				e.send(EventSkip, e.prevTrackID, e.prevPosition)
			}
		}
		if curID != "" && playing {
			e.send(EventPlay, curID, 0)
		}
	case curID != "" && playing && !e.prevPlaying:
		if s.Playback.PositionSeconds > 0 {
			e.send(EventResume, curID, s.Playback.PositionSeconds)
		} else {
			e.send(EventPlay, curID, 0)
		}
	case curID != "" && !playing && e.prevPlaying:
		e.send(EventPause, curID, s.Playback.PositionSeconds)
	}

	e.prevTrackID = curID
	e.prevPlaying = playing
	e.prevPosition = s.Playback.PositionSeconds
	e.prevDuration = s.Playback.DurationSeconds
}

// send posts one event on its own goroutine. With no signed-in user the
// event is dropped silently.
func (e *Emitter) send(typ EventType, trackID string, position float64) {
	if e.identity == nil {
		return
	}
	userID, ok := e.identity.CurrentUserID()
	if !ok {
		return
	}
	ev := Event{
		ID:               uuid.NewString(),
		UserID:           userID,
		Type:             typ,
		TrackID:          trackID,
		PositionSeconds:  position,
		TimestampEpochMs: time.Now().UnixMilli(),
	}
	go e.post(ev)
}

func (e *Emitter) post(ev Event) {
	if e.http == nil || e.url == "" {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		e.log.Warn("encoding analytics event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		e.log.Warn("building analytics request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.http.Do(ctx, req)
	if err != nil {
		e.log.Warn("posting analytics event", "type", ev.Type, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		e.log.Warn("analytics collector rejected event", "type", ev.Type, "status", resp.StatusCode)
	}
}
