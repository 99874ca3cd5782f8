package domain

import "time"

// RepeatMode controls what happens when the current track finishes.
type RepeatMode string

const (
	RepeatOff   RepeatMode = "off"
	RepeatTrack RepeatMode = "track"
	RepeatQueue RepeatMode = "queue"
)

// Valid reports whether m is a known repeat mode.
func (m RepeatMode) Valid() bool {
	switch m {
	case RepeatOff, RepeatTrack, RepeatQueue:
		return true
	}
	return false
}

// QueueItem is a playable unit in the queue. Exactly one playback source is
// active at a time: LocalPath wins over URL when the local file is verified
// to exist and be non-empty.
type QueueItem struct {
	ID              string  `json:"id" db:"id"`
	URL             string  `json:"url,omitempty" db:"url"`
	Title           string  `json:"title" db:"title"`
	Artist          string  `json:"artist" db:"artist"`
	Artwork         string  `json:"artwork,omitempty" db:"artwork"`
	DurationSeconds float64 `json:"duration_seconds,omitempty" db:"duration_seconds"`
	IsDownloaded    bool    `json:"is_downloaded" db:"is_downloaded"`
	LocalPath       string  `json:"local_path,omitempty" db:"local_path"`
}

// PlaybackState is the engine-derived transient state. It is owned by the
// player and written only from engine event callbacks or explicit user
// actions.
type PlaybackState struct {
	IsPlaying       bool       `json:"is_playing"`
	PositionSeconds float64    `json:"position_seconds"`
	DurationSeconds float64    `json:"duration_seconds"`
	PlaybackRate    float64    `json:"playback_rate"`
	Volume          float64    `json:"volume"`
	RepeatMode      RepeatMode `json:"repeat_mode"`
	Error           string     `json:"error,omitempty"`
}

// SleepTimer is the countdown that pauses playback at expiry.
type SleepTimer struct {
	Active          bool  `json:"active"`
	EndTimeEpochMs  int64 `json:"end_time_epoch_ms,omitempty"`
	DurationMinutes int   `json:"duration_minutes,omitempty"`
}

// DownloadStatus represents the offline-download state of a track.
type DownloadStatus string

const (
	DownloadIdle        DownloadStatus = "idle"
	DownloadQueued      DownloadStatus = "queued"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadDownloaded  DownloadStatus = "downloaded"
	DownloadError       DownloadStatus = "error"
)

// DownloadEntry tracks a single track's download. LocalURI is non-empty iff
// Status is DownloadDownloaded; Error is set only when Status is
// DownloadError.
type DownloadEntry struct {
	TrackID             string         `json:"track_id" db:"track_id"`
	Status              DownloadStatus `json:"status" db:"status"`
	Progress            float64        `json:"progress" db:"progress"`
	LocalURI            string         `json:"local_uri,omitempty" db:"local_uri"`
	Error               string         `json:"error,omitempty" db:"error"`
	FileSizeBytes       int64          `json:"file_size_bytes,omitempty" db:"file_size_bytes"`
	DownloadedAtEpochMs int64          `json:"downloaded_at_epoch_ms,omitempty" db:"downloaded_at_epoch_ms"`
}

// CacheEntry mirrors one on-disk cached audio file.
type CacheEntry struct {
	TrackID             string `json:"track_id"`
	URI                 string `json:"uri"`
	SizeBytes           int64  `json:"size_bytes"`
	LastAccessedEpochMs int64  `json:"last_accessed_epoch_ms"`
}

// TrackMetadata is what the catalog knows about a track.
type TrackMetadata struct {
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	ArtworkURL      string  `json:"artwork_url,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// QueueSnapshot is the persisted portion of the queue: the items and the
// current index, never transient position or playing state.
type QueueSnapshot struct {
	Items             []QueueItem `json:"items"`
	CurrentTrackIndex *int        `json:"current_track_index"`
}

// NowMs returns t as epoch milliseconds.
func NowMs(t time.Time) int64 {
	return t.UnixMilli()
}
