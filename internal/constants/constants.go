// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort        = "8080"
	DefaultDBPath      = "player.db"
	DefaultCatalogURL  = "http://127.0.0.1:8000"
	DefaultHTTPTimeout = 5 * time.Minute
	DefaultRetryCount  = 3
	DefaultRetryBase   = 1 * time.Second
	DefaultCacheTTL    = 12 * time.Hour
	MinRequestInterval = 100 * time.Millisecond
	DefaultCacheMaxMB  = 200
)

// Playback defaults
const (
	DefaultVolume       = 1.0
	DefaultPlaybackRate = 1.0

	// Skip-to-previous restarts the current track instead of moving back
	// when more than this many seconds have been played.
	PreviousRestartThresholdSeconds = 3.0

	// Sleep timer fades volume over the final stretch before expiry.
	SleepFadeWindow  = 10 * time.Second
	SleepTickPeriod  = 1 * time.Second
	StatusTickPeriod = 500 * time.Millisecond
)

// Remote control defaults
const (
	DefaultJumpIntervalSeconds = 10.0
	DuckVolumeFactor           = 0.3
	DuckRestoreDelay           = 2 * time.Second
)

// MIME Types
const (
	MimeTypeFLAC = "audio/flac"
	MimeTypeMP3  = "audio/mpeg"
	MimeTypeMP4  = "audio/mp4"
	MimeTypeOGG  = "audio/ogg"
	MimeTypeWAV  = "audio/wav"
)

// File Extensions
const (
	ExtFLAC = ".flac"
	ExtMP3  = ".mp3"
	ExtMP4  = ".mp4"
	ExtOGG  = ".ogg"
	ExtWAV  = ".wav"
)

// ExtensionForMime maps an audio MIME type to a file extension. Unknown
// types fall back to .mp3, the platform's dominant format.
func ExtensionForMime(mime string) string {
	switch mime {
	case MimeTypeFLAC:
		return ExtFLAC
	case MimeTypeMP4:
		return ExtMP4
	case MimeTypeOGG:
		return ExtOGG
	case MimeTypeWAV:
		return ExtWAV
	default:
		return ExtMP3
	}
}
