// Package catalog talks to the hosted track catalog: it resolves track ids
// to time-limited signed audio URLs and fetches display metadata.
package catalog

import (
	"context"
	"errors"

	"github.com/stillwave/player/internal/domain"
)

// ErrTrackNotFound means the catalog has no playable source for the track.
// It is terminal: retrying without user action will not help.
var ErrTrackNotFound = errors.New("track not found in catalog")

// Resolver is the track-catalog collaborator consumed by the download
// manager and the player. Implementations must return ErrTrackNotFound
// (possibly wrapped) for missing tracks and plain errors for transient
// transport failures, so callers can decide whether a retry is worthwhile.
type Resolver interface {
	ResolveSignedURL(ctx context.Context, trackID string) (string, error)
	FetchMetadata(ctx context.Context, trackID string) (*domain.TrackMetadata, error)
}

// IsNotFound reports whether err is terminal (no source exists) as opposed
// to transient.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTrackNotFound)
}
