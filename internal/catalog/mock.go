package catalog

import (
	"context"
	"sync"

	"github.com/stillwave/player/internal/domain"
)

// MockResolver is an in-memory Resolver for tests.
type MockResolver struct {
	mu       sync.Mutex
	URLs     map[string]string
	Metadata map[string]*domain.TrackMetadata
	Err      error
	resolves int
}

func NewMockResolver() *MockResolver {
	return &MockResolver{
		URLs:     make(map[string]string),
		Metadata: make(map[string]*domain.TrackMetadata),
	}
}

func (m *MockResolver) ResolveSignedURL(ctx context.Context, trackID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolves++
	if m.Err != nil {
		return "", m.Err
	}
	u, ok := m.URLs[trackID]
	if !ok {
		return "", ErrTrackNotFound
	}
	return u, nil
}

func (m *MockResolver) FetchMetadata(ctx context.Context, trackID string) (*domain.TrackMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	meta, ok := m.Metadata[trackID]
	if !ok {
		return nil, ErrTrackNotFound
	}
	return meta, nil
}

// Resolves returns how many signed-URL resolutions were attempted.
func (m *MockResolver) Resolves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolves
}
