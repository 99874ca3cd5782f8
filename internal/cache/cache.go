// Package cache owns the bounded on-disk audio cache. Files are keyed by
// track id and evicted least-recently-accessed first once the size cap is
// exceeded. The filesystem is the source of truth for sizes; the in-memory
// map only tracks access order.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stillwave/player/internal/domain"
	"github.com/stillwave/player/internal/logger"
)

// DefaultMaxBytes caps the cache at 200 MiB unless configured otherwise.
const DefaultMaxBytes = 200 * 1024 * 1024

type Store struct {
	dir      string
	maxBytes int64
	log      *logger.Logger

	mu      sync.Mutex
	entries map[string]*domain.CacheEntry
	// injectable clock for eviction-order tests
	now func() time.Time
}

func NewStore(dir string, maxBytes int64, log *logger.Logger) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if log == nil {
		log = logger.Default()
	}
	s := &Store{
		dir:      dir,
		maxBytes: maxBytes,
		log:      log.WithComponent("cache"),
		entries:  make(map[string]*domain.CacheEntry),
		now:      time.Now,
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.log.Error("Failed to create cache directory", "dir", dir, "error", err)
	}
	s.restore()
	return s
}

// restore rebuilds the in-memory entry map from files already on disk, so
// downloads survive restarts. Files never accessed this process sort first
// for eviction.
func (s *Store) restore() {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		trackID := trackIDFromFilename(f.Name())
		if trackID == "" {
			continue
		}
		path := filepath.Join(s.dir, f.Name())
		s.entries[trackID] = &domain.CacheEntry{
			TrackID:             trackID,
			URI:                 path,
			SizeBytes:           info.Size(),
			LastAccessedEpochMs: info.ModTime().UnixMilli(),
		}
	}
}

// ResolveLocalFile returns the deterministic path for a track's cached
// audio. It does not guarantee the file exists.
func (s *Store) ResolveLocalFile(trackID, ext string) string {
	if ext == "" {
		ext = ".mp3"
	}
	return filepath.Join(s.dir, sanitize(trackID)+ext)
}

// IsCached reports whether a verified non-empty file exists for the track.
func (s *Store) IsCached(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[trackID]
	if !ok {
		return false
	}
	return fileNonEmpty(entry.URI)
}

// GetCachedURI returns the local URI on a verified hit, updating the LRU
// access time. A miss returns "" with no side effects.
func (s *Store) GetCachedURI(trackID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[trackID]
	if !ok || !fileNonEmpty(entry.URI) {
		return ""
	}
	entry.LastAccessedEpochMs = s.now().UnixMilli()
	return entry.URI
}

// Add registers (or overwrites) the entry for a just-written file, then
// evicts least-recently-accessed entries until the cap holds. Eviction
// failures never propagate to the caller.
func (s *Store) Add(trackID, uri string, sizeBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[trackID] = &domain.CacheEntry{
		TrackID:             trackID,
		URI:                 uri,
		SizeBytes:           sizeBytes,
		LastAccessedEpochMs: s.now().UnixMilli(),
	}
	s.evictLocked()
}

// Remove deletes the on-disk file and drops the in-memory entry. It is
// idempotent: removing an absent track is not an error.
func (s *Store) Remove(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(trackID)
}

func (s *Store) removeLocked(trackID string) {
	entry, ok := s.entries[trackID]
	if ok {
		if err := os.Remove(entry.URI); err != nil && !os.IsNotExist(err) {
			s.log.Warn("Failed to remove cached file", "track_id", trackID, "error", err)
		}
		delete(s.entries, trackID)
		return
	}
	// No entry, but a stale file may still exist from a previous run.
	matches, _ := filepath.Glob(filepath.Join(s.dir, sanitize(trackID)+".*"))
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			s.log.Warn("Failed to remove stale cached file", "path", m, "error", err)
		}
	}
}

// Clear deletes the whole cache directory and recreates it empty.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.dir); err != nil {
		s.log.Error("Failed to clear cache directory", "dir", s.dir, "error", err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		s.log.Error("Failed to recreate cache directory", "dir", s.dir, "error", err)
	}
	s.entries = make(map[string]*domain.CacheEntry)
}

// CurrentSizeBytes sums actual file sizes on disk, so it stays correct even
// after external interference with the cache directory.
func (s *Store) CurrentSizeBytes() int64 {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if info, err := f.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Entries returns a snapshot of the in-memory entries.
func (s *Store) Entries() []domain.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessedEpochMs < out[j].LastAccessedEpochMs
	})
	return out
}

// evictLocked removes least-recently-accessed entries until the on-disk
// size is back under the cap or no entries remain.
func (s *Store) evictLocked() {
	excess := s.CurrentSizeBytes() - s.maxBytes
	if excess <= 0 {
		return
	}

	candidates := make([]*domain.CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastAccessedEpochMs < candidates[j].LastAccessedEpochMs
	})

	var freed int64
	for _, e := range candidates {
		if freed >= excess {
			break
		}
		s.log.Info("Evicting cached track", "track_id", e.TrackID, "size_bytes", e.SizeBytes)
		if err := os.Remove(e.URI); err != nil && !os.IsNotExist(err) {
			s.log.Warn("Failed to evict cached file", "track_id", e.TrackID, "error", err)
		}
		delete(s.entries, e.TrackID)
		freed += e.SizeBytes
	}
}

// sanitize strips characters unsafe in filenames from a track id.
func sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune("<>:\"/\\|?*", r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimRight(mapped, ". ")
}

func trackIDFromFilename(name string) string {
	ext := filepath.Ext(name)
	id := strings.TrimSuffix(name, ext)
	if id == "" {
		return ""
	}
	return id
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// String describes the store for logs.
func (s *Store) String() string {
	return fmt.Sprintf("cache.Store(dir=%s, cap=%d)", s.dir, s.maxBytes)
}
