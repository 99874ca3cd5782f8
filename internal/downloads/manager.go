// Package downloads orchestrates offline downloads: resolving a signed URL
// via the catalog, streaming the bytes into the disk cache, and tracking
// per-track status.
package downloads

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stillwave/player/internal/cache"
	"github.com/stillwave/player/internal/catalog"
	"github.com/stillwave/player/internal/constants"
	"github.com/stillwave/player/internal/domain"
	"github.com/stillwave/player/internal/httpclient"
	"github.com/stillwave/player/internal/identity"
	"github.com/stillwave/player/internal/logger"
	"github.com/stillwave/player/internal/probe"
)

// Persistence is the part of the store the manager needs. *store.DB
// satisfies it; tests substitute a stub or nil.
type Persistence interface {
	UpsertDownload(entry *domain.DownloadEntry) error
	DeleteDownload(trackID string) error
	ListDownloads() ([]*domain.DownloadEntry, error)
}

type Manager struct {
	resolver catalog.Resolver
	cache    *cache.Store
	db       Persistence
	http     *httpclient.Client
	identity identity.Provider
	log      *logger.Logger

	// Called after every observable status change. Must not block.
	OnChange func(domain.DownloadEntry)

	mu      sync.Mutex
	entries map[string]*domain.DownloadEntry
	active  map[string]int64 // track id -> attempt token
	nextTok int64
}

func NewManager(resolver catalog.Resolver, cs *cache.Store, db Persistence, hc *httpclient.Client, id identity.Provider, log *logger.Logger) *Manager {
	if hc == nil {
		hc = httpclient.New(nil, 0)
	}
	if log == nil {
		log = logger.Default()
	}
	m := &Manager{
		resolver: resolver,
		cache:    cs,
		db:       db,
		http:     hc,
		identity: id,
		log:      log.WithComponent("downloads"),
		entries:  make(map[string]*domain.DownloadEntry),
		active:   make(map[string]int64),
	}
	m.restore()
	return m
}

// restore loads persisted entries. Transfers that were mid-flight when the
// process died reset to idle so the user can re-trigger them.
func (m *Manager) restore() {
	if m.db == nil {
		return
	}
	persisted, err := m.db.ListDownloads()
	if err != nil {
		m.log.Warn("Failed to restore download entries", "error", err)
		return
	}
	for _, e := range persisted {
		entry := *e
		switch entry.Status {
		case domain.DownloadQueued, domain.DownloadDownloading:
			entry.Status = domain.DownloadIdle
			entry.Progress = 0
		case domain.DownloadDownloaded:
			// A downloaded entry whose file is gone (evicted or wiped) is
			// no longer downloaded.
			if !m.cache.IsCached(entry.TrackID) {
				entry.Status = domain.DownloadIdle
				entry.LocalURI = ""
				entry.Progress = 0
				entry.FileSizeBytes = 0
				entry.DownloadedAtEpochMs = 0
			}
		}
		m.entries[entry.TrackID] = &entry
	}
}

// Entry returns a copy of the track's download entry, defaulting to idle
// for tracks never referenced before.
func (m *Manager) Entry(trackID string) domain.DownloadEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[trackID]; ok {
		return *e
	}
	return domain.DownloadEntry{TrackID: trackID, Status: domain.DownloadIdle}
}

// Entries returns a copy of all known download entries.
func (m *Manager) Entries() []domain.DownloadEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DownloadEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

// GetLocalAudioURI returns the local URI only when the track is fully
// downloaded. The read goes through the cache so playing a downloaded
// track refreshes its access time and the file is verified non-empty.
func (m *Manager) GetLocalAudioURI(trackID string) string {
	m.mu.Lock()
	e, ok := m.entries[trackID]
	downloaded := ok && e.Status == domain.DownloadDownloaded
	uri := ""
	if downloaded {
		uri = e.LocalURI
	}
	m.mu.Unlock()
	if !downloaded {
		return ""
	}
	if m.cache != nil {
		return m.cache.GetCachedURI(trackID)
	}
	return uri
}

// DownloadTrack downloads one track for offline use. It is a no-op when a
// download is already queued, in flight, or complete, so repeated calls
// cause exactly one transfer. Errors surface on the entry as status=error;
// the returned error mirrors it for direct callers.
func (m *Manager) DownloadTrack(ctx context.Context, trackID string) error {
	m.mu.Lock()
	entry := m.ensureLocked(trackID)
	switch entry.Status {
	case domain.DownloadQueued, domain.DownloadDownloading, domain.DownloadDownloaded:
		m.mu.Unlock()
		return nil
	}
	m.nextTok++
	token := m.nextTok
	m.active[trackID] = token
	snapshot := m.setStatusLocked(entry, domain.DownloadQueued, 0)
	m.mu.Unlock()
	m.notify(snapshot)

	// Guaranteed release of the active slot, success or failure.
	defer func() {
		m.mu.Lock()
		if m.active[trackID] == token {
			delete(m.active, trackID)
		}
		m.mu.Unlock()
	}()

	log := m.log.WithTrack(trackID, "")
	if m.identity != nil {
		if user, ok := m.identity.CurrentUserID(); ok {
			log = &logger.Logger{Logger: log.With("user_id", user)}
		}
	}

	signedURL, err := m.resolver.ResolveSignedURL(ctx, trackID)
	if err != nil {
		if catalog.IsNotFound(err) {
			m.fail(trackID, token, fmt.Sprintf("no audio source available: %v", err))
		} else {
			m.fail(trackID, token, fmt.Sprintf("failed to resolve audio url (retryable): %v", err))
		}
		return err
	}

	m.mu.Lock()
	if m.active[trackID] != token {
		// Removed while resolving; discard.
		m.mu.Unlock()
		return nil
	}
	snapshot = m.setStatusLocked(m.ensureLocked(trackID), domain.DownloadDownloading, 0)
	m.mu.Unlock()
	m.notify(snapshot)

	localPath, size, err := m.transfer(ctx, trackID, token, signedURL)
	if err != nil {
		m.fail(trackID, token, err.Error())
		return err
	}

	m.mu.Lock()
	if m.active[trackID] != token {
		// RemoveDownload won the race; the bytes are orphaned.
		m.mu.Unlock()
		os.Remove(localPath)
		log.Info("Discarding download completed after removal")
		return nil
	}
	entry = m.ensureLocked(trackID)
	entry.Status = domain.DownloadDownloaded
	entry.Progress = 100
	entry.LocalURI = localPath
	entry.Error = ""
	entry.FileSizeBytes = size
	entry.DownloadedAtEpochMs = time.Now().UnixMilli()
	m.persistLocked(entry)
	snapshot = *entry
	m.mu.Unlock()

	m.cache.Add(trackID, localPath, size)
	m.saveArtwork(trackID, localPath)
	m.notify(snapshot)
	log.Info("Download complete", "bytes", size, "path", localPath)
	return nil
}

// transfer streams the signed URL to the track's cache path, reporting
// progress. Any failure removes the partial file.
func (m *Manager) transfer(ctx context.Context, trackID string, token int64, signedURL string) (string, int64, error) {
	resp, err := m.http.Get(ctx, signedURL)
	if err != nil {
		return "", 0, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", 0, fmt.Errorf("download failed: %s", resp.Status)
	}

	ext := extensionFor(resp.Header.Get("Content-Type"), signedURL)
	localPath := m.cache.ResolveLocalFile(trackID, ext)

	f, err := os.Create(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create cache file: %w", err)
	}

	written, copyErr := io.Copy(io.MultiWriter(f, &progressWriter{
		manager: m,
		trackID: trackID,
		token:   token,
		total:   resp.ContentLength,
	}), resp.Body)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(localPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", 0, fmt.Errorf("download failed: %w", copyErr)
	}
	if written == 0 {
		os.Remove(localPath)
		return "", 0, fmt.Errorf("download failed: empty response body")
	}
	return localPath, written, nil
}

// RemoveDownload drops all traces of a track's download: active tracking,
// the cached file, and the status entry. Idempotent; clearing tracking
// first guarantees a concurrently finishing transfer is discarded.
func (m *Manager) RemoveDownload(trackID string) {
	m.mu.Lock()
	delete(m.active, trackID)
	delete(m.entries, trackID)
	m.mu.Unlock()

	m.cache.Remove(trackID)
	if m.db != nil {
		if err := m.db.DeleteDownload(trackID); err != nil {
			m.log.Warn("Failed to delete download entry", "track_id", trackID, "error", err)
		}
	}
	os.Remove(m.artworkPath(trackID))
}

// Artwork returns the path of artwork extracted from the downloaded file,
// for lock-screen and notification surfaces.
func (m *Manager) Artwork(trackID string) (string, bool) {
	p := m.artworkPath(trackID)
	info, err := os.Stat(p)
	return p, err == nil && info.Size() > 0
}

func (m *Manager) artworkPath(trackID string) string {
	dir := filepath.Dir(m.cache.ResolveLocalFile(trackID, ".mp3"))
	return filepath.Join(dir, "artwork", filepath.Base(m.cache.ResolveLocalFile(trackID, ".jpg")))
}

// saveArtwork extracts embedded artwork from the downloaded file. Failures
// are logged and ignored: artwork is a nicety, not part of the download
// contract.
func (m *Manager) saveArtwork(trackID, localPath string) {
	info, err := probe.File(localPath)
	if err != nil || len(info.Artwork) == 0 {
		return
	}
	p := m.artworkPath(trackID)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		m.log.Warn("Failed to create artwork dir", "error", err)
		return
	}
	if err := os.WriteFile(p, info.Artwork, 0644); err != nil {
		m.log.Warn("Failed to write artwork", "track_id", trackID, "error", err)
	}
}

// ProbeMetadata reads tags from a downloaded file to backfill queue items
// whose catalog metadata is missing. Returns nil when the track is not
// downloaded or unreadable.
func (m *Manager) ProbeMetadata(trackID string) *probe.Info {
	uri := m.GetLocalAudioURI(trackID)
	if uri == "" {
		return nil
	}
	info, err := probe.File(uri)
	if err != nil {
		m.log.Debug("Probe failed", "track_id", trackID, "error", err)
		return nil
	}
	return info
}

// fail marks the entry errored unless the attempt was superseded.
func (m *Manager) fail(trackID string, token int64, msg string) {
	m.mu.Lock()
	if m.active[trackID] != token {
		m.mu.Unlock()
		return
	}
	entry := m.ensureLocked(trackID)
	entry.Status = domain.DownloadError
	entry.Error = msg
	entry.LocalURI = ""
	m.persistLocked(entry)
	snapshot := *entry
	m.mu.Unlock()

	m.notify(snapshot)
	m.log.WithDownload(trackID, string(domain.DownloadError)).Warn("Download failed", "error", msg)
}

func (m *Manager) ensureLocked(trackID string) *domain.DownloadEntry {
	if e, ok := m.entries[trackID]; ok {
		return e
	}
	e := &domain.DownloadEntry{TrackID: trackID, Status: domain.DownloadIdle}
	m.entries[trackID] = e
	return e
}

// setStatusLocked mutates and persists the entry, returning a snapshot for
// the caller to publish once the lock is released.
func (m *Manager) setStatusLocked(entry *domain.DownloadEntry, status domain.DownloadStatus, progress float64) domain.DownloadEntry {
	entry.Status = status
	entry.Progress = progress
	entry.Error = ""
	m.persistLocked(entry)
	return *entry
}

func (m *Manager) persistLocked(entry *domain.DownloadEntry) {
	if m.db == nil {
		return
	}
	if err := m.db.UpsertDownload(entry); err != nil {
		m.log.Warn("Failed to persist download entry", "track_id", entry.TrackID, "error", err)
	}
}

func (m *Manager) notify(entry domain.DownloadEntry) {
	if m.OnChange != nil {
		m.OnChange(entry)
	}
}

// setProgress updates in-memory progress for an in-flight transfer. It is
// deliberately not persisted per tick.
func (m *Manager) setProgress(trackID string, token int64, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[trackID] != token {
		return
	}
	if e, ok := m.entries[trackID]; ok && e.Status == domain.DownloadDownloading {
		e.Progress = progress
	}
}

// progressWriter reports percent progress as bytes flow through it.
type progressWriter struct {
	manager *Manager
	trackID string
	token   int64
	total   int64
	written int64
	lastPct int
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.total > 0 {
		pct := int(float64(w.written) / float64(w.total) * 100)
		if pct > 100 {
			pct = 100
		}
		if pct != w.lastPct {
			w.lastPct = pct
			w.manager.setProgress(w.trackID, w.token, float64(pct))
		}
	}
	return len(p), nil
}

// extensionFor picks a cache file extension from the response content type,
// falling back to the URL path.
func extensionFor(contentType, rawURL string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mt {
			case constants.MimeTypeFLAC, constants.MimeTypeMP3, constants.MimeTypeMP4, constants.MimeTypeOGG, constants.MimeTypeWAV:
				return constants.ExtensionForMime(mt)
			}
		}
	}
	if ext := filepath.Ext(stripQuery(rawURL)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return constants.ExtMP3
}

func stripQuery(rawURL string) string {
	for i := 0; i < len(rawURL); i++ {
		if rawURL[i] == '?' {
			return rawURL[:i]
		}
	}
	return rawURL
}
