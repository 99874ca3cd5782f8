package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	return NewStore(t.TempDir(), maxBytes, nil)
}

// writeTrack writes a fake audio file of the given size and registers it.
func writeTrack(t *testing.T, s *Store, trackID string, size int) string {
	t.Helper()
	path := s.ResolveLocalFile(trackID, ".mp3")
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	s.Add(trackID, path, int64(size))
	return path
}

func TestIsCachedAndGetCachedURI(t *testing.T) {
	s := newTestStore(t, 1024)

	if s.IsCached("t1") {
		t.Error("Expected miss for unknown track")
	}
	if uri := s.GetCachedURI("t1"); uri != "" {
		t.Errorf("Expected empty uri on miss, got %q", uri)
	}

	path := writeTrack(t, s, "t1", 100)

	if !s.IsCached("t1") {
		t.Error("Expected hit after add")
	}
	if uri := s.GetCachedURI("t1"); uri != path {
		t.Errorf("Expected %q, got %q", path, uri)
	}
}

func TestIsCachedRejectsEmptyFile(t *testing.T) {
	s := newTestStore(t, 1024)

	path := s.ResolveLocalFile("t1", ".mp3")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	s.Add("t1", path, 0)

	if s.IsCached("t1") {
		t.Error("Empty files must not count as cached")
	}
	if uri := s.GetCachedURI("t1"); uri != "" {
		t.Errorf("Expected miss for empty file, got %q", uri)
	}
}

func TestCurrentSizeBytesIsFilesystemTruth(t *testing.T) {
	s := newTestStore(t, 10_000)
	writeTrack(t, s, "t1", 300)
	writeTrack(t, s, "t2", 200)

	if got := s.CurrentSizeBytes(); got != 500 {
		t.Errorf("Expected 500 bytes, got %d", got)
	}

	// External interference: delete a file behind the store's back.
	os.Remove(s.ResolveLocalFile("t1", ".mp3"))
	if got := s.CurrentSizeBytes(); got != 200 {
		t.Errorf("Expected 200 bytes after external delete, got %d", got)
	}
}

func TestLRUEvictionOrder(t *testing.T) {
	s := newTestStore(t, 250)

	// Deterministic clock so access order is unambiguous.
	var fake int64 = 1_000_000
	s.now = func() time.Time {
		fake += 1000
		return time.UnixMilli(fake)
	}

	writeTrack(t, s, "old", 100)
	writeTrack(t, s, "mid", 100)

	// Touch "old" so "mid" becomes the least recently accessed.
	if uri := s.GetCachedURI("old"); uri == "" {
		t.Fatal("Expected hit for old")
	}

	// Adding 100 more bytes exceeds the 250 cap; "mid" must go first.
	writeTrack(t, s, "new", 100)

	if s.IsCached("mid") {
		t.Error("Expected mid (least recently accessed) to be evicted")
	}
	if !s.IsCached("old") {
		t.Error("Expected old (recently touched) to survive")
	}
	if !s.IsCached("new") {
		t.Error("Expected new to survive its own add")
	}
	if got := s.CurrentSizeBytes(); got > 250 {
		t.Errorf("Expected size under cap, got %d", got)
	}
}

func TestEvictionFreesUntilUnderCap(t *testing.T) {
	s := newTestStore(t, 250)

	var fake int64 = 1_000_000
	s.now = func() time.Time {
		fake += 1000
		return time.UnixMilli(fake)
	}

	writeTrack(t, s, "a", 100)
	writeTrack(t, s, "b", 100)
	// A large add that requires evicting both predecessors.
	writeTrack(t, s, "c", 240)

	if s.IsCached("a") || s.IsCached("b") {
		t.Error("Expected both oldest entries evicted")
	}
	if !s.IsCached("c") {
		t.Error("Expected newest entry to survive")
	}
}

func TestRemoveIdempotent(t *testing.T) {
	s := newTestStore(t, 1024)
	writeTrack(t, s, "t1", 100)

	s.Remove("t1")
	if s.IsCached("t1") {
		t.Error("Expected removal")
	}
	// Second remove of an absent track must not panic or error.
	s.Remove("t1")
	s.Remove("never-existed")
}

func TestClear(t *testing.T) {
	s := newTestStore(t, 1024)
	writeTrack(t, s, "t1", 100)
	writeTrack(t, s, "t2", 100)

	s.Clear()

	if s.CurrentSizeBytes() != 0 {
		t.Errorf("Expected empty cache, got %d bytes", s.CurrentSizeBytes())
	}
	if s.IsCached("t1") || s.IsCached("t2") {
		t.Error("Expected all entries dropped")
	}

	// Directory must exist again so new adds work.
	writeTrack(t, s, "t3", 50)
	if !s.IsCached("t3") {
		t.Error("Expected add to work after clear")
	}
}

func TestRestoreFromDisk(t *testing.T) {
	dir := t.TempDir()
	s1 := NewStore(dir, 1024, nil)
	writeTrack(t, s1, "t1", 100)

	// A fresh store over the same directory sees the file.
	s2 := NewStore(dir, 1024, nil)
	if !s2.IsCached("t1") {
		t.Error("Expected restored entry after restart")
	}
	if got := len(s2.Entries()); got != 1 {
		t.Errorf("Expected 1 restored entry, got %d", got)
	}
}

func TestResolveLocalFileDeterministic(t *testing.T) {
	s := newTestStore(t, 1024)
	a := s.ResolveLocalFile("track/../evil", ".mp3")
	if filepath.Dir(a) != filepath.Clean(s.dir) {
		t.Errorf("Path escaped cache dir: %s", a)
	}
	if s.ResolveLocalFile("t1", ".mp3") != s.ResolveLocalFile("t1", ".mp3") {
		t.Error("Expected deterministic mapping")
	}
}
