package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stillwave/player/internal/domain"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() {
		if cErr := db.Close(); cErr != nil {
			t.Logf("db.Close error: %v", cErr)
		}
	})
	return db
}

func TestDB_Downloads(t *testing.T) {
	db := setupTestDB(t)

	entry := &domain.DownloadEntry{
		TrackID:  "track_123",
		Status:   domain.DownloadQueued,
		Progress: 0,
	}
	if err := db.UpsertDownload(entry); err != nil {
		t.Fatalf("UpsertDownload failed: %v", err)
	}

	fetched, err := db.GetDownload("track_123")
	if err != nil {
		t.Fatalf("GetDownload failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("Expected entry, got nil")
	}
	if fetched.Status != domain.DownloadQueued {
		t.Errorf("Expected status %s, got %s", domain.DownloadQueued, fetched.Status)
	}

	// Upsert transitions to downloaded
	entry.Status = domain.DownloadDownloaded
	entry.Progress = 100
	entry.LocalURI = "/cache/track_123.mp3"
	entry.FileSizeBytes = 4096
	entry.DownloadedAtEpochMs = time.Now().UnixMilli()
	if err := db.UpsertDownload(entry); err != nil {
		t.Fatalf("UpsertDownload update failed: %v", err)
	}

	fetched, err = db.GetDownload("track_123")
	if err != nil {
		t.Fatalf("GetDownload failed: %v", err)
	}
	if fetched.Status != domain.DownloadDownloaded {
		t.Errorf("Expected status %s, got %s", domain.DownloadDownloaded, fetched.Status)
	}
	if fetched.LocalURI != "/cache/track_123.mp3" {
		t.Errorf("Expected local uri to persist, got %q", fetched.LocalURI)
	}
	if fetched.FileSizeBytes != 4096 {
		t.Errorf("Expected file size 4096, got %d", fetched.FileSizeBytes)
	}

	// ListByStatus
	list, err := db.ListDownloadsByStatus(domain.DownloadDownloaded)
	if err != nil {
		t.Fatalf("ListDownloadsByStatus failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 downloaded entry, got %d", len(list))
	}

	// Delete is idempotent
	if err := db.DeleteDownload("track_123"); err != nil {
		t.Fatalf("DeleteDownload failed: %v", err)
	}
	if err := db.DeleteDownload("track_123"); err != nil {
		t.Fatalf("Second DeleteDownload failed: %v", err)
	}
	fetched, err = db.GetDownload("track_123")
	if err != nil {
		t.Fatalf("GetDownload after delete failed: %v", err)
	}
	if fetched != nil {
		t.Error("Expected nil after delete")
	}
}

func TestDB_GetDownloadMissing(t *testing.T) {
	db := setupTestDB(t)

	entry, err := db.GetDownload("nope")
	if err != nil {
		t.Fatalf("GetDownload failed: %v", err)
	}
	if entry != nil {
		t.Error("Expected nil for missing entry")
	}
}

func TestDB_Cache(t *testing.T) {
	db := setupTestDB(t)

	if err := db.SetCache("meta:track_1", []byte(`{"title":"Dawn"}`), time.Hour); err != nil {
		t.Fatalf("SetCache failed: %v", err)
	}

	data, err := db.GetCache("meta:track_1")
	if err != nil {
		t.Fatalf("GetCache failed: %v", err)
	}
	if string(data) != `{"title":"Dawn"}` {
		t.Errorf("Unexpected cache data: %s", data)
	}

	// Expired entries behave as a miss
	if err := db.SetCache("meta:track_2", []byte("x"), -time.Minute); err != nil {
		t.Fatalf("SetCache failed: %v", err)
	}
	data, err = db.GetCache("meta:track_2")
	if err != nil {
		t.Fatalf("GetCache failed: %v", err)
	}
	if data != nil {
		t.Error("Expected expired entry to miss")
	}

	if err := db.ClearCache(); err != nil {
		t.Fatalf("ClearCache failed: %v", err)
	}
	data, err = db.GetCache("meta:track_1")
	if err != nil {
		t.Fatalf("GetCache failed: %v", err)
	}
	if data != nil {
		t.Error("Expected miss after clear")
	}
}

func TestDB_Settings(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepo(db)

	v, err := repo.Get(SettingRepeatMode)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != "" {
		t.Errorf("Expected empty value for unset key, got %q", v)
	}

	if err := repo.Set(SettingRepeatMode, "queue"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := repo.Set(SettingRepeatMode, "track"); err != nil {
		t.Fatalf("Second Set failed: %v", err)
	}

	v, err = repo.Get(SettingRepeatMode)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != "track" {
		t.Errorf("Expected track, got %q", v)
	}

	if err := repo.Delete(SettingRepeatMode); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	v, err = repo.Get(SettingRepeatMode)
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if v != "" {
		t.Errorf("Expected empty after delete, got %q", v)
	}
}
