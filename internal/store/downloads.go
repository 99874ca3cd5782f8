package store

import (
	"database/sql"

	"github.com/stillwave/player/internal/domain"
)

func (db *DB) UpsertDownload(entry *domain.DownloadEntry) error {
	query := `INSERT INTO downloads (
		track_id, status, progress, local_uri, error, file_size_bytes, downloaded_at_epoch_ms
	) VALUES (
		:track_id, :status, :progress, :local_uri, :error, :file_size_bytes, :downloaded_at_epoch_ms
	)
	ON CONFLICT(track_id) DO UPDATE SET
		status = excluded.status,
		progress = excluded.progress,
		local_uri = excluded.local_uri,
		error = excluded.error,
		file_size_bytes = excluded.file_size_bytes,
		downloaded_at_epoch_ms = excluded.downloaded_at_epoch_ms`

	_, err := db.NamedExec(query, entry)
	return err
}

func (db *DB) GetDownload(trackID string) (*domain.DownloadEntry, error) {
	var entry domain.DownloadEntry
	err := db.Get(&entry, `SELECT * FROM downloads WHERE track_id = ?`, trackID)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (db *DB) ListDownloads() ([]*domain.DownloadEntry, error) {
	var entries []*domain.DownloadEntry
	err := db.Select(&entries, `SELECT * FROM downloads ORDER BY downloaded_at_epoch_ms DESC`)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (db *DB) ListDownloadsByStatus(status domain.DownloadStatus) ([]*domain.DownloadEntry, error) {
	var entries []*domain.DownloadEntry
	err := db.Select(&entries, `SELECT * FROM downloads WHERE status = ? ORDER BY downloaded_at_epoch_ms DESC`, status)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (db *DB) DeleteDownload(trackID string) error {
	_, err := db.Exec(`DELETE FROM downloads WHERE track_id = ?`, trackID)
	return err
}
