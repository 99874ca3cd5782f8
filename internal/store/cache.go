package store

import (
	"database/sql"
	"time"
)

// The catalog cache holds serialized track metadata keyed by the resolver's
// cache key. Expiry is lazy: an expired row is deleted by the read that
// finds it.

func (db *DB) GetCache(key string) ([]byte, error) {
	var row struct {
		Data      []byte `db:"data"`
		ExpiresAt int64  `db:"expires_at_epoch_ms"`
	}
	err := db.Get(&row, "SELECT data, expires_at_epoch_ms FROM catalog_cache WHERE key = ?", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if row.ExpiresAt != 0 && time.Now().UnixMilli() > row.ExpiresAt {
		_, _ = db.Exec("DELETE FROM catalog_cache WHERE key = ?", key)
		return nil, nil
	}
	return row.Data, nil
}

// SetCache upserts an entry. A zero ttl means the entry never expires.
func (db *DB) SetCache(key string, data []byte, ttl time.Duration) error {
	var expires int64
	if ttl != 0 {
		expires = time.Now().Add(ttl).UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO catalog_cache (key, data, expires_at_epoch_ms) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, expires_at_epoch_ms = excluded.expires_at_epoch_ms
	`, key, data, expires)
	return err
}

func (db *DB) ClearCache() error {
	_, err := db.Exec("DELETE FROM catalog_cache")
	return err
}
