package store

const Schema = `
CREATE TABLE IF NOT EXISTS downloads (
	track_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	progress REAL DEFAULT 0,
	local_uri TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	file_size_bytes INTEGER DEFAULT 0,
	downloaded_at_epoch_ms INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);

CREATE TABLE IF NOT EXISTS catalog_cache (
	key TEXT PRIMARY KEY,
	data BLOB,
	expires_at_epoch_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
