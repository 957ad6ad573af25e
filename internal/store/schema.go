package store

// Schema v1 - catalogue of audio files with tags, audio properties and
// acoustic fingerprints
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_key TEXT UNIQUE NOT NULL,
  path TEXT NOT NULL,
  size_bytes INTEGER DEFAULT 0,
  format TEXT,
  title TEXT,
  artist TEXT,
  album TEXT,
  genre TEXT,
  track_number INTEGER DEFAULT 0,
  year INTEGER DEFAULT 0,
  duration_sec INTEGER DEFAULT 0,
  bitrate_kbps INTEGER DEFAULT 0,
  sample_rate INTEGER DEFAULT 0,
  fingerprint TEXT,
  fingerprint_duration INTEGER DEFAULT 0,
  added_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
  updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_files_artist ON files(artist);
CREATE INDEX IF NOT EXISTS idx_files_title ON files(title);
`

// Schema v2 - partial index used by GetFilesWithoutFingerprint
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_files_missing_fingerprint
  ON files(id) WHERE fingerprint IS NULL OR fingerprint = '';
`
