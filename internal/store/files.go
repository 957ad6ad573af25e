package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/franz/dupe-janitor/internal/util"
)

// FileRecord is one catalogued audio file
type FileRecord struct {
	ID                  int64     `json:"id"`
	FileKey             string    `json:"-"`
	Path                string    `json:"path"`
	SizeBytes           int64     `json:"size_bytes"`
	Format              string    `json:"format,omitempty"`
	Title               string    `json:"title,omitempty"`
	Artist              string    `json:"artist,omitempty"`
	Album               string    `json:"album,omitempty"`
	Genre               string    `json:"genre,omitempty"`
	TrackNumber         int       `json:"track_number,omitempty"` // 0 = missing
	Year                int       `json:"year,omitempty"`         // 0 = missing
	DurationSec         int       `json:"duration_sec,omitempty"`
	BitrateKbps         int       `json:"bitrate_kbps,omitempty"`
	SampleRate          int       `json:"sample_rate,omitempty"`
	Fingerprint         string    `json:"-"`
	FingerprintDuration int       `json:"fingerprint_duration,omitempty"`
	AddedAt             time.Time `json:"added_at"`
}

// HasFingerprint reports whether an acoustic fingerprint is stored
func (f *FileRecord) HasFingerprint() bool {
	return strings.TrimSpace(f.Fingerprint) != ""
}

// MetadataEdit describes a bulk tag edit; nil fields are left unchanged
type MetadataEdit struct {
	Title       *string `json:"title,omitempty"`
	Artist      *string `json:"artist,omitempty"`
	Album       *string `json:"album,omitempty"`
	Genre       *string `json:"genre,omitempty"`
	TrackNumber *int    `json:"track_number,omitempty"`
	Year        *int    `json:"year,omitempty"`
}

// IsEmpty reports whether the edit changes nothing
func (e MetadataEdit) IsEmpty() bool {
	return e.Title == nil && e.Artist == nil && e.Album == nil &&
		e.Genre == nil && e.TrackNumber == nil && e.Year == nil
}

const fileColumns = `
	id, file_key, path, size_bytes, COALESCE(format, ''),
	COALESCE(title, ''), COALESCE(artist, ''), COALESCE(album, ''), COALESCE(genre, ''),
	track_number, year, duration_sec, bitrate_kbps, sample_rate,
	COALESCE(fingerprint, ''), fingerprint_duration, added_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*FileRecord, error) {
	f := &FileRecord{}
	var addedAt int64
	err := row.Scan(
		&f.ID, &f.FileKey, &f.Path, &f.SizeBytes, &f.Format,
		&f.Title, &f.Artist, &f.Album, &f.Genre,
		&f.TrackNumber, &f.Year, &f.DurationSec, &f.BitrateKbps, &f.SampleRate,
		&f.Fingerprint, &f.FingerprintDuration, &addedAt,
	)
	if err != nil {
		return nil, err
	}
	f.AddedAt = time.Unix(addedAt, 0)
	return f, nil
}

// UpsertFile inserts a file record or refreshes the one with the same file key.
// A stored fingerprint survives re-import.
func (s *Store) UpsertFile(f *FileRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO files (file_key, path, size_bytes, format, title, artist, album, genre,
		                   track_number, year, duration_sec, bitrate_kbps, sample_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_key) DO UPDATE SET
			path = excluded.path,
			size_bytes = excluded.size_bytes,
			format = excluded.format,
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			genre = excluded.genre,
			track_number = excluded.track_number,
			year = excluded.year,
			duration_sec = excluded.duration_sec,
			bitrate_kbps = excluded.bitrate_kbps,
			sample_rate = excluded.sample_rate,
			updated_at = strftime('%s','now')
	`, f.FileKey, f.Path, f.SizeBytes, f.Format, f.Title, f.Artist, f.Album, f.Genre,
		f.TrackNumber, f.Year, f.DurationSec, f.BitrateKbps, f.SampleRate)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	// LastInsertId is unreliable on the update path, so look the row up by key
	if err := s.db.QueryRow("SELECT id FROM files WHERE file_key = ?", f.FileKey).Scan(&f.ID); err != nil {
		return fmt.Errorf("failed to get file ID: %w", err)
	}

	return nil
}

// GetAllFiles returns every catalogued file in id order
func (s *Store) GetAllFiles() ([]*FileRecord, error) {
	return s.queryFiles("SELECT " + fileColumns + " FROM files ORDER BY id")
}

// GetFilesWithoutFingerprint returns files that have no stored fingerprint
func (s *Store) GetFilesWithoutFingerprint() ([]*FileRecord, error) {
	return s.queryFiles("SELECT " + fileColumns + " FROM files WHERE fingerprint IS NULL OR fingerprint = '' ORDER BY id")
}

// GetFileByID retrieves a file by ID; returns nil, nil when absent
func (s *Store) GetFileByID(id int64) (*FileRecord, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// GetFileByKey retrieves a file by its file key; returns nil, nil when absent
func (s *Store) GetFileByKey(fileKey string) (*FileRecord, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE file_key = ?", fileKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// CountFiles returns the number of catalogued files and how many carry a fingerprint
func (s *Store) CountFiles() (total, fingerprinted int, err error) {
	err = s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN fingerprint IS NOT NULL AND fingerprint != '' THEN 1 ELSE 0 END), 0)
		FROM files
	`).Scan(&total, &fingerprinted)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count files: %w", err)
	}
	return total, fingerprinted, nil
}

// UpdateFingerprint stores an acoustic fingerprint; returns false when the id is unknown
func (s *Store) UpdateFingerprint(id int64, fingerprint string, durationSec int) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE files SET fingerprint = ?, fingerprint_duration = ?, updated_at = strftime('%s','now')
		WHERE id = ?
	`, fingerprint, durationSec, id)
	if err != nil {
		return false, fmt.Errorf("failed to update fingerprint: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update fingerprint: %w", err)
	}
	return n > 0, nil
}

// DeleteFile removes the file from disk and then its record.
// Returns false when the id is unknown.
func (s *Store) DeleteFile(id int64) (bool, error) {
	f, err := s.GetFileByID(id)
	if err != nil {
		return false, err
	}
	if f == nil {
		return false, nil
	}

	if err := util.RetryableRemove(f.Path, util.DefaultRetryConfig()); err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", f.Path, err)
	}

	if _, err := s.db.Exec("DELETE FROM files WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete file record: %w", err)
	}

	return true, nil
}

// UpdateMetadata applies one edit to every listed file in a single transaction.
// Returns the number of rows changed.
func (s *Store) UpdateMetadata(ids []int64, edit MetadataEdit) (int, error) {
	if len(ids) == 0 || edit.IsEmpty() {
		return 0, nil
	}

	var sets []string
	var args []any
	if edit.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *edit.Title)
	}
	if edit.Artist != nil {
		sets = append(sets, "artist = ?")
		args = append(args, *edit.Artist)
	}
	if edit.Album != nil {
		sets = append(sets, "album = ?")
		args = append(args, *edit.Album)
	}
	if edit.Genre != nil {
		sets = append(sets, "genre = ?")
		args = append(args, *edit.Genre)
	}
	if edit.TrackNumber != nil {
		sets = append(sets, "track_number = ?")
		args = append(args, *edit.TrackNumber)
	}
	if edit.Year != nil {
		sets = append(sets, "year = ?")
		args = append(args, *edit.Year)
	}
	sets = append(sets, "updated_at = strftime('%s','now')")
	query := "UPDATE files SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	changed := 0
	err := s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare metadata update: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			result, err := stmt.Exec(append(args, id)...)
			if err != nil {
				return fmt.Errorf("failed to update metadata for file %d: %w", id, err)
			}
			n, _ := result.RowsAffected()
			changed += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return changed, nil
}

func (s *Store) queryFiles(query string, args ...any) ([]*FileRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []*FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}

	return files, rows.Err()
}
