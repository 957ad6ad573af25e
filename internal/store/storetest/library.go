// Package storetest provides an in-memory store.Library for tests.
package storetest

import (
	"sync"

	"github.com/franz/dupe-janitor/internal/store"
)

// Library is a concurrency-safe in-memory store.Library and store.Editor
type Library struct {
	mu        sync.Mutex
	files     []*store.FileRecord
	deleted   []int64
	loads     int
	loadErr   error
	deleteErr error
}

// New returns a library holding copies of the given records
func New(files ...*store.FileRecord) *Library {
	l := &Library{}
	for _, f := range files {
		l.Add(f)
	}
	return l
}

// Add stores a copy of the record
func (l *Library) Add(f *store.FileRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *f
	l.files = append(l.files, &c)
}

// FailLoads makes GetAllFiles return err; nil restores normal behavior
func (l *Library) FailLoads(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadErr = err
}

// FailDeletes makes DeleteFile return err; nil restores normal behavior
func (l *Library) FailDeletes(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleteErr = err
}

// Loads returns how many times GetAllFiles was called
func (l *Library) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// Deleted returns the ids removed through DeleteFile, in call order
func (l *Library) Deleted() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.deleted...)
}

func (l *Library) GetAllFiles() ([]*store.FileRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	return l.copies(func(*store.FileRecord) bool { return true }), nil
}

func (l *Library) GetFilesWithoutFingerprint() ([]*store.FileRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copies(func(f *store.FileRecord) bool { return !f.HasFingerprint() }), nil
}

func (l *Library) GetFileByID(id int64) (*store.FileRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.index(id); i >= 0 {
		c := *l.files[i]
		return &c, nil
	}
	return nil, nil
}

func (l *Library) DeleteFile(id int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deleteErr != nil {
		return false, l.deleteErr
	}
	i := l.index(id)
	if i < 0 {
		return false, nil
	}
	l.files = append(l.files[:i], l.files[i+1:]...)
	l.deleted = append(l.deleted, id)
	return true, nil
}

func (l *Library) UpdateFingerprint(id int64, fingerprint string, durationSec int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(id)
	if i < 0 {
		return false, nil
	}
	l.files[i].Fingerprint = fingerprint
	l.files[i].FingerprintDuration = durationSec
	return true, nil
}

func (l *Library) UpdateMetadata(ids []int64, edit store.MetadataEdit) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := 0
	for _, id := range ids {
		i := l.index(id)
		if i < 0 || edit.IsEmpty() {
			continue
		}
		f := l.files[i]
		if edit.Title != nil {
			f.Title = *edit.Title
		}
		if edit.Artist != nil {
			f.Artist = *edit.Artist
		}
		if edit.Album != nil {
			f.Album = *edit.Album
		}
		if edit.Genre != nil {
			f.Genre = *edit.Genre
		}
		if edit.TrackNumber != nil {
			f.TrackNumber = *edit.TrackNumber
		}
		if edit.Year != nil {
			f.Year = *edit.Year
		}
		changed++
	}
	return changed, nil
}

func (l *Library) index(id int64) int {
	for i, f := range l.files {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (l *Library) copies(keep func(*store.FileRecord) bool) []*store.FileRecord {
	var out []*store.FileRecord
	for _, f := range l.files {
		if keep(f) {
			c := *f
			out = append(out, &c)
		}
	}
	return out
}

var (
	_ store.Library = (*Library)(nil)
	_ store.Editor  = (*Library)(nil)
)
