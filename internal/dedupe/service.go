package dedupe

import (
	"fmt"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/match"
	"github.com/franz/dupe-janitor/internal/report"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/samber/lo"
)

// Config holds service dependencies
type Config struct {
	Engine *cluster.Engine
	Editor store.Editor // optional; defaults to the engine's library when it supports edits
	Logger *report.EventLogger
}

// Service performs user-driven mutations on duplicates. Every successful
// mutation invalidates the group cache before returning.
type Service struct {
	engine *cluster.Engine
	editor store.Editor
	logger *report.EventLogger
}

// New creates a service
func New(cfg *Config) *Service {
	editor := cfg.Editor
	if editor == nil {
		editor, _ = cfg.Engine.Library().(store.Editor)
	}
	return &Service{
		engine: cfg.Engine,
		editor: editor,
		logger: cfg.Logger,
	}
}

// lookup loads files by id, failing with ErrNotFound on the first unknown one
func (s *Service) lookup(ids ...int64) ([]*store.FileRecord, error) {
	files := make([]*store.FileRecord, 0, len(ids))
	for _, id := range ids {
		f, err := s.engine.Library().GetFileByID(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load file %d: %w", id, err)
		}
		if f == nil {
			return nil, fmt.Errorf("file %d: %w", id, util.ErrNotFound)
		}
		files = append(files, f)
	}
	return files, nil
}

// DeleteFile removes one file from disk and the library
func (s *Service) DeleteFile(id int64) error {
	files, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.remove(files[0], "manual delete")
}

func (s *Service) remove(f *store.FileRecord, reason string) error {
	ok, err := s.engine.Library().DeleteFile(f.ID)
	if err == nil && !ok {
		err = fmt.Errorf("file %d: %w", f.ID, util.ErrNotFound)
	}
	s.logger.LogDelete(f.ID, f.Path, reason, err)
	if err != nil {
		return err
	}
	s.engine.Invalidate()
	return nil
}

// KeepResult reports a keep-one operation
type KeepResult struct {
	Kept    int64   `json:"kept"`
	Deleted []int64 `json:"deleted"`
	Failed  []int64 `json:"failed,omitempty"`
}

// KeepOne deletes every member except keepID. All ids are validated
// before anything is deleted.
func (s *Service) KeepOne(keepID int64, memberIDs []int64) (*KeepResult, error) {
	if !lo.Contains(memberIDs, keepID) {
		return nil, fmt.Errorf("%w: file %d is not a member of the group", util.ErrInvalidInput, keepID)
	}

	members, err := s.lookup(lo.Uniq(memberIDs)...)
	if err != nil {
		return nil, err
	}

	res := &KeepResult{Kept: keepID, Deleted: []int64{}}
	for _, f := range members {
		if f.ID == keepID {
			continue
		}
		if err := s.remove(f, fmt.Sprintf("kept file %d", keepID)); err != nil {
			util.WarnLog("Failed to delete %s: %v", f.Path, err)
			res.Failed = append(res.Failed, f.ID)
			continue
		}
		res.Deleted = append(res.Deleted, f.ID)
	}
	return res, nil
}

// UpdateMetadata applies one tag edit to many files
func (s *Service) UpdateMetadata(ids []int64, edit store.MetadataEdit) (int, error) {
	if s.editor == nil {
		return 0, fmt.Errorf("metadata edits: %w", util.ErrUnsupported)
	}
	if edit.IsEmpty() || len(ids) == 0 {
		return 0, fmt.Errorf("%w: nothing to update", util.ErrInvalidInput)
	}
	ids = lo.Uniq(ids)
	if _, err := s.lookup(ids...); err != nil {
		return 0, err
	}

	n, err := s.editor.UpdateMetadata(ids, edit)
	if err != nil {
		return 0, err
	}
	s.engine.Invalidate()
	s.logger.LogMetadata(ids, editedFields(edit), n)
	return n, nil
}

func editedFields(e store.MetadataEdit) []string {
	var fields []string
	if e.Title != nil {
		fields = append(fields, "title")
	}
	if e.Artist != nil {
		fields = append(fields, "artist")
	}
	if e.Album != nil {
		fields = append(fields, "album")
	}
	if e.Genre != nil {
		fields = append(fields, "genre")
	}
	if e.TrackNumber != nil {
		fields = append(fields, "track_number")
	}
	if e.Year != nil {
		fields = append(fields, "year")
	}
	return fields
}

// Comparison explains how two files relate under both matchers
type Comparison struct {
	A                     *store.FileRecord `json:"a"`
	B                     *store.FileRecord `json:"b"`
	Metadata              match.Breakdown   `json:"metadata"`
	Explanation           string            `json:"explanation"`
	FingerprintSimilarity *float64          `json:"fingerprintSimilarity,omitempty"`
	FingerprintDuplicate  bool              `json:"fingerprintDuplicate"`
}

// Compare scores two files with the metadata matcher and, when both carry
// a fingerprint, the acoustic matcher
func (s *Service) Compare(idA, idB int64) (*Comparison, error) {
	files, err := s.lookup(idA, idB)
	if err != nil {
		return nil, err
	}
	a, b := files[0], files[1]

	fuzzy := s.engine.FuzzyMatcher()
	cmp := &Comparison{
		A:           a,
		B:           b,
		Metadata:    fuzzy.Compare(a, b),
		Explanation: fuzzy.Explain(a, b),
	}

	if match.HasUsableFingerprint(a) && match.HasUsableFingerprint(b) {
		fm := s.engine.FingerprintMatcher()
		sim := fm.Similarity(a.Fingerprint, b.Fingerprint)
		cmp.FingerprintSimilarity = &sim
		cmp.FingerprintDuplicate = sim >= fm.Threshold
	}
	return cmp, nil
}

// Similar ranks every other fingerprinted file by acoustic similarity to
// id, best first. Only files at or above the matcher threshold are returned.
func (s *Service) Similar(id int64) ([]match.Candidate, error) {
	files, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	target := files[0]
	if !match.HasUsableFingerprint(target) {
		return nil, fmt.Errorf("%w: file %d has no fingerprint", util.ErrInvalidInput, id)
	}

	all, err := s.engine.Library().GetAllFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to load files: %w", err)
	}
	fm := s.engine.FingerprintMatcher()
	found := fm.FindSimilar(target, all, fm.Threshold)
	if found == nil {
		found = []match.Candidate{}
	}
	return found, nil
}
