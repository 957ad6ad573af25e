package resolve

import (
	"path/filepath"
	"strings"

	"github.com/franz/dupe-janitor/internal/store"
	"github.com/samber/lo"
)

// Reasons reported on decisions
const (
	ReasonBitrate      = "higher bitrate"
	ReasonMetadata     = "more complete metadata"
	ReasonExcluded     = "excluded from deletion"
	ReasonCanonical    = "canonical path"
	ReasonAmbiguous    = "no single best file"
	ReasonSingleMember = "nothing to compare"
)

// MetadataCompleteness counts the tag fields that carry a value
func MetadataCompleteness(f *store.FileRecord) int {
	n := 0
	for _, s := range []string{f.Title, f.Artist, f.Album, f.Genre} {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	if f.TrackNumber > 0 {
		n++
	}
	if f.Year > 0 {
		n++
	}
	return n
}

// pathDepth counts directory levels; deeper paths are treated as organized
func pathDepth(path string) int {
	dir := filepath.ToSlash(filepath.Dir(filepath.Clean(path)))
	return len(lo.Compact(strings.Split(dir, "/")))
}

// narrow keeps the files sharing the highest key
func narrow(files []*store.FileRecord, key func(*store.FileRecord) int) []*store.FileRecord {
	best := lo.Max(lo.Map(files, func(f *store.FileRecord, _ int) int { return key(f) }))
	return lo.Filter(files, func(f *store.FileRecord, _ int) bool { return key(f) == best })
}

// selectSurvivor applies the ranking criteria in order and returns the
// single best file with the criterion that decided it, or nil when no
// criterion leaves exactly one file.
//
// Order: bitrate, metadata completeness, then canonical path (a file the
// user protected from deletion, else the deepest directory).
func selectSurvivor(files []*store.FileRecord, excluded map[int64]bool) (*store.FileRecord, string) {
	if len(files) == 0 {
		return nil, ReasonAmbiguous
	}
	if len(files) == 1 {
		return files[0], ReasonSingleMember
	}

	remaining := narrow(files, func(f *store.FileRecord) int { return f.BitrateKbps })
	if len(remaining) == 1 {
		return remaining[0], ReasonBitrate
	}

	remaining = narrow(remaining, MetadataCompleteness)
	if len(remaining) == 1 {
		return remaining[0], ReasonMetadata
	}

	if len(excluded) > 0 {
		protected := lo.Filter(remaining, func(f *store.FileRecord, _ int) bool { return excluded[f.ID] })
		if len(protected) == 1 {
			return protected[0], ReasonExcluded
		}
		if len(protected) > 1 {
			remaining = protected
		}
	}

	remaining = narrow(remaining, func(f *store.FileRecord) int { return pathDepth(f.Path) })
	if len(remaining) == 1 {
		return remaining[0], ReasonCanonical
	}

	return nil, ReasonAmbiguous
}
