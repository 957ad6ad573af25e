package cluster

import (
	"github.com/franz/dupe-janitor/internal/match"
	"github.com/franz/dupe-janitor/internal/store"
)

// Group is a set of two or more files believed to be the same recording.
// IDs are assigned in discovery order and only mean something within one
// computation.
type Group struct {
	ID    int                 `json:"id"`
	Files []*store.FileRecord `json:"files"`
}

// FileIDs returns member ids in detection order
func (g Group) FileIDs() []int64 {
	ids := make([]int64, len(g.Files))
	for i, f := range g.Files {
		ids[i] = f.ID
	}
	return ids
}

// Contains reports whether the file id is a member
func (g Group) Contains(id int64) bool {
	for _, f := range g.Files {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Strategy names the matcher used for a whole computation
type Strategy string

const (
	StrategyFingerprint Strategy = "fingerprint"
	StrategyMetadata    Strategy = "metadata"
)

// SelectStrategy picks acoustic matching when more than half of the files
// carry a decodable fingerprint and metadata matching otherwise
func SelectStrategy(files []*store.FileRecord) Strategy {
	fingerprinted := 0
	for _, f := range files {
		if match.HasUsableFingerprint(f) {
			fingerprinted++
		}
	}
	if 2*fingerprinted > len(files) {
		return StrategyFingerprint
	}
	return StrategyMetadata
}
