package match

import (
	"context"
	"fmt"
	"math/bits"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/franz/dupe-janitor/internal/store"
)

const (
	// DefaultFingerprintThreshold is the minimum similarity (1 - bit error rate)
	// for two fingerprints to count as the same recording
	DefaultFingerprintThreshold = 0.85

	// DefaultMaxAlignOffset is how many frames either fingerprint may drift
	DefaultMaxAlignOffset = 3
)

// FingerprintMatcher compares raw Chromaprint fingerprints
type FingerprintMatcher struct {
	Threshold      float64
	MaxAlignOffset int
	Workers        int
}

// NewFingerprintMatcher creates a matcher; workers <= 0 uses one per CPU
func NewFingerprintMatcher(threshold float64, workers int) *FingerprintMatcher {
	if threshold <= 0 {
		threshold = DefaultFingerprintThreshold
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &FingerprintMatcher{
		Threshold:      threshold,
		MaxAlignOffset: DefaultMaxAlignOffset,
		Workers:        workers,
	}
}

// DecodeFingerprint parses the fpcalc raw form: comma or space separated uint32 values
func DecodeFingerprint(s string) ([]uint32, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty fingerprint")
	}

	fp := make([]uint32, 0, len(parts))
	for _, p := range parts {
		u, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid fingerprint value %q: %w", p, err)
		}
		fp = append(fp, uint32(u))
	}
	return fp, nil
}

// EncodeFingerprint is the inverse of DecodeFingerprint
func EncodeFingerprint(fp []uint32) string {
	parts := make([]string, len(fp))
	for i, v := range fp {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ",")
}

// HasUsableFingerprint reports whether the file carries a fingerprint that
// decodes. Undecodable strings count as no fingerprint.
func HasUsableFingerprint(f *store.FileRecord) bool {
	if f == nil || !f.HasFingerprint() {
		return false
	}
	_, err := DecodeFingerprint(f.Fingerprint)
	return err == nil
}

// minOverlap is the fewest aligned frames a shifted comparison may use:
// the shorter length minus the drift, and never under half of it
func minOverlap(la, lb, maxOffset int) int {
	shorter := min(la, lb)
	return max(shorter-maxOffset, (shorter+1)/2, 1)
}

// FingerprintSimilarity returns 1 minus the bit error rate over the overlapping
// frames, keeping the best score across offsets in [-maxOffset, maxOffset].
// Offsets that leave too few overlapping frames are skipped.
func FingerprintSimilarity(a, b []uint32, maxOffset int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	need := minOverlap(len(a), len(b), maxOffset)
	best := 0.0
	for offset := -maxOffset; offset <= maxOffset; offset++ {
		// a[i] is compared with b[i+offset]
		start := max(0, -offset)
		end := min(len(a), len(b)-offset)
		n := end - start
		if n < need {
			continue
		}

		var distance int
		for i := start; i < end; i++ {
			distance += bits.OnesCount32(a[i] ^ b[i+offset])
		}
		if sim := 1 - float64(distance)/float64(32*n); sim > best {
			best = sim
		}
	}
	return best
}

// Similarity compares two encoded fingerprints; undecodable input scores 0
func (m *FingerprintMatcher) Similarity(fpA, fpB string) float64 {
	a, err := DecodeFingerprint(fpA)
	if err != nil {
		return 0
	}
	b, err := DecodeFingerprint(fpB)
	if err != nil {
		return 0
	}
	return FingerprintSimilarity(a, b, m.MaxAlignOffset)
}

// AreSimilar reports whether the similarity reaches the threshold (inclusive)
func (m *FingerprintMatcher) AreSimilar(fpA, fpB string, threshold float64) bool {
	return m.Similarity(fpA, fpB) >= threshold
}

// Candidate is a file scored against a target
type Candidate struct {
	File  *store.FileRecord `json:"file"`
	Score float64           `json:"score"`
}

// FindSimilar returns the candidates at or above threshold, best first.
// Equal scores keep candidate order.
func (m *FingerprintMatcher) FindSimilar(target *store.FileRecord, candidates []*store.FileRecord, threshold float64) []Candidate {
	if target == nil {
		return nil
	}
	fpTarget, err := DecodeFingerprint(target.Fingerprint)
	if err != nil {
		return nil
	}

	var found []Candidate
	for _, c := range candidates {
		if c == nil || c.ID == target.ID {
			continue
		}
		fp, err := DecodeFingerprint(c.Fingerprint)
		if err != nil {
			continue
		}
		if score := FingerprintSimilarity(fpTarget, fp, m.MaxAlignOffset); score >= threshold {
			found = append(found, Candidate{File: c, Score: score})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Score > found[j].Score
	})
	return found
}

// Prepare decodes fingerprints once and returns the files that carry a
// usable one (see HasUsableFingerprint), in input order, together with a
// pair predicate over them
func (m *FingerprintMatcher) Prepare(files []*store.FileRecord) ([]*store.FileRecord, PairFunc) {
	decoded := make(map[*store.FileRecord][]uint32, len(files))
	eligible := make([]*store.FileRecord, 0, len(files))
	for _, f := range files {
		if f == nil || !f.HasFingerprint() {
			continue
		}
		fp, err := DecodeFingerprint(f.Fingerprint)
		if err != nil {
			continue
		}
		decoded[f] = fp
		eligible = append(eligible, f)
	}

	// The map is read-only from here on, so concurrent lookups are safe
	pred := func(a, b *store.FileRecord) bool {
		return FingerprintSimilarity(decoded[a], decoded[b], m.MaxAlignOffset) >= m.Threshold
	}
	return eligible, pred
}

// GroupAll clusters fingerprinted files around anchors, comparing candidates
// in parallel. Files without a usable fingerprint are left out.
func (m *FingerprintMatcher) GroupAll(ctx context.Context, files []*store.FileRecord, hooks Hooks) ([][]*store.FileRecord, error) {
	eligible, pred := m.Prepare(files)
	return Anchor(ctx, eligible, pred, m.Workers, hooks)
}
