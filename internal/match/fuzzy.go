package match

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/franz/dupe-janitor/internal/meta"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/hbollon/go-edlib"
)

// Field names a compared attribute
type Field string

const (
	FieldTitle    Field = "title"
	FieldArtist   Field = "artist"
	FieldAlbum    Field = "album"
	FieldDuration Field = "duration"
	FieldBitrate  Field = "bitrate"
	FieldTrack    Field = "track"
)

var allFields = []Field{FieldTitle, FieldArtist, FieldAlbum, FieldDuration, FieldBitrate, FieldTrack}

// FieldResult is the outcome of comparing one field
type FieldResult struct {
	Field         Field   `json:"field"`
	Score         float64 `json:"score"`
	Matched       bool    `json:"matched"`
	Missing       bool    `json:"missing"`       // absent on one or both sides
	Disqualifying bool    `json:"disqualifying"` // mismatch vetoes the pair
	Detail        string  `json:"detail"`
}

// Breakdown is the full comparison of two files
type Breakdown struct {
	Fields        []FieldResult `json:"fields"`
	MatchedFields int           `json:"matched_fields"`
	MinFields     int           `json:"min_fields"`
	Disqualified  bool          `json:"disqualified"`
	Similarity    float64       `json:"similarity"`
	Duplicate     bool          `json:"duplicate"`
}

// FuzzyMatcher decides duplicates from tags and audio properties
type FuzzyMatcher struct {
	cfg  Config
	opts meta.Options
}

// NewFuzzyMatcher creates a matcher bound to one policy
func NewFuzzyMatcher(cfg Config) *FuzzyMatcher {
	return &FuzzyMatcher{cfg: cfg, opts: cfg.normalizeOptions()}
}

// Config returns the policy the matcher was built with
func (m *FuzzyMatcher) Config() Config {
	return m.cfg
}

// Similarity returns the mean score of the fields present on both files, in [0,1]
func (m *FuzzyMatcher) Similarity(a, b *store.FileRecord) float64 {
	return m.Compare(a, b).Similarity
}

// AreDuplicates reports whether enough fields match and none disqualifies
func (m *FuzzyMatcher) AreDuplicates(a, b *store.FileRecord) bool {
	return m.Compare(a, b).Duplicate
}

// Compare evaluates every field and returns the breakdown
func (m *FuzzyMatcher) Compare(a, b *store.FileRecord) Breakdown {
	bd := Breakdown{MinFields: m.cfg.MinFieldsToMatch}
	if a == nil || b == nil {
		return bd
	}

	bd.Fields = []FieldResult{
		m.compareText(FieldTitle, a.Title, b.Title, m.cfg.TitleThreshold, meta.NormalizeTitle, !m.cfg.WordOrderSensitive),
		m.compareText(FieldArtist, a.Artist, b.Artist, m.cfg.ArtistThreshold, meta.NormalizeArtist, !m.cfg.WordOrderSensitive),
		m.compareText(FieldAlbum, a.Album, b.Album, m.cfg.AlbumThreshold, meta.NormalizeAlbum, false),
		m.compareDuration(a.DurationSec, b.DurationSec),
		m.compareBitrate(a.BitrateKbps, b.BitrateKbps),
		m.compareTrack(a.TrackNumber, b.TrackNumber),
	}

	var sum float64
	var scored int
	for _, f := range bd.Fields {
		if f.Matched {
			bd.MatchedFields++
		}
		if f.Disqualifying {
			bd.Disqualified = true
		}
		if !f.Missing {
			sum += f.Score
			scored++
		}
	}
	if scored > 0 {
		bd.Similarity = sum / float64(scored)
	}

	bd.Duplicate = !bd.Disqualified && bd.MatchedFields >= m.cfg.MinFieldsToMatch
	return bd
}

// Explain returns a human-readable breakdown of the comparison
func (m *FuzzyMatcher) Explain(a, b *store.FileRecord) string {
	bd := m.Compare(a, b)

	var sb strings.Builder
	for _, f := range bd.Fields {
		status := "no match"
		switch {
		case f.Missing:
			status = "skipped"
		case f.Disqualifying:
			status = "DISQUALIFIED"
		case f.Matched:
			status = "match"
		}
		fmt.Fprintf(&sb, "%-9s %-12s %s\n", string(f.Field)+":", status, f.Detail)
	}

	verdict := "not duplicates"
	if bd.Duplicate {
		verdict = "duplicates"
	}
	fmt.Fprintf(&sb, "fields matched: %d (need %d), similarity %.3f -> %s",
		bd.MatchedFields, bd.MinFields, bd.Similarity, verdict)
	if bd.Disqualified {
		sb.WriteString(" (disqualified)")
	}
	return sb.String()
}

type normalizeFunc func(string, meta.Options) string

func (m *FuzzyMatcher) compareText(field Field, rawA, rawB string, threshold float64, normalize normalizeFunc, orderInvariant bool) FieldResult {
	r := FieldResult{Field: field}

	na := normalize(rawA, m.opts)
	nb := normalize(rawB, m.opts)
	if na == "" || nb == "" {
		r.Missing = true
		r.Detail = "missing"
		return r
	}

	r.Score = stringSimilarity(na, nb)
	if orderInvariant && r.Score < 1 {
		r.Score = math.Max(r.Score, stringSimilarity(meta.SortTokens(na), meta.SortTokens(nb)))
	}
	r.Matched = r.Score >= threshold
	r.Detail = fmt.Sprintf("%.3f vs threshold %.3f (%q / %q)", r.Score, threshold, na, nb)
	return r
}

func (m *FuzzyMatcher) compareDuration(a, b int) FieldResult {
	r := FieldResult{Field: FieldDuration}
	if a <= 0 || b <= 0 {
		r.Missing = true
		r.Detail = "missing"
		return r
	}

	diff := absInt(a - b)
	pct := float64(diff) / float64(max(a, b)) * 100
	r.Matched = diff <= m.cfg.DurationToleranceSec && pct <= m.cfg.DurationTolerancePct
	r.Disqualifying = !r.Matched
	if r.Matched {
		r.Score = 1
	}
	r.Detail = fmt.Sprintf("%ds vs %ds (diff %ds / %.1f%%, tolerance %ds / %.1f%%)",
		a, b, diff, pct, m.cfg.DurationToleranceSec, m.cfg.DurationTolerancePct)
	return r
}

func (m *FuzzyMatcher) compareBitrate(a, b int) FieldResult {
	r := FieldResult{Field: FieldBitrate}
	if a <= 0 || b <= 0 {
		r.Missing = true
		r.Detail = "missing"
		return r
	}

	diff := absInt(a - b)
	r.Matched = diff <= m.cfg.BitrateToleranceKbps
	if r.Matched {
		r.Score = 1
	}
	r.Detail = fmt.Sprintf("%d vs %d kbps (tolerance %d)", a, b, m.cfg.BitrateToleranceKbps)
	return r
}

func (m *FuzzyMatcher) compareTrack(a, b int) FieldResult {
	r := FieldResult{Field: FieldTrack}

	switch {
	case a <= 0 && b <= 0:
		r.Missing = true
		r.Detail = "missing"
	case a <= 0 || b <= 0:
		if m.cfg.IgnoreMissingTrackNumber {
			r.Missing = true
			r.Detail = "missing on one side, ignored"
			return r
		}
		r.Disqualifying = m.cfg.TrackNumberMustMatch
		r.Detail = fmt.Sprintf("%d vs %d (missing on one side)", a, b)
	default:
		r.Matched = a == b
		r.Disqualifying = !r.Matched && m.cfg.TrackNumberMustMatch
		if r.Matched {
			r.Score = 1
		}
		r.Detail = fmt.Sprintf("%d vs %d", a, b)
	}
	return r
}

// stringSimilarity is the normalized Levenshtein similarity of two strings,
// computed in float64 from the edit distance so that a score equal to a
// configured threshold compares equal to it
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	d := edlib.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(n)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
