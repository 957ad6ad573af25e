package match

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/franz/dupe-janitor/internal/store"
)

func randomFingerprint(seed int64, n int) []uint32 {
	r := rand.New(rand.NewSource(seed))
	fp := make([]uint32, n)
	for i := range fp {
		fp[i] = r.Uint32()
	}
	return fp
}

// flipBits returns a copy with one bit flipped in each of the first frames
func flipBits(fp []uint32, frames int) []uint32 {
	out := append([]uint32(nil), fp...)
	for i := 0; i < frames && i < len(out); i++ {
		out[i] ^= 1 << (i % 32)
	}
	return out
}

func TestDecodeFingerprint(t *testing.T) {
	fp, err := DecodeFingerprint("1,2, 4294967295 7")
	if err != nil {
		t.Fatalf("DecodeFingerprint: %v", err)
	}
	want := []uint32{1, 2, 4294967295, 7}
	if len(fp) != len(want) {
		t.Fatalf("got %v, want %v", fp, want)
	}
	for i := range want {
		if fp[i] != want[i] {
			t.Errorf("fp[%d] = %d, want %d", i, fp[i], want[i])
		}
	}

	if EncodeFingerprint(fp) != "1,2,4294967295,7" {
		t.Errorf("EncodeFingerprint = %q", EncodeFingerprint(fp))
	}

	for _, bad := range []string{"", "  ", "1,x,3", "4294967296", "-1"} {
		if _, err := DecodeFingerprint(bad); err == nil {
			t.Errorf("DecodeFingerprint(%q) expected error", bad)
		}
	}
}

func TestFingerprintSimilarity(t *testing.T) {
	base := randomFingerprint(1, 100)

	if got := FingerprintSimilarity(base, base, 0); got != 1 {
		t.Errorf("identical similarity = %v, want 1", got)
	}

	noisy := flipBits(base, 10)
	want := 1 - 10.0/(32*100)
	if got := FingerprintSimilarity(base, noisy, DefaultMaxAlignOffset); got != want {
		t.Errorf("noisy similarity = %v, want %v", got, want)
	}

	// The second copy starts two frames late
	if got := FingerprintSimilarity(base, base[2:], DefaultMaxAlignOffset); got != 1 {
		t.Errorf("drifted similarity = %v, want 1", got)
	}
	if got := FingerprintSimilarity(base, base[2:], 0); got > 0.7 {
		t.Errorf("drift without alignment should look unrelated, got %v", got)
	}

	// Shorter fingerprint is compared over its own length only
	if got := FingerprintSimilarity(base, base[:40], 0); got != 1 {
		t.Errorf("prefix similarity = %v, want 1", got)
	}

	other := randomFingerprint(2, 100)
	if got := FingerprintSimilarity(base, other, DefaultMaxAlignOffset); got > 0.7 {
		t.Errorf("unrelated similarity = %v, expected around 0.5", got)
	}

	if got := FingerprintSimilarity(nil, base, 3); got != 0 {
		t.Errorf("empty similarity = %v, want 0", got)
	}
}

func TestFingerprintSimilarityMinimumOverlap(t *testing.T) {
	// Only a's last frame equals b's first; every other aligned frame differs
	a := []uint32{0, 0, 0, 0xffffffff}
	b := []uint32{0xffffffff, 0xffffffff, 0xffffffff, 0xffffffff}

	if got := FingerprintSimilarity(a, b, DefaultMaxAlignOffset); got != 0.5 {
		t.Errorf("similarity = %v, want 0.5 (a one-frame overlap must not count)", got)
	}

	tests := []struct {
		la, lb, offset, want int
	}{
		{100, 100, 3, 97},
		{100, 40, 3, 37},
		{4, 4, 3, 2},
		{1, 10, 3, 1},
	}
	for _, tt := range tests {
		if got := minOverlap(tt.la, tt.lb, tt.offset); got != tt.want {
			t.Errorf("minOverlap(%d, %d, %d) = %d, want %d", tt.la, tt.lb, tt.offset, got, tt.want)
		}
	}
}

func TestHasUsableFingerprint(t *testing.T) {
	tests := []struct {
		name string
		file *store.FileRecord
		want bool
	}{
		{"nil", nil, false},
		{"empty", &store.FileRecord{ID: 1}, false},
		{"blank", &store.FileRecord{ID: 1, Fingerprint: "  "}, false},
		{"undecodable", &store.FileRecord{ID: 1, Fingerprint: "not-a-fingerprint"}, false},
		{"decodable", &store.FileRecord{ID: 1, Fingerprint: "1,2,3"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasUsableFingerprint(tt.file); got != tt.want {
				t.Errorf("HasUsableFingerprint = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFingerprintAreSimilarInclusive(t *testing.T) {
	m := NewFingerprintMatcher(0, 1)
	a := EncodeFingerprint(randomFingerprint(3, 50))
	b := EncodeFingerprint(flipBits(randomFingerprint(3, 50), 20))

	score := m.Similarity(a, b)
	if !m.AreSimilar(a, b, score) {
		t.Error("score equal to threshold must count as similar")
	}
	if m.AreSimilar(a, b, score+1e-9) {
		t.Error("score below threshold must not count as similar")
	}
	if m.AreSimilar(a, "garbage", 0.1) {
		t.Error("undecodable fingerprint must not match")
	}
}

func TestFindSimilar(t *testing.T) {
	m := NewFingerprintMatcher(0, 1)
	base := randomFingerprint(10, 80)

	target := &store.FileRecord{ID: 1, Fingerprint: EncodeFingerprint(base)}
	close1 := &store.FileRecord{ID: 2, Fingerprint: EncodeFingerprint(flipBits(base, 40))}
	exact := &store.FileRecord{ID: 3, Fingerprint: EncodeFingerprint(base)}
	unrelated := &store.FileRecord{ID: 4, Fingerprint: EncodeFingerprint(randomFingerprint(11, 80))}
	missing := &store.FileRecord{ID: 5}

	found := m.FindSimilar(target, []*store.FileRecord{target, close1, unrelated, missing, exact}, m.Threshold)
	if len(found) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(found))
	}
	if found[0].File.ID != 3 || found[1].File.ID != 2 {
		t.Errorf("expected ranking [3 2], got [%d %d]", found[0].File.ID, found[1].File.ID)
	}
	if found[0].Score < found[1].Score {
		t.Error("candidates must be ordered best first")
	}
}

func fingerprintedFiles() []*store.FileRecord {
	a := randomFingerprint(100, 60)
	c := randomFingerprint(200, 60)
	return []*store.FileRecord{
		{ID: 1, Fingerprint: EncodeFingerprint(a)},
		{ID: 2, Fingerprint: EncodeFingerprint(c)},
		{ID: 3},                                      // no fingerprint
		{ID: 4, Fingerprint: EncodeFingerprint(flipBits(a, 30))},
		{ID: 5, Fingerprint: "not,a,fingerprint"},    // undecodable
		{ID: 6, Fingerprint: EncodeFingerprint(c[1:])},
		{ID: 7, Fingerprint: EncodeFingerprint(randomFingerprint(300, 60))},
	}
}

func groupIDs(groups [][]*store.FileRecord) [][]int64 {
	out := make([][]int64, len(groups))
	for i, g := range groups {
		for _, f := range g {
			out[i] = append(out[i], f.ID)
		}
	}
	return out
}

func TestGroupAll(t *testing.T) {
	m := NewFingerprintMatcher(0, 4)

	groups, err := m.GroupAll(context.Background(), fingerprintedFiles(), Hooks{})
	if err != nil {
		t.Fatalf("GroupAll: %v", err)
	}

	got := groupIDs(groups)
	want := [][]int64{{1, 4}, {2, 6}}
	if len(got) != len(want) {
		t.Fatalf("groups = %v, want %v", got, want)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("groups = %v, want %v", got, want)
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("groups = %v, want %v", got, want)
			}
		}
	}
}

func TestGroupAllDeterministicAcrossWorkers(t *testing.T) {
	// 300 files in 30 families of 10 noisy copies, interleaved
	var files []*store.FileRecord
	id := int64(1)
	for copyIdx := 0; copyIdx < 10; copyIdx++ {
		for family := 0; family < 30; family++ {
			fp := flipBits(randomFingerprint(int64(family), 40), copyIdx)
			files = append(files, &store.FileRecord{ID: id, Fingerprint: EncodeFingerprint(fp)})
			id++
		}
	}

	sequential, err := NewFingerprintMatcher(0, 1).GroupAll(context.Background(), files, Hooks{})
	if err != nil {
		t.Fatalf("sequential GroupAll: %v", err)
	}
	parallel, err := NewFingerprintMatcher(0, 8).GroupAll(context.Background(), files, Hooks{})
	if err != nil {
		t.Fatalf("parallel GroupAll: %v", err)
	}

	if len(sequential) != 30 {
		t.Fatalf("expected 30 groups, got %d", len(sequential))
	}
	s, p := groupIDs(sequential), groupIDs(parallel)
	if len(s) != len(p) {
		t.Fatalf("group counts differ: %d vs %d", len(s), len(p))
	}
	for i := range s {
		if len(s[i]) != len(p[i]) {
			t.Fatalf("group %d differs: %v vs %v", i, s[i], p[i])
		}
		for j := range s[i] {
			if s[i][j] != p[i][j] {
				t.Fatalf("group %d differs: %v vs %v", i, s[i], p[i])
			}
		}
	}
}

func TestGroupAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFingerprintMatcher(0, 2).GroupAll(ctx, fingerprintedFiles(), Hooks{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
