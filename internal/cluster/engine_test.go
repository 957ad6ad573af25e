package cluster

import (
	"context"
	"fmt"
	"testing"

	"github.com/franz/dupe-janitor/internal/match"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/store/storetest"
)

func newTestEngine(lib store.Library) *Engine {
	return New(&Config{
		Library: lib,
		Cache:   NewResultCache(DefaultCacheTTL),
		Match:   match.DefaultConfig(),
		Workers: 2,
	})
}

func memberIDs(groups []Group) [][]int64 {
	out := make([][]int64, len(groups))
	for i, g := range groups {
		out[i] = g.FileIDs()
	}
	return out
}

func TestComputeGroupsBitrateVariants(t *testing.T) {
	files := []*store.FileRecord{
		{ID: 1, Title: "Song", Artist: "Artist", BitrateKbps: 128},
		{ID: 2, Title: "Song", Artist: "Artist", BitrateKbps: 320},
	}

	groups, err := newTestEngine(storetest.New()).ComputeGroups(context.Background(), files, Hooks{})
	if err != nil {
		t.Fatalf("ComputeGroups: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Files) != 2 {
		t.Fatalf("expected one group of two, got %v", memberIDs(groups))
	}
	if groups[0].ID != 1 {
		t.Errorf("first group id = %d, want 1", groups[0].ID)
	}
}

func TestComputeGroupsIdsAndSingletons(t *testing.T) {
	files := []*store.FileRecord{
		{ID: 10, Title: "Alpha", Artist: "One"},
		{ID: 11, Title: "Beta", Artist: "Two"},
		{ID: 12, Title: "Alpha", Artist: "One"},
		{ID: 13, Title: "Gamma", Artist: "Three"},
		{ID: 14, Title: "Beta", Artist: "Two"},
		{ID: 15, Title: "Alpha", Artist: "One"},
	}

	var emitted []int
	groups, err := newTestEngine(storetest.New()).ComputeGroups(context.Background(), files, Hooks{
		OnGroup: func(g Group) { emitted = append(emitted, g.ID) },
	})
	if err != nil {
		t.Fatalf("ComputeGroups: %v", err)
	}

	got := memberIDs(groups)
	want := [][]int64{{10, 12, 15}, {11, 14}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
	for i, g := range groups {
		if g.ID != i+1 {
			t.Errorf("group %d has id %d", i, g.ID)
		}
	}
	if fmt.Sprint(emitted) != "[1 2]" {
		t.Errorf("emitted ids = %v, want [1 2]", emitted)
	}
}

func TestComputeGroupsIdempotent(t *testing.T) {
	var files []*store.FileRecord
	for i := 0; i < 40; i++ {
		files = append(files, &store.FileRecord{
			ID:          int64(i + 1),
			Title:       fmt.Sprintf("Track %c", 'A'+i%7),
			Artist:      "Band",
			DurationSec: 200 + (i%7)*20,
		})
	}

	e := newTestEngine(storetest.New())
	first, err := e.ComputeGroups(context.Background(), files, Hooks{})
	if err != nil {
		t.Fatalf("ComputeGroups: %v", err)
	}
	second, err := e.ComputeGroups(context.Background(), files, Hooks{})
	if err != nil {
		t.Fatalf("ComputeGroups: %v", err)
	}

	if len(first) != 7 {
		t.Errorf("expected 7 groups, got %d", len(first))
	}
	if fmt.Sprint(memberIDs(first)) != fmt.Sprint(memberIDs(second)) {
		t.Errorf("recomputation changed membership:\n%v\n%v", memberIDs(first), memberIDs(second))
	}
}

func TestSelectStrategy(t *testing.T) {
	make1000 := func(fingerprinted int) []*store.FileRecord {
		files := make([]*store.FileRecord, 1000)
		for i := range files {
			files[i] = &store.FileRecord{ID: int64(i + 1)}
			if i < fingerprinted {
				files[i].Fingerprint = "1,2,3"
			}
		}
		return files
	}

	tests := []struct {
		fingerprinted int
		want          Strategy
	}{
		{0, StrategyMetadata},
		{499, StrategyMetadata},
		{500, StrategyMetadata},
		{501, StrategyFingerprint},
		{1000, StrategyFingerprint},
	}

	for _, tt := range tests {
		if got := SelectStrategy(make1000(tt.fingerprinted)); got != tt.want {
			t.Errorf("SelectStrategy(%d/1000) = %s, want %s", tt.fingerprinted, got, tt.want)
		}
	}

	if got := SelectStrategy(nil); got != StrategyMetadata {
		t.Errorf("SelectStrategy(nil) = %s", got)
	}

	// 600 stored fingerprints, but only 400 decode
	mixed := make1000(600)
	for _, f := range mixed[400:600] {
		f.Fingerprint = "corrupt"
	}
	if got := SelectStrategy(mixed); got != StrategyMetadata {
		t.Errorf("SelectStrategy with undecodable fingerprints = %s, want metadata", got)
	}
}

func TestComputeGroupsFingerprintStrategy(t *testing.T) {
	fpA := match.EncodeFingerprint([]uint32{0xdeadbeef, 0x12345678, 0x0badf00d, 0xcafebabe})
	fpB := match.EncodeFingerprint([]uint32{0x11111111, 0x22222222, 0x44444444, 0x88888888})

	// Same tags everywhere: only fingerprints tell the recordings apart
	files := []*store.FileRecord{
		{ID: 1, Title: "Same", Artist: "Same", Fingerprint: fpA},
		{ID: 2, Title: "Same", Artist: "Same", Fingerprint: fpB},
		{ID: 3, Title: "Same", Artist: "Same"},
		{ID: 4, Title: "Same", Artist: "Same", Fingerprint: fpA},
	}

	var strategy Strategy
	var total int
	groups, err := newTestEngine(storetest.New()).ComputeGroups(context.Background(), files, Hooks{
		OnStart: func(s Strategy, totalFiles, _ int) {
			strategy = s
			total = totalFiles
		},
	})
	if err != nil {
		t.Fatalf("ComputeGroups: %v", err)
	}

	if strategy != StrategyFingerprint {
		t.Errorf("strategy = %s, want fingerprint", strategy)
	}
	if total != 3 {
		t.Errorf("expected the unfingerprinted file to be excluded, total = %d", total)
	}
	if fmt.Sprint(memberIDs(groups)) != "[[1 4]]" {
		t.Errorf("groups = %v, want [[1 4]]", memberIDs(groups))
	}
}

func TestComputeGroupsUndecodableFingerprints(t *testing.T) {
	files := []*store.FileRecord{
		{ID: 1, Title: "Song", Artist: "Artist", Fingerprint: "not-a-fingerprint"},
		{ID: 2, Title: "Song", Artist: "Artist", Fingerprint: "garbage"},
		{ID: 3, Title: "Other", Artist: "Else"},
	}

	if got := SelectStrategy(files); got != StrategyMetadata {
		t.Fatalf("SelectStrategy = %s, want metadata", got)
	}

	var strategy Strategy
	groups, err := newTestEngine(storetest.New()).ComputeGroups(context.Background(), files, Hooks{
		OnStart: func(s Strategy, _, _ int) { strategy = s },
	})
	if err != nil {
		t.Fatalf("ComputeGroups: %v", err)
	}
	if strategy != StrategyMetadata {
		t.Errorf("strategy = %s, want metadata", strategy)
	}
	if fmt.Sprint(memberIDs(groups)) != "[[1 2]]" {
		t.Errorf("groups = %v, want [[1 2]]", memberIDs(groups))
	}
}

func TestComputeGroupsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := []*store.FileRecord{{ID: 1, Title: "a"}, {ID: 2, Title: "a"}}
	if _, err := newTestEngine(storetest.New()).ComputeGroups(ctx, files, Hooks{}); err == nil {
		t.Error("expected an error from a cancelled context")
	}
}

func TestGroupsUsesCache(t *testing.T) {
	lib := storetest.New(
		&store.FileRecord{ID: 1, Title: "Song", Artist: "Artist"},
		&store.FileRecord{ID: 2, Title: "Song", Artist: "Artist"},
	)
	e := newTestEngine(lib)
	ctx := context.Background()

	first, err := e.Groups(ctx)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 group, got %d", len(first))
	}

	if _, err := e.Groups(ctx); err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if lib.Loads() != 1 {
		t.Errorf("second call should be served from cache, loads = %d", lib.Loads())
	}

	if _, err := lib.DeleteFile(2); err != nil {
		t.Fatal(err)
	}
	e.Invalidate()

	after, err := e.Groups(ctx)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if lib.Loads() != 2 {
		t.Errorf("expected a reload after invalidation, loads = %d", lib.Loads())
	}
	if len(after) != 0 {
		t.Errorf("expected no groups after deleting the duplicate, got %d", len(after))
	}

	if _, err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if lib.Loads() != 3 {
		t.Errorf("Refresh must bypass the cache, loads = %d", lib.Loads())
	}
}

func TestGroupsLoadError(t *testing.T) {
	lib := storetest.New()
	lib.FailLoads(fmt.Errorf("disk on fire"))

	e := newTestEngine(lib)
	if _, err := e.Groups(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if _, ok := e.Cache().Get(); ok {
		t.Error("a failed computation must not populate the cache")
	}
}
