package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/store/storetest"
	"github.com/franz/dupe-janitor/internal/util"
)

type staticGroups []cluster.Group

func (s staticGroups) Groups(context.Context) ([]cluster.Group, error) {
	return s, nil
}

func conflictFixture() ([]cluster.Group, *storetest.Library) {
	a1 := file(1, "/music/A/one.mp3", 320)
	b1 := file(2, "/music/B/one.mp3", 320)
	a2 := file(3, "/music/A/two.mp3", 320)
	b2 := file(4, "/music/B/two.mp3", 320)
	c2 := file(5, "/music/C/two.mp3", 320)
	// Both copies of three live under B
	b3 := file(6, "/music/B/three.mp3", 320)
	b3dup := file(7, "/music/B/sub/three.mp3", 320)

	groups := []cluster.Group{
		{ID: 1, Files: []*store.FileRecord{a1, b1}},
		{ID: 2, Files: []*store.FileRecord{a2, b2, c2}},
		{ID: 3, Files: []*store.FileRecord{b3, b3dup}},
	}
	return groups, storetest.New(a1, b1, a2, b2, c2, b3, b3dup)
}

func TestListConflicts(t *testing.T) {
	groups, _ := conflictFixture()
	conflicts := ListConflicts(groups)

	if len(conflicts) != 4 {
		t.Fatalf("got %d conflicts, want 4: %+v", len(conflicts), conflicts)
	}

	first := conflicts[0]
	if first.DirectoryA != "/music/A" || first.DirectoryB != "/music/B" || first.Count != 2 {
		t.Errorf("top conflict = %+v, want A/B with 2 pairs", first)
	}
	if len(first.Pairs) != 2 || first.Pairs[0].A != 1 || first.Pairs[0].B != 2 {
		t.Errorf("pairs = %+v", first.Pairs)
	}

	for _, c := range conflicts[1:] {
		if c.Count != 1 {
			t.Errorf("conflict %s/%s count = %d, want 1", c.DirectoryA, c.DirectoryB, c.Count)
		}
		if c.DirectoryA >= c.DirectoryB {
			t.Errorf("directories not ordered: %+v", c)
		}
	}
}

func TestListConflictsSameDirectory(t *testing.T) {
	g := cluster.Group{ID: 1, Files: []*store.FileRecord{file(1, "/m/a.mp3", 1), file(2, "/m/b.mp3", 1)}}
	if got := ListConflicts([]cluster.Group{g}); len(got) != 0 {
		t.Errorf("same-directory duplicates are not conflicts, got %+v", got)
	}
}

func TestDirectoryResolveNeverDeletesLastCopy(t *testing.T) {
	groups, lib := conflictFixture()
	cache := cluster.NewResultCache(time.Minute)
	cache.Put(groups)
	r := NewDirectoryResolver(staticGroups(groups), &Config{Library: lib, Cache: cache})

	preview, err := r.PreviewResolution(context.Background(), "/music/A", "/music/B")
	if err != nil {
		t.Fatalf("PreviewResolution: %v", err)
	}
	ids := map[int64]bool{}
	for _, f := range preview {
		ids[f.ID] = true
	}
	if len(ids) != 2 || !ids[2] || !ids[4] {
		t.Errorf("preview = %v, want files 2 and 4", ids)
	}

	out, err := r.Resolve(context.Background(), "/music/A", "/music/B")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(out.Deleted) != 2 {
		t.Errorf("deleted = %v, want 2 files", out.Deleted)
	}
	for _, id := range lib.Deleted() {
		if id == 6 || id == 7 {
			t.Errorf("file %d was the last copy of its recording", id)
		}
	}
	if _, ok := cache.Get(); ok {
		t.Error("cache must be invalidated after resolution")
	}
}

func TestDirectoryResolveRejectsOverlap(t *testing.T) {
	groups, lib := conflictFixture()
	r := NewDirectoryResolver(staticGroups(groups), &Config{Library: lib})

	tests := []struct{ keep, del string }{
		{"/music/B", "/music/B"},
		{"/music", "/music/B"},
		{"/music/B/sub", "/music/B"},
		{"", "/music/B"},
	}
	for _, tt := range tests {
		if _, err := r.Resolve(context.Background(), tt.keep, tt.del); !errors.Is(err, util.ErrInvalidInput) {
			t.Errorf("Resolve(%q, %q) error = %v, want ErrInvalidInput", tt.keep, tt.del, err)
		}
	}
	if len(lib.Deleted()) != 0 {
		t.Error("rejected requests must not delete")
	}
}

func TestIsUnder(t *testing.T) {
	tests := []struct {
		path, dir string
		want      bool
	}{
		{"/music/B/one.mp3", "/music/B", true},
		{"/music/B/sub/one.mp3", "/music/B", true},
		{"/music/B", "/music/B/", true},
		{"/music/Beta/one.mp3", "/music/B", false},
		{"/music/A/one.mp3", "/music/B", false},
		{"/music/..hidden/one.mp3", "/music", true},
	}
	for _, tt := range tests {
		if got := isUnder(tt.path, tt.dir); got != tt.want {
			t.Errorf("isUnder(%q, %q) = %v, want %v", tt.path, tt.dir, got, tt.want)
		}
	}
}
