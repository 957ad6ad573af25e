package dedupe

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/match"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/store/storetest"
	"github.com/franz/dupe-janitor/internal/util"
)

func newService(t *testing.T, files ...*store.FileRecord) (*Service, *storetest.Library, *cluster.ResultCache) {
	t.Helper()
	lib := storetest.New(files...)
	cache := cluster.NewResultCache(time.Minute)
	cache.Put([]cluster.Group{{ID: 1}})
	engine := cluster.New(&cluster.Config{Library: lib, Cache: cache, Match: match.DefaultConfig(), Workers: 1})
	return New(&Config{Engine: engine}), lib, cache
}

func songs() []*store.FileRecord {
	return []*store.FileRecord{
		{ID: 1, Path: "/m/a.mp3", Title: "Song", Artist: "Artist", BitrateKbps: 128},
		{ID: 2, Path: "/m/b.mp3", Title: "Song", Artist: "Artist", BitrateKbps: 320},
		{ID: 3, Path: "/m/c.mp3", Title: "Other", Artist: "Someone", BitrateKbps: 320},
	}
}

func TestDeleteFile(t *testing.T) {
	svc, lib, cache := newService(t, songs()...)

	if err := svc.DeleteFile(2); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if got := lib.Deleted(); len(got) != 1 || got[0] != 2 {
		t.Errorf("deleted = %v", got)
	}
	if _, ok := cache.Get(); ok {
		t.Error("delete must invalidate the cache")
	}
}

func TestUnknownIDsChangeNothing(t *testing.T) {
	svc, lib, cache := newService(t, songs()...)

	if err := svc.DeleteFile(42); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("DeleteFile(unknown) = %v", err)
	}
	if _, err := svc.KeepOne(1, []int64{1, 2, 42}); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("KeepOne(unknown member) = %v", err)
	}
	title := "New"
	if _, err := svc.UpdateMetadata([]int64{1, 42}, store.MetadataEdit{Title: &title}); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("UpdateMetadata(unknown) = %v", err)
	}
	if _, err := svc.Compare(1, 42); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Compare(unknown) = %v", err)
	}

	if len(lib.Deleted()) != 0 {
		t.Errorf("unknown ids must not delete anything, deleted %v", lib.Deleted())
	}
	if f, _ := lib.GetFileByID(1); f.Title != "Song" {
		t.Errorf("title changed to %q", f.Title)
	}
	if _, ok := cache.Get(); !ok {
		t.Error("failed operations must leave the cache alone")
	}
}

func TestKeepOne(t *testing.T) {
	svc, lib, cache := newService(t, songs()...)

	res, err := svc.KeepOne(2, []int64{1, 2, 3, 3})
	if err != nil {
		t.Fatalf("KeepOne: %v", err)
	}
	if res.Kept != 2 || len(res.Deleted) != 2 {
		t.Errorf("result = %+v", res)
	}
	remaining, _ := lib.GetAllFiles()
	if len(remaining) != 1 || remaining[0].ID != 2 {
		t.Errorf("remaining = %v", remaining)
	}
	if _, ok := cache.Get(); ok {
		t.Error("keep-one must invalidate the cache")
	}

	if _, err := svc.KeepOne(9, []int64{2}); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("KeepOne with outside keep id = %v", err)
	}
}

func TestUpdateMetadata(t *testing.T) {
	svc, lib, cache := newService(t, songs()...)

	artist := "The Artist"
	year := 2001
	n, err := svc.UpdateMetadata([]int64{1, 2, 2}, store.MetadataEdit{Artist: &artist, Year: &year})
	if err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if n != 2 {
		t.Errorf("updated %d files, want 2", n)
	}
	f, _ := lib.GetFileByID(2)
	if f.Artist != artist || f.Year != year || f.Title != "Song" {
		t.Errorf("file after edit = %+v", f)
	}
	if _, ok := cache.Get(); ok {
		t.Error("bulk edit must invalidate the cache")
	}

	if _, err := svc.UpdateMetadata([]int64{1}, store.MetadataEdit{}); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("empty edit = %v", err)
	}
}

func TestCompare(t *testing.T) {
	files := songs()
	files[0].Fingerprint = "1,2,3,4"
	files[1].Fingerprint = "1,2,3,4"
	svc, _, _ := newService(t, files...)

	cmp, err := svc.Compare(1, 2)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !cmp.Metadata.Duplicate {
		t.Errorf("expected metadata duplicate: %+v", cmp.Metadata)
	}
	if !strings.Contains(cmp.Explanation, "-> duplicates") {
		t.Errorf("explanation = %q", cmp.Explanation)
	}
	if cmp.FingerprintSimilarity == nil || *cmp.FingerprintSimilarity != 1 || !cmp.FingerprintDuplicate {
		t.Errorf("fingerprint comparison = %v/%v", cmp.FingerprintSimilarity, cmp.FingerprintDuplicate)
	}

	cmp, err = svc.Compare(1, 3)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if cmp.Metadata.Duplicate || cmp.FingerprintSimilarity != nil {
		t.Errorf("unrelated files compared as %+v", cmp)
	}
}

func TestSimilar(t *testing.T) {
	files := songs()
	files[0].Fingerprint = "1,2,3,4"
	files[1].Fingerprint = "1,2,3,4"
	files[2].Fingerprint = "4294967294,4294967293,4294967292,4294967291"
	files = append(files,
		&store.FileRecord{ID: 4, Path: "/m/d.mp3"},
		&store.FileRecord{ID: 5, Path: "/m/e.mp3", Fingerprint: "corrupt"},
	)
	svc, _, _ := newService(t, files...)

	found, err := svc.Similar(1)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(found) != 1 || found[0].File.ID != 2 || found[0].Score != 1 {
		t.Errorf("Similar(1) = %+v, want only file 2", found)
	}

	if _, err := svc.Similar(4); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("unfingerprinted target: err = %v", err)
	}
	if _, err := svc.Similar(5); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("undecodable fingerprint target: err = %v", err)
	}
	if _, err := svc.Similar(99); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("unknown target: err = %v", err)
	}
}
