package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/store/storetest"
	"github.com/franz/dupe-janitor/internal/util"
)

// fakeGenerator returns a fingerprint derived from the path unless the
// path is listed in fail
type fakeGenerator struct {
	fail     map[string]error
	delay    time.Duration
	onCall   func(path string)
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (g *fakeGenerator) Generate(ctx context.Context, path string, lengthSec int) (Result, error) {
	g.calls.Add(1)
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		seen := g.maxSeen.Load()
		if n <= seen || g.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if g.onCall != nil {
		g.onCall(path)
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if err := g.fail[path]; err != nil {
		return Result{}, err
	}
	return Result{Fingerprint: fmt.Sprintf("%d,1,2", len(path)), DurationSec: 180}, nil
}

func pendingLibrary(n int) *storetest.Library {
	lib := storetest.New()
	for i := 1; i <= n; i++ {
		lib.Add(&store.FileRecord{ID: int64(i), Path: fmt.Sprintf("/music/%02d.flac", i)})
	}
	return lib
}

func TestBatchFingerprintsAndRecordsFailures(t *testing.T) {
	lib := pendingLibrary(10)
	lib.Add(&store.FileRecord{ID: 99, Path: "/music/done.flac", Fingerprint: "1,2,3"})
	gen := &fakeGenerator{
		fail:  map[string]error{"/music/03.flac": errors.New("fpcalc failed: unsupported format")},
		delay: 5 * time.Millisecond,
	}
	cache := cluster.NewResultCache(time.Minute)
	cache.Put([]cluster.Group{{ID: 1}})

	b := NewBatch(&Config{Library: lib, Generator: gen, Cache: cache})

	var progress []int
	var mu sync.Mutex
	res, err := b.Run(context.Background(), func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if total != 10 {
			t.Errorf("total = %d, want 10", total)
		}
		progress = append(progress, done)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Total != 10 || res.Succeeded != 9 || res.Failed != 1 || res.Skipped != 0 || res.Cancelled {
		t.Errorf("unexpected result %+v", res)
	}
	if got := gen.maxSeen.Load(); got > DefaultWorkers {
		t.Errorf("%d generators ran concurrently, limit is %d", got, DefaultWorkers)
	}
	if len(progress) != 10 || progress[len(progress)-1] != 10 {
		t.Errorf("progress = %v", progress)
	}

	failures := b.Failures().List()
	if len(failures) != 1 || failures[0].FileID != 3 || failures[0].Reason == "" {
		t.Errorf("failures = %+v", failures)
	}

	pending, _ := lib.GetFilesWithoutFingerprint()
	if len(pending) != 1 || pending[0].ID != 3 {
		t.Errorf("pending after run = %v, want only file 3", pending)
	}
	stored, _ := lib.GetFileByID(1)
	if stored.Fingerprint == "" || stored.FingerprintDuration != 180 {
		t.Errorf("fingerprint not stored: %+v", stored)
	}

	if _, ok := cache.Get(); ok {
		t.Error("cache must be invalidated after new fingerprints")
	}
}

func TestBatchCancelStopsDispatch(t *testing.T) {
	lib := pendingLibrary(20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	gen := &fakeGenerator{
		delay:  20 * time.Millisecond,
		onCall: func(string) { once.Do(cancel) },
	}
	b := NewBatch(&Config{Library: lib, Generator: gen})

	res, err := b.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !res.Cancelled || res.Skipped < 20-(DefaultWorkers+1) {
		t.Errorf("expected most files to be skipped, got %+v", res)
	}
	dispatched := res.Total - res.Skipped
	if res.Succeeded+res.Failed != dispatched || int(gen.calls.Load()) != dispatched {
		t.Errorf("dispatched work did not finish: %+v, calls=%d", res, gen.calls.Load())
	}
	// Dispatched units ignore the cancellation
	if res.Failed != 0 {
		t.Errorf("dispatched units should complete successfully, %d failed", res.Failed)
	}
}

func TestBatchNothingPending(t *testing.T) {
	lib := storetest.New(&store.FileRecord{ID: 1, Path: "/a.mp3", Fingerprint: "1"})
	gen := &fakeGenerator{}
	res, err := NewBatch(&Config{Library: lib, Generator: gen}).Run(context.Background(), nil)
	if err != nil || res.Total != 0 || gen.calls.Load() != 0 {
		t.Errorf("Run = %+v, %v", res, err)
	}
}

func TestBatchLoadError(t *testing.T) {
	lib := storetest.New()
	lib.FailLoads(errors.New("disk I/O error"))
	if _, err := NewBatch(&Config{Library: lib, Generator: &fakeGenerator{}}).Run(context.Background(), nil); err == nil {
		t.Error("expected load error")
	}
}

func TestFailureLogRing(t *testing.T) {
	log := NewFailureLog(100)
	for i := 0; i < 105; i++ {
		log.Add(Failure{FileID: int64(i)})
	}

	list := log.List()
	if len(list) != 100 {
		t.Fatalf("retained %d failures, want 100", len(list))
	}
	if list[0].FileID != 5 || list[99].FileID != 104 {
		t.Errorf("ring order = %d..%d, want 5..104", list[0].FileID, list[99].FileID)
	}
	if log.Total() != 105 {
		t.Errorf("Total = %d, want 105", log.Total())
	}

	small := NewFailureLog(3)
	small.Add(Failure{FileID: 1})
	if got := small.List(); len(got) != 1 || got[0].FileID != 1 {
		t.Errorf("partial ring = %+v", got)
	}
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    Result
		wantErr bool
	}{
		{
			name: "raw comma separated",
			out:  "FILE=/music/a.flac\nDURATION=215\nFINGERPRINT=123,456,789\n",
			want: Result{Fingerprint: "123,456,789", DurationSec: 215},
		},
		{
			name: "fractional duration and spaces",
			out:  "DURATION=215.73\nFINGERPRINT=1 2 3\n",
			want: Result{Fingerprint: "1,2,3", DurationSec: 215},
		},
		{name: "missing fingerprint", out: "DURATION=10\n", wantErr: true},
		{name: "garbage values", out: "FINGERPRINT=abc,def\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOutput([]byte(tt.out))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFpcalcMissingBinary(t *testing.T) {
	f := &Fpcalc{Binary: "dj-test-no-such-fpcalc"}

	if err := f.CheckAvailable(); !errors.Is(err, util.ErrToolUnavailable) {
		t.Errorf("CheckAvailable error = %v", err)
	}
	if _, err := f.Generate(context.Background(), "/music/a.flac", 0); !errors.Is(err, util.ErrToolUnavailable) {
		t.Errorf("Generate error = %v", err)
	}
}
