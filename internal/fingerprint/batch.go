package fingerprint

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/report"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultWorkers     = 4
	DefaultMaxFailures = 100
)

// Failure is one file that could not be fingerprinted
type Failure struct {
	FileID int64     `json:"fileId"`
	Path   string    `json:"path"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// FailureLog keeps the most recent failures in a fixed-size ring
type FailureLog struct {
	mu    sync.Mutex
	ring  []Failure
	next  int
	full  bool
	total int
}

// NewFailureLog creates a log retaining up to size failures
func NewFailureLog(size int) *FailureLog {
	if size <= 0 {
		size = DefaultMaxFailures
	}
	return &FailureLog{ring: make([]Failure, size)}
}

// Add records a failure, overwriting the oldest when full
func (l *FailureLog) Add(f Failure) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = f
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}
	l.total++
}

// List returns retained failures, oldest first
func (l *FailureLog) List() []Failure {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		return append([]Failure(nil), l.ring[:l.next]...)
	}
	out := make([]Failure, 0, len(l.ring))
	out = append(out, l.ring[l.next:]...)
	return append(out, l.ring[:l.next]...)
}

// Total counts every failure ever added, including evicted ones
func (l *FailureLog) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Config holds batch configuration
type Config struct {
	Library   store.Library
	Generator Generator
	Cache     cluster.Cache
	Logger    *report.EventLogger
	Failures  *FailureLog
	Workers   int
	LengthSec int
}

// Batch fingerprints every file that has none yet
type Batch struct {
	library   store.Library
	generator Generator
	cache     cluster.Cache
	logger    *report.EventLogger
	failures  *FailureLog
	workers   int
	lengthSec int
}

// NewBatch creates a batch runner
func NewBatch(cfg *Config) *Batch {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.LengthSec <= 0 {
		cfg.LengthSec = DefaultLengthSec
	}
	if cfg.Failures == nil {
		cfg.Failures = NewFailureLog(DefaultMaxFailures)
	}

	return &Batch{
		library:   cfg.Library,
		generator: cfg.Generator,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		failures:  cfg.Failures,
		workers:   cfg.Workers,
		lengthSec: cfg.LengthSec,
	}
}

// Failures returns the batch's failure log
func (b *Batch) Failures() *FailureLog {
	return b.failures
}

// BatchResult summarizes one run
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int // never dispatched because of cancellation
	Cancelled bool
	Duration  time.Duration
}

// Run fingerprints pending files with a bounded worker pool. Failures are
// recorded and never abort the batch. Cancelling ctx stops dispatching new
// files; files already dispatched run to completion before Run returns.
func (b *Batch) Run(ctx context.Context, onProgress func(done, total int)) (*BatchResult, error) {
	start := time.Now()

	files, err := b.library.GetFilesWithoutFingerprint()
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Total: len(files)}
	if len(files) == 0 {
		return result, nil
	}
	util.InfoLog("Fingerprinting %d files with %d workers", len(files), b.workers)

	var succeeded, failed, done atomic.Int64
	var progressMu sync.Mutex

	// Dispatched work is not individually cancellable
	workCtx := context.WithoutCancel(ctx)

	p := pool.New().WithMaxGoroutines(b.workers)
	dispatched := 0
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		dispatched++
		p.Go(func() {
			if b.process(workCtx, f) {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			n := int(done.Add(1))
			if onProgress != nil {
				progressMu.Lock()
				onProgress(n, len(files))
				progressMu.Unlock()
			}
		})
	}
	p.Wait()

	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())
	result.Skipped = len(files) - dispatched
	result.Cancelled = result.Skipped > 0
	result.Duration = time.Since(start)

	if result.Succeeded > 0 && b.cache != nil {
		b.cache.Invalidate()
	}

	util.InfoLog("Fingerprinting finished: %d ok, %d failed, %d skipped in %v",
		result.Succeeded, result.Failed, result.Skipped, result.Duration.Round(time.Millisecond))

	if result.Cancelled {
		return result, ctx.Err()
	}
	return result, nil
}

// process fingerprints one file and stores the result
func (b *Batch) process(ctx context.Context, f *store.FileRecord) bool {
	res, err := b.generator.Generate(ctx, f.Path, b.lengthSec)
	if err == nil {
		var ok bool
		ok, err = b.library.UpdateFingerprint(f.ID, res.Fingerprint, res.DurationSec)
		if err == nil && !ok {
			err = util.ErrNotFound
		}
	}

	b.logger.LogFingerprint(f.ID, f.Path, err)
	if err != nil {
		util.DebugLog("Fingerprint failed for %s: %v", f.Path, err)
		b.failures.Add(Failure{FileID: f.ID, Path: f.Path, Reason: err.Error(), At: time.Now()})
		return false
	}
	return true
}
