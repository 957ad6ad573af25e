package cluster

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/franz/dupe-janitor/internal/match"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
)

// Engine computes duplicate groups over the whole library
type Engine struct {
	library              store.Library
	cache                Cache
	matchConfig          match.Config
	fingerprintThreshold float64
	workers              int
}

// Config holds engine configuration
type Config struct {
	Library              store.Library
	Cache                Cache
	Match                match.Config
	FingerprintThreshold float64
	Workers              int // parallel comparisons per anchor; <= 0 uses one per CPU
}

// New creates a new Engine
func New(cfg *Config) *Engine {
	if cfg.Cache == nil {
		cfg.Cache = NewResultCache(DefaultCacheTTL)
	}
	if cfg.FingerprintThreshold <= 0 {
		cfg.FingerprintThreshold = match.DefaultFingerprintThreshold
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	return &Engine{
		library:              cfg.Library,
		cache:                cfg.Cache,
		matchConfig:          cfg.Match,
		fingerprintThreshold: cfg.FingerprintThreshold,
		workers:              cfg.Workers,
	}
}

// Hooks observe a computation. All are optional and called sequentially.
type Hooks struct {
	OnStart    func(strategy Strategy, totalFiles, totalComparisons int)
	OnProgress func(filesProcessed, comparisons int)
	OnGroup    func(g Group)
}

// Library returns the persistence collaborator
func (e *Engine) Library() store.Library {
	return e.library
}

// Cache returns the result cache shared with mutating operations
func (e *Engine) Cache() Cache {
	return e.cache
}

// MatchConfig returns the metadata matching policy
func (e *Engine) MatchConfig() match.Config {
	return e.matchConfig
}

// FuzzyMatcher returns a metadata matcher bound to the engine's policy
func (e *Engine) FuzzyMatcher() *match.FuzzyMatcher {
	return match.NewFuzzyMatcher(e.matchConfig)
}

// FingerprintMatcher returns an acoustic matcher bound to the engine's threshold
func (e *Engine) FingerprintMatcher() *match.FingerprintMatcher {
	return match.NewFingerprintMatcher(e.fingerprintThreshold, e.workers)
}

// ComputeGroups clusters files with one strategy chosen for the whole set.
// The result is not cached; see Groups.
func (e *Engine) ComputeGroups(ctx context.Context, files []*store.FileRecord, hooks Hooks) ([]Group, error) {
	strategy := SelectStrategy(files)

	var eligible []*store.FileRecord
	var pred match.PairFunc
	switch strategy {
	case StrategyFingerprint:
		eligible, pred = e.FingerprintMatcher().Prepare(files)
	default:
		eligible, pred = files, e.FuzzyMatcher().AreDuplicates
	}

	n := len(eligible)
	util.DebugLog("Grouping %d of %d files using %s matching", n, len(files), strategy)
	if hooks.OnStart != nil {
		hooks.OnStart(strategy, n, n*(n-1)/2)
	}

	var groups []Group
	_, err := match.Anchor(ctx, eligible, pred, e.workers, match.Hooks{
		OnProgress: hooks.OnProgress,
		OnGroup: func(m []*store.FileRecord) {
			g := Group{ID: len(groups) + 1, Files: m}
			groups = append(groups, g)
			if hooks.OnGroup != nil {
				hooks.OnGroup(g)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// Groups returns the cached grouping, computing and caching it on a miss
func (e *Engine) Groups(ctx context.Context) ([]Group, error) {
	if groups, ok := e.cache.Get(); ok {
		return groups, nil
	}

	start := time.Now()
	files, err := e.library.GetAllFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to load files: %w", err)
	}

	groups, err := e.ComputeGroups(ctx, files, Hooks{})
	if err != nil {
		return nil, err
	}

	e.cache.Put(groups)
	util.DebugLog("Computed %d duplicate groups over %d files in %v", len(groups), len(files), time.Since(start))
	return groups, nil
}

// Refresh invalidates the cache and recomputes
func (e *Engine) Refresh(ctx context.Context) ([]Group, error) {
	e.cache.Invalidate()
	return e.Groups(ctx)
}

// Invalidate drops the cached grouping
func (e *Engine) Invalidate() {
	e.cache.Invalidate()
}
