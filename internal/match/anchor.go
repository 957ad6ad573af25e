package match

import (
	"context"

	"github.com/franz/dupe-janitor/internal/store"
	"github.com/sourcegraph/conc/pool"
)

// PairFunc reports whether two files are duplicates. It must be safe for
// concurrent use.
type PairFunc func(a, b *store.FileRecord) bool

// Hooks observe an anchor clustering pass. Both are called from the
// goroutine running Anchor, never concurrently.
type Hooks struct {
	// OnProgress runs after each anchor with the number of files whose
	// group is settled and the number of comparisons made so far
	OnProgress func(filesProcessed, comparisons int)
	// OnGroup runs for each group of two or more as soon as it is complete
	OnGroup func(members []*store.FileRecord)
}

// minParallelCandidates is the candidate count below which an anchor's
// comparisons run inline
const minParallelCandidates = 64

// Anchor clusters files in input order. Each unassigned file becomes an
// anchor; every later unassigned file that matches the anchor joins its
// group. Candidates are compared with the anchor only, never with other
// members, so membership is not transitive. Only groups of two or more
// are returned. The context is checked before every comparison.
func Anchor(ctx context.Context, files []*store.FileRecord, match PairFunc, workers int, hooks Hooks) ([][]*store.FileRecord, error) {
	assigned := make([]bool, len(files))
	var groups [][]*store.FileRecord
	processed, comparisons := 0, 0

	for i, anchor := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if assigned[i] {
			continue
		}
		assigned[i] = true

		candidates := make([]int, 0, len(files)-i-1)
		for j := i + 1; j < len(files); j++ {
			if !assigned[j] {
				candidates = append(candidates, j)
			}
		}

		hits, err := compareAll(ctx, anchor, files, candidates, match, workers)
		if err != nil {
			return nil, err
		}

		group := []*store.FileRecord{anchor}
		for k, j := range candidates {
			if hits[k] {
				assigned[j] = true
				group = append(group, files[j])
			}
		}

		processed += len(group)
		comparisons += len(candidates)

		if len(group) >= 2 {
			groups = append(groups, group)
			if hooks.OnGroup != nil {
				hooks.OnGroup(group)
			}
		}
		if hooks.OnProgress != nil {
			hooks.OnProgress(processed, comparisons)
		}
	}

	return groups, nil
}

// compareAll evaluates the anchor against each candidate. Results land in
// an index-aligned slice so assembly order does not depend on scheduling.
func compareAll(ctx context.Context, anchor *store.FileRecord, files []*store.FileRecord, candidates []int, match PairFunc, workers int) ([]bool, error) {
	hits := make([]bool, len(candidates))

	if workers <= 1 || len(candidates) < minParallelCandidates {
		for k, j := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			hits[k] = match(anchor, files[j])
		}
		return hits, nil
	}

	chunk := (len(candidates) + workers - 1) / workers
	p := pool.New().WithMaxGoroutines(workers)
	for start := 0; start < len(candidates); start += chunk {
		end := min(start+chunk, len(candidates))
		p.Go(func() {
			for k := start; k < end; k++ {
				if ctx.Err() != nil {
					return
				}
				hits[k] = match(anchor, files[candidates[k]])
			}
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}
