package resolve

import (
	"context"
	"fmt"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/report"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/samber/lo"
)

// Decision is the auto-resolution outcome for one group
type Decision struct {
	GroupID           int                 `json:"groupId"`
	Keep              *store.FileRecord   `json:"keep,omitempty"`
	Delete            []*store.FileRecord `json:"delete"`
	NeedsManualReview bool                `json:"needsManualReview"`
	Reason            string              `json:"reason"`
}

// ReclaimableBytes sums the sizes of the files marked for deletion
func (d Decision) ReclaimableBytes() int64 {
	return lo.SumBy(d.Delete, func(f *store.FileRecord) int64 { return f.SizeBytes })
}

// Failure records a deletion that did not happen
type Failure struct {
	FileID int64  `json:"fileId"`
	Path   string `json:"path"`
	Error  string `json:"error"`
}

// Outcome summarizes an executed resolution
type Outcome struct {
	Kept           []int64    `json:"kept"`
	Deleted        []int64    `json:"deleted"`
	ReviewRequired []int      `json:"reviewRequired"` // group ids left untouched
	Failed         []Failure  `json:"failed,omitempty"`
	Decisions      []Decision `json:"decisions"`
}

// Config holds resolver dependencies
type Config struct {
	Library store.Library
	Cache   cluster.Cache
	Logger  *report.EventLogger
}

// Planner picks one survivor per duplicate group and deletes the rest
type Planner struct {
	library store.Library
	cache   cluster.Cache
	logger  *report.EventLogger
}

// NewPlanner creates a planner
func NewPlanner(cfg *Config) *Planner {
	return &Planner{
		library: cfg.Library,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
	}
}

// Preview ranks every group without side effects
func (p *Planner) Preview(groups []cluster.Group) []Decision {
	decisions := make([]Decision, len(groups))
	for i, g := range groups {
		decisions[i] = decide(g, nil)
	}
	return decisions
}

// decide ranks one group. Excluded files are never put up for deletion and
// win the canonical-path tie-break.
func decide(g cluster.Group, excluded map[int64]bool) Decision {
	d := Decision{GroupID: g.ID, Delete: []*store.FileRecord{}}

	keep, reason := selectSurvivor(g.Files, excluded)
	d.Reason = reason
	if keep == nil {
		d.NeedsManualReview = true
		return d
	}

	d.Keep = keep
	d.Delete = lo.Filter(g.Files, func(f *store.FileRecord, _ int) bool {
		return f.ID != keep.ID && !excluded[f.ID]
	})
	return d
}

// Execute deletes every non-surviving, non-excluded file. Groups that need
// manual review are left untouched. The cache is invalidated before
// returning whenever any file was deleted.
func (p *Planner) Execute(ctx context.Context, groups []cluster.Group, exclude []int64) (*Outcome, error) {
	excluded := lo.SliceToMap(exclude, func(id int64) (int64, bool) { return id, true })
	out := &Outcome{Kept: []int64{}, Deleted: []int64{}, ReviewRequired: []int{}}

	defer func() {
		if len(out.Deleted) > 0 && p.cache != nil {
			p.cache.Invalidate()
		}
	}()

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		d := decide(g, excluded)
		out.Decisions = append(out.Decisions, d)

		if d.NeedsManualReview {
			out.ReviewRequired = append(out.ReviewRequired, g.ID)
			out.Kept = append(out.Kept, g.FileIDs()...)
			continue
		}

		deleteIDs := lo.Map(d.Delete, func(f *store.FileRecord, _ int) int64 { return f.ID })
		out.Kept = append(out.Kept, lo.Without(g.FileIDs(), deleteIDs...)...)

		removed := 0
		for _, f := range d.Delete {
			if err := p.delete(f, d.Reason); err != nil {
				out.Failed = append(out.Failed, Failure{FileID: f.ID, Path: f.Path, Error: err.Error()})
				out.Kept = append(out.Kept, f.ID)
				continue
			}
			out.Deleted = append(out.Deleted, f.ID)
			removed++
		}
		p.logger.LogResolve(g.ID, d.Keep.Path, d.Reason, removed)
	}

	util.InfoLog("Auto-resolution deleted %d files, %d groups need review, %d failures",
		len(out.Deleted), len(out.ReviewRequired), len(out.Failed))
	return out, nil
}

func (p *Planner) delete(f *store.FileRecord, reason string) error {
	return deleteFile(p.library, p.logger, f, reason)
}

// deleteFile removes one file through the library and audits the attempt
func deleteFile(lib store.Library, logger *report.EventLogger, f *store.FileRecord, reason string) error {
	ok, err := lib.DeleteFile(f.ID)
	if err == nil && !ok {
		err = fmt.Errorf("file %d: %w", f.ID, util.ErrNotFound)
	}
	logger.LogDelete(f.ID, f.Path, reason, err)
	if err != nil {
		util.WarnLog("Failed to delete %s: %v", f.Path, err)
	}
	return err
}
