package resolve

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/report"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/samber/lo"
)

// FilePair is two duplicate files living in different directories
type FilePair struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

// DirectoryConflict is a pair of directories holding copies of the same
// recordings. DirectoryA sorts before DirectoryB.
type DirectoryConflict struct {
	DirectoryA string     `json:"directoryA"`
	DirectoryB string     `json:"directoryB"`
	Count      int        `json:"count"`
	Pairs      []FilePair `json:"pairs"`
}

// ListConflicts aggregates every cross-directory member pair of every group
// into directory pairs, most conflicted first
func ListConflicts(groups []cluster.Group) []DirectoryConflict {
	byPair := make(map[[2]string]*DirectoryConflict)

	for _, g := range groups {
		for i := 0; i < len(g.Files); i++ {
			for j := i + 1; j < len(g.Files); j++ {
				a, b := g.Files[i], g.Files[j]
				dirA, dirB := filepath.Dir(a.Path), filepath.Dir(b.Path)
				if dirA == dirB {
					continue
				}
				if dirB < dirA {
					dirA, dirB = dirB, dirA
					a, b = b, a
				}

				key := [2]string{dirA, dirB}
				c, ok := byPair[key]
				if !ok {
					c = &DirectoryConflict{DirectoryA: dirA, DirectoryB: dirB}
					byPair[key] = c
				}
				c.Count++
				c.Pairs = append(c.Pairs, FilePair{A: a.ID, B: b.ID})
			}
		}
	}

	conflicts := lo.Map(lo.Values(byPair), func(c *DirectoryConflict, _ int) DirectoryConflict { return *c })
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Count != conflicts[j].Count {
			return conflicts[i].Count > conflicts[j].Count
		}
		if conflicts[i].DirectoryA != conflicts[j].DirectoryA {
			return conflicts[i].DirectoryA < conflicts[j].DirectoryA
		}
		return conflicts[i].DirectoryB < conflicts[j].DirectoryB
	})
	return conflicts
}

// GroupSource supplies the current duplicate groups
type GroupSource interface {
	Groups(ctx context.Context) ([]cluster.Group, error)
}

// DirectoryResolver bulk-deletes one side of a directory conflict
type DirectoryResolver struct {
	source  GroupSource
	library store.Library
	cache   cluster.Cache
	logger  *report.EventLogger
}

// NewDirectoryResolver creates a resolver reading groups from source
func NewDirectoryResolver(source GroupSource, cfg *Config) *DirectoryResolver {
	return &DirectoryResolver{
		source:  source,
		library: cfg.Library,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
	}
}

// Conflicts lists directory conflicts over the current groups
func (r *DirectoryResolver) Conflicts(ctx context.Context) ([]DirectoryConflict, error) {
	groups, err := r.source.Groups(ctx)
	if err != nil {
		return nil, err
	}
	return ListConflicts(groups), nil
}

// PreviewResolution returns the files Resolve would delete
func (r *DirectoryResolver) PreviewResolution(ctx context.Context, keepDir, deleteDir string) ([]*store.FileRecord, error) {
	if err := checkDirectories(keepDir, deleteDir); err != nil {
		return nil, err
	}
	groups, err := r.source.Groups(ctx)
	if err != nil {
		return nil, err
	}
	return planDirectoryDeletes(groups, deleteDir), nil
}

// Resolve deletes every group member under deleteDir as long as the group
// keeps at least one member elsewhere. The last copy of a recording is
// never deleted.
func (r *DirectoryResolver) Resolve(ctx context.Context, keepDir, deleteDir string) (*Outcome, error) {
	targets, err := r.PreviewResolution(ctx, keepDir, deleteDir)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Kept: []int64{}, Deleted: []int64{}, ReviewRequired: []int{}}
	defer func() {
		if len(out.Deleted) > 0 && r.cache != nil {
			r.cache.Invalidate()
		}
	}()

	reason := fmt.Sprintf("duplicate of a file outside %s", deleteDir)
	for _, f := range targets {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := deleteFile(r.library, r.logger, f, reason); err != nil {
			out.Failed = append(out.Failed, Failure{FileID: f.ID, Path: f.Path, Error: err.Error()})
			out.Kept = append(out.Kept, f.ID)
			continue
		}
		out.Deleted = append(out.Deleted, f.ID)
	}

	util.InfoLog("Resolved %s against %s: %d deleted, %d failed", deleteDir, keepDir, len(out.Deleted), len(out.Failed))
	return out, nil
}

// planDirectoryDeletes picks, per group, the members under deleteDir when
// at least one member lives outside it
func planDirectoryDeletes(groups []cluster.Group, deleteDir string) []*store.FileRecord {
	var targets []*store.FileRecord
	for _, g := range groups {
		doomed, survivors := lo.FilterReject(g.Files, func(f *store.FileRecord, _ int) bool {
			return isUnder(f.Path, deleteDir)
		})
		if len(survivors) == 0 {
			continue
		}
		targets = append(targets, doomed...)
	}
	return lo.UniqBy(targets, func(f *store.FileRecord) int64 { return f.ID })
}

func checkDirectories(keepDir, deleteDir string) error {
	if strings.TrimSpace(keepDir) == "" || strings.TrimSpace(deleteDir) == "" {
		return fmt.Errorf("%w: both directories are required", util.ErrInvalidInput)
	}
	if isUnder(keepDir, deleteDir) || isUnder(deleteDir, keepDir) {
		return fmt.Errorf("%w: %s and %s overlap", util.ErrInvalidInput, keepDir, deleteDir)
	}
	return nil
}

// isUnder reports whether path is dir or lies below it
func isUnder(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
