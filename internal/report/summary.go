package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/store"
)

// SummaryReport describes the duplicate groups of a library
type SummaryReport struct {
	GeneratedAt time.Time

	// Library statistics
	TotalFiles    int
	Fingerprinted int
	Strategy      cluster.Strategy

	// Group statistics
	GroupCount       int
	DuplicateFiles   int // members that would be removed
	ManualReview     int
	ReclaimableBytes int64

	// Details
	DuplicateSets []DuplicateSet
	TopErrors     []ErrorSummary

	// Metadata
	DatabasePath string
	EventLogPath string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// DuplicateSet represents one group of duplicate files
type DuplicateSet struct {
	GroupID      int
	Hint         string
	Keep         *DuplicateFile // nil when the group needs manual review
	Others       []DuplicateFile
	Reason       string
	ManualReview bool
}

// DuplicateFile represents a file in a duplicate set
type DuplicateFile struct {
	ID          int64
	Path        string
	Format      string
	BitrateKbps int
	SampleRate  int
	DurationSec int
	SizeBytes   int64
}

// Choice is the survivor picked for a group; a nil Keep means manual review
type Choice struct {
	Keep   *store.FileRecord
	Reason string
}

// ChooseFunc picks the survivor of a group
type ChooseFunc func(g cluster.Group) Choice

// GenerateSummaryReport builds a report over the given groups. choose may be
// nil, in which case every group is listed without a survivor.
func GenerateSummaryReport(groups []cluster.Group, totalFiles, fingerprinted int, choose ChooseFunc, eventLogPath string, limit int) *SummaryReport {
	report := &SummaryReport{
		GeneratedAt:   time.Now(),
		TotalFiles:    totalFiles,
		Fingerprinted: fingerprinted,
		Strategy:      cluster.StrategyMetadata,
		GroupCount:    len(groups),
		EventLogPath:  eventLogPath,
		DuplicateSets: make([]DuplicateSet, 0, len(groups)),
		TopErrors:     make([]ErrorSummary, 0),
	}

	if 2*fingerprinted > totalFiles {
		report.Strategy = cluster.StrategyFingerprint
	}

	for _, g := range groups {
		set := DuplicateSet{GroupID: g.ID, Hint: groupHint(g)}

		var choice Choice
		if choose != nil {
			choice = choose(g)
		}
		set.Reason = choice.Reason
		set.ManualReview = choice.Keep == nil

		for _, f := range g.Files {
			df := toDuplicateFile(f)
			if choice.Keep != nil && f.ID == choice.Keep.ID {
				set.Keep = &df
				continue
			}
			set.Others = append(set.Others, df)
			if choice.Keep != nil {
				report.DuplicateFiles++
				report.ReclaimableBytes += f.SizeBytes
			}
		}
		if set.ManualReview {
			report.ManualReview++
		}
		report.DuplicateSets = append(report.DuplicateSets, set)
	}

	// Largest groups first
	sort.SliceStable(report.DuplicateSets, func(i, j int) bool {
		return memberCount(report.DuplicateSets[i]) > memberCount(report.DuplicateSets[j])
	})
	if limit > 0 && len(report.DuplicateSets) > limit {
		report.DuplicateSets = report.DuplicateSets[:limit]
	}

	if eventLogPath != "" {
		report.TopErrors = gatherTopErrors(eventLogPath, 10)
	}

	return report
}

func memberCount(s DuplicateSet) int {
	n := len(s.Others)
	if s.Keep != nil {
		n++
	}
	return n
}

func toDuplicateFile(f *store.FileRecord) DuplicateFile {
	return DuplicateFile{
		ID:          f.ID,
		Path:        f.Path,
		Format:      f.Format,
		BitrateKbps: f.BitrateKbps,
		SampleRate:  f.SampleRate,
		DurationSec: f.DurationSec,
		SizeBytes:   f.SizeBytes,
	}
}

// groupHint names a group after the first member carrying tags
func groupHint(g cluster.Group) string {
	for _, f := range g.Files {
		if f.Title == "" {
			continue
		}
		if f.Artist != "" {
			return f.Artist + " - " + f.Title
		}
		return f.Title
	}
	if len(g.Files) > 0 {
		return filepath.Base(g.Files[0].Path)
	}
	return ""
}

// gatherTopErrors counts error messages recorded in a JSONL event log
func gatherTopErrors(eventLogPath string, limit int) []ErrorSummary {
	f, err := os.Open(eventLogPath)
	if err != nil {
		return []ErrorSummary{}
	}
	defer f.Close()

	errorCounts := make(map[string]int)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if ev.Error != "" {
			errorCounts[ev.Error]++
		}
	}

	errors := make([]ErrorSummary, 0, len(errorCounts))
	for msg, count := range errorCounts {
		errors = append(errors, ErrorSummary{Error: msg, Count: count})
	}

	// Sort by count (descending), then message for stable output
	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if len(errors) > limit {
		errors = errors[:limit]
	}
	return errors
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	// Header
	md.WriteString("# Dupe Janitor - Duplicate Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Overview
	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Library Files | %d |\n", report.TotalFiles))
	md.WriteString(fmt.Sprintf("| Fingerprinted | %d |\n", report.Fingerprinted))
	md.WriteString(fmt.Sprintf("| Strategy | %s |\n", report.Strategy))
	md.WriteString(fmt.Sprintf("| Duplicate Groups | %d |\n", report.GroupCount))
	md.WriteString(fmt.Sprintf("| Removable Copies | %d |\n", report.DuplicateFiles))
	md.WriteString(fmt.Sprintf("| Reclaimable Space | %s |\n", humanize.IBytes(uint64(report.ReclaimableBytes))))
	if report.ManualReview > 0 {
		md.WriteString(fmt.Sprintf("| Needs Manual Review | %d |\n", report.ManualReview))
	}
	md.WriteString("\n")

	// Duplicate Sets
	if len(report.DuplicateSets) > 0 {
		md.WriteString(fmt.Sprintf("## 🔍 Duplicate Groups (%d shown)\n\n", len(report.DuplicateSets)))
		md.WriteString("*Largest groups first*\n\n")

		for i, set := range report.DuplicateSets {
			hint := set.Hint
			if hint == "" {
				hint = fmt.Sprintf("Group %d", set.GroupID)
			}
			md.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, hint))
			md.WriteString(fmt.Sprintf("**Copies:** %d\n\n", memberCount(set)))

			if set.Keep != nil {
				md.WriteString(fmt.Sprintf("**✅ Keep** (%s):\n", set.Reason))
				writeFileDetails(&md, *set.Keep)
				md.WriteString("\n")
			} else {
				md.WriteString("**⚠️ Manual review required**")
				if set.Reason != "" {
					md.WriteString(fmt.Sprintf(" (%s)", set.Reason))
				}
				md.WriteString("\n\n")
			}

			if len(set.Others) > 0 {
				if set.Keep != nil {
					md.WriteString("**❌ Duplicates (removable):**\n\n")
				} else {
					md.WriteString("**Members:**\n\n")
				}
				for j, f := range set.Others {
					md.WriteString(fmt.Sprintf("%d. %s", j+1, formatLabel(f.Format)))
					if f.BitrateKbps > 0 {
						md.WriteString(fmt.Sprintf(" | %d kbps", f.BitrateKbps))
					}
					md.WriteString(fmt.Sprintf(" | %s\n", humanize.IBytes(uint64(f.SizeBytes))))
					md.WriteString(fmt.Sprintf("   - `%s`\n", truncatePath(f.Path, 80)))
				}
				md.WriteString("\n")
			}
		}
	}

	// Errors
	if len(report.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, err.Error))
		}
		md.WriteString("\n")
	}

	// Footer
	md.WriteString("---\n\n")
	md.WriteString("*Generated by [dj](https://github.com/franz/dupe-janitor) - Dupe Janitor*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func writeFileDetails(md *strings.Builder, f DuplicateFile) {
	md.WriteString(fmt.Sprintf("- **Format:** %s\n", formatLabel(f.Format)))
	if f.BitrateKbps > 0 {
		md.WriteString(fmt.Sprintf("- **Bitrate:** %d kbps\n", f.BitrateKbps))
	}
	if f.SampleRate > 0 {
		md.WriteString(fmt.Sprintf("- **Sample Rate:** %d Hz\n", f.SampleRate))
	}
	if f.DurationSec > 0 {
		md.WriteString(fmt.Sprintf("- **Duration:** %s\n", (time.Duration(f.DurationSec) * time.Second).String()))
	}
	md.WriteString(fmt.Sprintf("- **Size:** %s\n", humanize.IBytes(uint64(f.SizeBytes))))
	md.WriteString(fmt.Sprintf("- **Path:** `%s`\n", truncatePath(f.Path, 80)))
}

func formatLabel(format string) string {
	if format == "" {
		return "unknown"
	}
	return format
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
