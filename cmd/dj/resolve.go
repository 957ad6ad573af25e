package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/franz/dupe-janitor/internal/resolve"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Pick a survivor for every duplicate group and delete the rest",
	Long: `Rank the members of every duplicate group and keep the best one.

The survivor has the highest bitrate; ties go to the file with more tags,
then to a file excluded from deletion, then to the one with the deepest
path. Groups still tied after that are left for manual review.

Without --execute only the plan is printed.`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().Bool("execute", false, "delete the non-surviving files")
	resolveCmd.Flags().Int64Slice("exclude", nil, "file ids that must never be deleted")
}

func runResolve(cmd *cobra.Command, args []string) error {
	execute, _ := cmd.Flags().GetBool("execute")
	exclude, _ := cmd.Flags().GetInt64Slice("exclude")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	groups, err := a.engine.Groups(ctx)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		util.SuccessLog("No duplicate groups found")
		return nil
	}

	planner := a.planner()
	if !execute {
		decisions := planner.Preview(groups)
		printDecisions(decisions)
		review := lo.CountBy(decisions, func(d resolve.Decision) bool { return d.NeedsManualReview })
		reclaim := lo.SumBy(decisions, func(d resolve.Decision) int64 { return d.ReclaimableBytes() })
		util.InfoLog("")
		util.InfoLog("%d groups, %d need manual review, %s reclaimable", len(decisions), review, humanize.IBytes(uint64(reclaim)))
		util.InfoLog("Run with --execute to delete the duplicates")
		return nil
	}

	out, err := planner.Execute(ctx, groups, exclude)
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}

func printDecisions(decisions []resolve.Decision) {
	if util.IsQuiet() {
		return
	}

	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		keep := "-"
		if d.Keep != nil {
			keep = shortenPath(d.Keep.Path, pathWidth())
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", d.GroupID),
			keep,
			fmt.Sprintf("%d", len(d.Delete)),
			humanize.IBytes(uint64(d.ReclaimableBytes())),
			d.Reason,
		})
	}
	fmt.Println(renderTable(
		[]string{"Group", "Keep", "Delete", "Reclaim", "Reason"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight},
	))
}

func printOutcome(out *resolve.Outcome) {
	util.SuccessLog("Deleted %d files, kept %d", len(out.Deleted), len(out.Kept))
	if len(out.ReviewRequired) > 0 {
		util.WarnLog("%d groups need manual review: %v", len(out.ReviewRequired), out.ReviewRequired)
	}
	if len(out.Failed) > 0 {
		util.WarnLog("%d deletions failed:", len(out.Failed))
		for _, f := range out.Failed {
			util.WarnLog("  [%d] %s: %s", f.FileID, f.Path, f.Error)
		}
	}
}
