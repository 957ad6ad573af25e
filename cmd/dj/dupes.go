package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/match"
	"github.com/franz/dupe-janitor/internal/report"
	"github.com/franz/dupe-janitor/internal/session"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Find duplicate groups in the library",
	Long: `Run a duplicate scan over the whole library and list the groups found.

Acoustic fingerprints are compared when more than half of the library is
fingerprinted; otherwise files are matched on their tags, duration and
bitrate. Results are cached briefly so follow-up commands reuse them.
Press Ctrl-C to cancel a running scan.`,
	RunE: runDupes,
}

func init() {
	rootCmd.AddCommand(dupesCmd)

	dupesCmd.Flags().Bool("json", false, "print groups as JSON")
	dupesCmd.Flags().String("report", "", "write a Markdown duplicate report to this path")
	dupesCmd.Flags().Int("limit", 50, "maximum number of groups in the Markdown report (0 = all)")
}

func runDupes(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	reportPath, _ := cmd.Flags().GetString("report")
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	final, err := runSession(ctx, a)
	if err != nil {
		return err
	}
	switch final.Stage {
	case session.StageCancelled:
		util.WarnLog("Scan cancelled at %d/%d files", final.FilesProcessed, final.TotalFiles)
		return nil
	case session.StageError:
		return fmt.Errorf("scan failed: %s", final.Error)
	}

	// The session stored its result in the cache
	groups, err := a.engine.Groups(context.Background())
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	}

	util.SuccessLog("Found %d duplicate groups among %d files (%s matching)", len(groups), final.TotalFiles, final.Strategy)
	if len(groups) > 0 && !util.IsQuiet() {
		fmt.Println(renderTable(
			[]string{"Group", "ID", "Track", "Bitrate", "Size", "Path"},
			groupRows(groups),
			[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight},
		))
		util.InfoLog("Next step: dj resolve (preview) or dj dirs")
	}

	if reportPath != "" {
		if err := writeDupesReport(a, groups, reportPath, limit); err != nil {
			return err
		}
		util.SuccessLog("Report written to %s", reportPath)
	}
	return nil
}

// runSession runs one scan session, rendering progress until it is
// terminal. Cancelling ctx cancels the session.
func runSession(ctx context.Context, a *app) (session.Snapshot, error) {
	events := session.NewChannelSink(64)
	mgr := session.NewManager(&session.Config{
		Engine: a.engine,
		Sink:   session.MultiSink{events, a.logger},
	})
	defer mgr.Close()

	started, err := mgr.Start()
	if err != nil {
		return session.Snapshot{}, err
	}
	id := started.SessionID
	stream, unsubscribe := events.Subscribe(id)
	defer unsubscribe()

	done := make(chan session.Snapshot, 1)
	go func() {
		snap, _ := mgr.Wait(context.Background(), id)
		done <- snap
	}()

	var bar *progressbar.ProgressBar
	defer func() {
		if bar != nil {
			bar.Finish()
		}
	}()

	cancelRequested := false
	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				stream = nil
				continue
			}
			if ev.Progress != nil {
				bar = renderProgress(bar, *ev.Progress)
			}
		case <-ctx.Done():
			if !cancelRequested {
				cancelRequested = true
				util.InfoLog("Cancelling scan...")
				mgr.Cancel(id)
			}
			ctx = context.Background()
		case snap := <-done:
			return snap, nil
		}
	}
}

func renderProgress(bar *progressbar.ProgressBar, snap session.Snapshot) *progressbar.ProgressBar {
	if snap.Stage != session.StageScanning || snap.TotalFiles == 0 {
		return bar
	}
	if bar == nil {
		if !util.ShowProgressBars() {
			util.InfoLog("Progress: %d/%d files, %d groups", snap.FilesProcessed, snap.TotalFiles, snap.GroupsFound)
			return nil
		}
		bar = progressbar.NewOptions(snap.TotalFiles,
			progressbar.OptionSetDescription(fmt.Sprintf("Matching (%s)", snap.Strategy)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	bar.Describe(fmt.Sprintf("Matching (%s) | %d groups", snap.Strategy, snap.GroupsFound))
	bar.Set(snap.FilesProcessed)
	return bar
}

func writeDupesReport(a *app, groups []cluster.Group, path string, limit int) error {
	files, err := a.db.GetAllFiles()
	if err != nil {
		return err
	}
	fingerprinted := lo.CountBy(files, match.HasUsableFingerprint)

	decisions := make(map[int]report.Choice, len(groups))
	for _, d := range a.planner().Preview(groups) {
		decisions[d.GroupID] = report.Choice{Keep: d.Keep, Reason: d.Reason}
	}
	choose := func(g cluster.Group) report.Choice { return decisions[g.ID] }

	summary := report.GenerateSummaryReport(groups, len(files), fingerprinted, choose, a.logger.Path(), limit)
	summary.DatabasePath = viper.GetString("db")
	return report.WriteMarkdownReport(summary, path)
}
