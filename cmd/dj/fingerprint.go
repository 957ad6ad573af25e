package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/franz/dupe-janitor/internal/fingerprint"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Compute acoustic fingerprints for files that lack one",
	Long: `Run chromaprint's fpcalc over every library file without a fingerprint.

Once more than half of the library is fingerprinted, duplicate detection
switches from metadata matching to acoustic matching. Press Ctrl-C to stop;
files already being processed are finished and stored.`,
	RunE: runFingerprint,
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().Int("workers", fingerprint.DefaultWorkers, "number of fpcalc processes run in parallel")
	fingerprintCmd.Flags().Int("length", fingerprint.DefaultLengthSec, "seconds of audio analysed per file")
	fingerprintCmd.Flags().String("fpcalc", "fpcalc", "path to the fpcalc binary")
	viper.BindPFlag("fingerprint.workers", fingerprintCmd.Flags().Lookup("workers"))
	viper.BindPFlag("fingerprint.length_sec", fingerprintCmd.Flags().Lookup("length"))
	viper.BindPFlag("fingerprint.fpcalc", fingerprintCmd.Flags().Lookup("fpcalc"))
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	gen := fingerprint.NewFpcalc()
	if bin := viper.GetString("fingerprint.fpcalc"); bin != "" {
		gen.Binary = bin
	}
	if err := gen.CheckAvailable(); err != nil {
		return fmt.Errorf("%w (install chromaprint: https://acoustid.org/chromaprint)", err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batch := fingerprint.NewBatch(&fingerprint.Config{
		Library:   a.db,
		Generator: gen,
		Cache:     a.cache,
		Logger:    a.logger,
		Workers:   viper.GetInt("fingerprint.workers"),
		LengthSec: viper.GetInt("fingerprint.length_sec"),
	})

	var bar *progressbar.ProgressBar
	onProgress := func(done, total int) {
		if bar == nil && util.ShowProgressBars() {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Fingerprinting"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("files"),
				progressbar.OptionThrottle(200*time.Millisecond),
				progressbar.OptionClearOnFinish(),
			)
		}
		if bar != nil {
			bar.Set(done)
		} else if done%50 == 0 || done == total {
			util.InfoLog("Progress: %d/%d files", done, total)
		}
	}

	result, err := batch.Run(ctx, onProgress)
	if bar != nil {
		bar.Finish()
	}
	if result == nil {
		return err
	}

	if result.Cancelled {
		util.WarnLog("Fingerprinting interrupted after %v", result.Duration.Round(time.Millisecond))
	} else {
		util.SuccessLog("Fingerprinting complete in %v", result.Duration.Round(time.Millisecond))
	}
	util.InfoLog("  Pending: %d", result.Total)
	util.InfoLog("  Fingerprinted: %d", result.Succeeded)
	if result.Skipped > 0 {
		util.InfoLog("  Not started: %d", result.Skipped)
	}
	if result.Failed > 0 {
		util.WarnLog("  Failed: %d", result.Failed)
		printFailures(batch.Failures())
	}

	if result.Cancelled {
		return nil
	}
	return err
}

func printFailures(log *fingerprint.FailureLog) {
	failures := log.List()
	if len(failures) == 0 || util.IsQuiet() {
		return
	}

	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []string{
			fmt.Sprintf("%d", f.FileID),
			shortenPath(f.Path, pathWidth()),
			f.Reason,
		})
	}
	fmt.Println(renderTable([]string{"ID", "Path", "Reason"}, rows, []columnAlignment{alignRight}))
	if dropped := log.Total() - len(failures); dropped > 0 {
		util.InfoLog("  (%d older failures not shown)", dropped)
	}
}
