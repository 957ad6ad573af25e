package main

import (
	"fmt"
	"os"
	"time"

	"github.com/franz/dupe-janitor/internal/meta"
	"github.com/franz/dupe-janitor/internal/scan"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var scanCmd = &cobra.Command{
	Use:   "scan <directory>",
	Short: "Import audio files and their metadata into the library",
	Long: `Walk a directory for audio files and catalogue them in the library database.

Tags are read with the built-in tag reader; ffprobe fills in duration,
bitrate and sample rate when it is installed. Re-scanning a directory
updates files whose size or modification time changed and keeps stored
fingerprints.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Int("concurrency", 8, "number of files read in parallel")
	scanCmd.Flags().StringSlice("ext", nil, "additional file extensions to treat as audio (e.g. .dsf)")
	viper.BindPFlag("scan.concurrency", scanCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("scan.extensions", scanCmd.Flags().Lookup("ext"))
}

func runScan(cmd *cobra.Command, args []string) error {
	source := args[0]
	if info, err := os.Stat(source); err != nil {
		return fmt.Errorf("cannot access %s: %w", source, err)
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", source)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	concurrency := viper.GetInt("scan.concurrency")
	if concurrency <= 0 {
		concurrency = 8
	}

	if !meta.CheckFFprobeAvailable() {
		util.WarnLog("ffprobe not found in PATH - using tag library only")
		util.WarnLog("Install ffmpeg for durations and bitrates: https://ffmpeg.org/")
	}

	util.InfoLog("Scanning %s (concurrency %d)", source, concurrency)

	scanner := scan.New(&scan.Config{
		Store:          a.db,
		AdditionalExts: viper.GetStringSlice("scan.extensions"),
		Concurrency:    concurrency,
		Logger:         a.logger,
	})

	start := time.Now()
	result, err := scanner.Scan(cmd.Context(), source)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	util.SuccessLog("Scan complete in %v", time.Since(start).Round(time.Millisecond))
	util.InfoLog("  Files found: %d", result.FilesFound)
	util.InfoLog("  New: %d", result.FilesNew)
	util.InfoLog("  Updated: %d", result.FilesUpdated)
	if len(result.Errors) > 0 {
		util.WarnLog("  Errors: %d", len(result.Errors))
		if util.IsVerbose() {
			for _, e := range result.Errors {
				util.WarnLog("    %v", e)
			}
		} else {
			util.InfoLog("  Re-run with --verbose to list them")
		}
	}

	total, fingerprinted, err := a.db.CountFiles()
	if err != nil {
		return err
	}
	util.InfoLog("")
	util.InfoLog("Library: %d files, %d fingerprinted", total, fingerprinted)
	if fingerprinted*2 <= total {
		util.InfoLog("Next step: dj fingerprint (or dj dupes to match on metadata)")
	} else {
		util.InfoLog("Next step: dj dupes")
	}

	return nil
}
