package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure dj can operate correctly.

This command checks:
- Optional tools (ffprobe for audio properties, fpcalc for fingerprints)
- SQLite version
- Database accessibility and integrity
- Matching configuration
- Library directory permissions (deleting duplicates needs write access)
- Event log directory

Use this command to troubleshoot issues before running dj operations.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().String("library", "", "music directory to check (optional)")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== dj doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{
		checkFFprobe(),
		checkFpcalc(viper.GetString("fingerprint.fpcalc")),
		checkSQLite(),
		checkDatabase(viper.GetString("db")),
		checkMatchConfig(),
	}

	if lib, _ := cmd.Flags().GetString("library"); lib != "" {
		results = append(results, checkLibraryDirectory(lib))
	}
	if dir := viper.GetString("events_dir"); dir != "" {
		results = append(results, checkEventsDirectory(dir))
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before running dj.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed!")
	}

	return nil
}

// toolVersion runs "<binary> -version" and returns the field at index
func toolVersion(binary string, index int) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, binary, "-version").CombinedOutput()
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(output), "\n")
	version := "unknown"
	if len(lines) > 0 {
		parts := strings.Fields(lines[0])
		if len(parts) > index {
			version = parts[index]
		}
	}
	return version, nil
}

// checkFFprobe verifies ffprobe is available (optional)
func checkFFprobe() checkResult {
	version, err := toolVersion("ffprobe", 2)
	if err != nil {
		return checkResult{
			name:    "ffprobe (optional)",
			warning: true,
			message: "not found (durations and bitrates come from tags only)",
		}
	}
	return checkResult{
		name:    "ffprobe (optional)",
		message: fmt.Sprintf("version %s", version),
	}
}

// checkFpcalc verifies fpcalc is available (optional)
func checkFpcalc(binary string) checkResult {
	if binary == "" {
		binary = "fpcalc"
	}
	version, err := toolVersion(binary, 1)
	if err != nil {
		return checkResult{
			name:    "fpcalc (optional)",
			warning: true,
			message: "not found (required only for acoustic fingerprinting)",
		}
	}
	return checkResult{
		name:    "fpcalc (optional)",
		message: fmt.Sprintf("version %s", version),
	}
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first scan)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	total, fingerprinted, _ := db.CountFiles()

	return checkResult{
		name: "Database",
		message: fmt.Sprintf("%s (%s, %d files, %d fingerprinted)",
			dbPath, humanize.IBytes(uint64(info.Size())), total, fingerprinted),
	}
}

// checkMatchConfig validates the match.* and fingerprint.* settings
func checkMatchConfig() checkResult {
	cfg, err := loadMatchConfig(viper.GetViper())
	if err == nil {
		_, err = loadFingerprintThreshold(viper.GetViper())
	}
	if err != nil {
		return checkResult{
			name:    "Matching config",
			error:   true,
			message: err.Error(),
		}
	}
	return checkResult{
		name: "Matching config",
		message: fmt.Sprintf("titles >= %.2f, %d fields required, duration within %ds/%.0f%%",
			cfg.TitleThreshold, cfg.MinFieldsToMatch, cfg.DurationToleranceSec, cfg.DurationTolerancePct),
	}
}

// checkLibraryDirectory verifies the music directory is readable and
// writable, since resolving duplicates deletes files from it
func checkLibraryDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    "Library directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Library directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return checkResult{
			name:    "Library directory",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	if err := probeWritable(path); err != nil {
		return checkResult{
			name:    "Library directory",
			warning: true,
			message: fmt.Sprintf("%s is read-only, duplicates cannot be deleted: %v", path, err),
		}
	}

	return checkResult{
		name:    "Library directory",
		message: fmt.Sprintf("%s (%d entries, writable)", path, len(entries)),
	}
}

// checkEventsDirectory verifies the event log directory is writable
func checkEventsDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Event log directory",
				message: fmt.Sprintf("%s (will be created)", path),
			}
		}
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	if err := probeWritable(path); err != nil {
		return checkResult{
			name:    "Event log directory",
			warning: true,
			message: fmt.Sprintf("cannot write to %s, audit logging disabled: %v", path, err),
		}
	}

	return checkResult{
		name:    "Event log directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

func probeWritable(dir string) error {
	testFile := filepath.Join(dir, ".dj_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(testFile)
}
