package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franz/dupe-janitor/internal/meta"
	"github.com/franz/dupe-janitor/internal/report"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/schollz/progressbar/v3"
)

// AudioExtensions are the default supported audio file extensions
var AudioExtensions = []string{
	".mp3",
	".flac",
	".m4a",
	".aac",
	".ogg",
	".opus",
	".wav",
	".aiff",
	".aif",
	".wma",
	".ape",
	".wv",  // WavPack
	".mpc", // Musepack
}

// Scanner imports audio files from a directory tree into the catalogue
type Scanner struct {
	store       *store.Store
	extensions  map[string]bool
	concurrency int
	logger      *report.EventLogger
	readFile    func(ctx context.Context, path string) (*store.FileRecord, error)
}

// Config holds scanner configuration
type Config struct {
	Store          *store.Store
	AdditionalExts []string
	Concurrency    int
	Logger         *report.EventLogger
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	// Build extension map (case-insensitive)
	extMap := make(map[string]bool)
	for _, ext := range AudioExtensions {
		extMap[strings.ToLower(ext)] = true
	}
	for _, ext := range cfg.AdditionalExts {
		extMap[strings.ToLower(ext)] = true
	}

	return &Scanner{
		store:       cfg.Store,
		extensions:  extMap,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		readFile:    meta.ReadFile,
	}
}

// Result represents a scan result
type Result struct {
	FilesFound   int
	FilesNew     int
	FilesUpdated int
	Errors       []error
}

// Scan walks the source directory, reads tags and audio properties for
// every audio file and upserts them into the store
func (s *Scanner) Scan(ctx context.Context, sourcePath string) (*Result, error) {
	util.InfoLog("Starting scan of: %s", sourcePath)

	result := &Result{}
	var errMu sync.Mutex
	addErr := func(err error) {
		errMu.Lock()
		result.Errors = append(result.Errors, err)
		errMu.Unlock()
	}

	filePaths := make(chan string, 100)

	var filesFound atomic.Int64
	var filesProcessed atomic.Int64
	var filesNew atomic.Int64
	var filesUpdated atomic.Int64

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()

	var bar *progressbar.ProgressBar
	if util.ShowProgressBars() {
		// Indeterminate: the total is unknown while walking
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-progressCtx.Done():
				return
			case <-ticker.C:
				found := filesFound.Load()
				processed := filesProcessed.Load()
				if found == 0 {
					continue
				}
				if bar != nil {
					bar.Describe(fmt.Sprintf("Scanning | %d found | %d new | %d updated",
						found, filesNew.Load(), filesUpdated.Load()))
					bar.Set64(processed)
				} else {
					util.InfoLog("Progress: found %d audio files, processed %d (new: %d, updated: %d)",
						found, processed, filesNew.Load(), filesUpdated.Load())
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range filePaths {
				select {
				case <-ctx.Done():
					return
				default:
				}

				isNew, err := s.processFile(ctx, path)
				filesProcessed.Add(1)

				switch {
				case err != nil:
					util.ErrorLog("Failed to import %s: %v", path, err)
					s.logger.LogError(report.EventImport, path, err)
					addErr(err)
				case isNew:
					filesNew.Add(1)
				default:
					filesUpdated.Add(1)
				}
			}
		}()
	}

	walkErr := filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			addErr(fmt.Errorf("access error: %s: %w", path, err))
			return nil
		}

		if d.IsDir() || !s.isAudioFile(path) {
			return nil
		}

		filesFound.Add(1)
		select {
		case filePaths <- path:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	close(filePaths)
	wg.Wait()
	cancelProgress()

	if bar != nil {
		bar.Finish()
	}

	result.FilesFound = int(filesFound.Load())
	result.FilesNew = int(filesNew.Load())
	result.FilesUpdated = int(filesUpdated.Load())

	if walkErr != nil && walkErr != context.Canceled {
		return result, fmt.Errorf("walk error: %w", walkErr)
	}

	util.SuccessLog("Scan complete: %d files found, %d new, %d updated, %d errors",
		result.FilesFound, result.FilesNew, result.FilesUpdated, len(result.Errors))

	return result, nil
}

// processFile reads one file and upserts it.
// Returns (isNew, error) where isNew indicates if the file was newly catalogued.
func (s *Scanner) processFile(ctx context.Context, path string) (bool, error) {
	rec, err := s.readFile(ctx, path)
	if err != nil {
		return false, err
	}

	existing, err := s.store.GetFileByKey(rec.FileKey)
	if err != nil {
		return false, fmt.Errorf("failed to check existing file: %w", err)
	}

	if err := s.store.UpsertFile(rec); err != nil {
		return false, err
	}

	s.logger.LogImport(rec.ID, path, rec.SizeBytes)
	util.DebugLog("Imported: %s (id: %d)", path, rec.ID)

	return existing == nil, nil
}

// isAudioFile checks if a file has a supported audio extension
func (s *Scanner) isAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return s.extensions[ext]
}
