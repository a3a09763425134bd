package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/toki/internal/media"
	"github.com/franz/toki/internal/report"
	"github.com/franz/toki/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
)

// partSuffix marks copies still being written by a previous run
const partSuffix = ".part"

// Scanner discovers media files under an input root
type Scanner struct {
	fs       afero.Fs
	registry *media.Registry
	exclude  []string
	logger   *report.EventLogger
}

// Config holds scanner configuration
type Config struct {
	Fs       afero.Fs
	Registry *media.Registry // nil = built-in formats
	Exclude  []string        // directory trees never descended into
	Logger   *report.EventLogger
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	registry := cfg.Registry
	if registry == nil {
		registry = media.NewRegistry()
	}
	exclude := make([]string, 0, len(cfg.Exclude))
	for _, dir := range cfg.Exclude {
		if dir != "" {
			exclude = append(exclude, filepath.Clean(dir))
		}
	}
	return &Scanner{
		fs:       cfg.Fs,
		registry: registry,
		exclude:  exclude,
		logger:   cfg.Logger,
	}
}

// Result represents a scan result
type Result struct {
	// Records holds one record per regular file, sorted by path. Files with
	// unsupported extensions are already Skipped.
	Records     []*media.Record
	Supported   int
	Unsupported int
	Ignored     int // hidden entries, partial copies, non-regular files
	Errors      []error
}

// CheckRoot verifies that root exists and is a directory
func CheckRoot(fsys afero.Fs, root string) error {
	info, err := fsys.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: input root %s", util.ErrNotFound, root)
		}
		return fmt.Errorf("input root %s: %w", root, util.ClassifyIOError(err))
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: input root %s is not a directory", util.ErrNotFound, root)
	}
	return nil
}

// Scan walks root and returns a record for every file found. Unreadable
// entries are collected in Result.Errors and the walk continues.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	root = filepath.Clean(root)
	if err := CheckRoot(s.fs, root); err != nil {
		return nil, err
	}
	util.InfoLog("Starting scan of: %s", root)

	result := &Result{}

	var bar *progressbar.ProgressBar
	if util.ShowProgress() {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	walkErr := afero.Walk(s.fs, root, func(path string, info fs.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			result.Errors = append(result.Errors, fmt.Errorf("access error: %s: %w", path, err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		if info.IsDir() {
			if isHidden(path) || s.excluded(path) {
				util.DebugLog("Skipping directory: %s", path)
				return filepath.SkipDir
			}
			return nil
		}

		if isHidden(path) || strings.HasSuffix(path, partSuffix) || !info.Mode().IsRegular() {
			result.Ignored++
			return nil
		}

		r := media.NewRecord(path, info)
		if s.registry.Supported(r.Extension) {
			result.Supported++
			s.logger.LogDiscover(path, r.Size)
		} else {
			result.Unsupported++
			r.Skip(media.ReasonUnsupported)
			r.Err = fmt.Errorf("%w: %s", util.ErrUnsupported, r.Extension)
			s.logger.LogSkip(path, "", media.ReasonUnsupported)
			util.DebugLog("Unsupported: %s", path)
		}
		result.Records = append(result.Records, r)

		if bar != nil {
			bar.Add(1)
		}
		return nil
	})

	if bar != nil {
		bar.Finish()
	}

	sort.Slice(result.Records, func(i, j int) bool {
		return result.Records[i].SourcePath < result.Records[j].SourcePath
	})

	if walkErr != nil {
		return result, fmt.Errorf("walk error: %w", walkErr)
	}

	util.InfoLog("Scan complete: %d supported, %d unsupported, %d ignored, %d errors",
		result.Supported, result.Unsupported, result.Ignored, len(result.Errors))
	return result, nil
}

// Pending returns the records that still need processing
func (r *Result) Pending() []*media.Record {
	pending := make([]*media.Record, 0, r.Supported)
	for _, rec := range r.Records {
		if rec.Status == media.StatusPending {
			pending = append(pending, rec)
		}
	}
	return pending
}

func (s *Scanner) excluded(dir string) bool {
	for _, ex := range s.exclude {
		if util.IsWithin(dir, ex) {
			return true
		}
	}
	return false
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
