package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/toki/internal/execute"
	"github.com/franz/toki/internal/media"
	"github.com/franz/toki/internal/meta"
	"github.com/franz/toki/internal/plan"
	"github.com/franz/toki/internal/report"
	"github.com/franz/toki/internal/scan"
	"github.com/franz/toki/internal/store"
	"github.com/franz/toki/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"
	"github.com/sourcegraph/conc/stream"
	"github.com/spf13/afero"
)

// journalBatchSize bounds how many transfer rows are buffered before a flush
const journalBatchSize = 500

// Config holds scheduler configuration
type Config struct {
	Fs         afero.Fs
	Mode       plan.Mode
	SourceRoot string
	DestRoot   string // organize only
	Copy       bool   // organize only
	Rename     bool   // organize only: canonical names
	DryRun     bool

	Workers    int // 0 = util.DefaultWorkers()
	HashAlgo   meta.Algorithm
	Verify     execute.VerifyMode
	BufferSize int
	Retry      *util.RetryConfig
	Registry   *media.Registry
	FFprobe    bool

	// CaseSensitive overrides filesystem detection
	CaseSensitive *bool

	Journal *store.Store        // optional
	Logger  *report.EventLogger // optional
}

// Scheduler runs one batch through extraction, planning and transfer
type Scheduler struct {
	cfg       Config
	extractor *meta.Extractor
	hasher    *meta.Hasher
	executor  *execute.Executor
	runID     string
}

// New validates cfg and wires the pipeline stages
func New(cfg *Config) (*Scheduler, error) {
	c := *cfg
	if c.Fs == nil {
		return nil, fmt.Errorf("%w: scheduler needs a filesystem", util.ErrInvalidConfig)
	}
	if c.SourceRoot == "" {
		return nil, fmt.Errorf("%w: no input root", util.ErrInvalidConfig)
	}
	switch c.Mode {
	case plan.ModeRename:
		c.DestRoot = ""
	case plan.ModeOrganize:
		if c.DestRoot == "" {
			return nil, fmt.Errorf("%w: organize requires a destination root", util.ErrInvalidConfig)
		}
		c.DestRoot = filepath.Clean(c.DestRoot)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", util.ErrInvalidConfig, c.Mode)
	}
	c.SourceRoot = filepath.Clean(c.SourceRoot)
	if c.Workers <= 0 {
		c.Workers = util.DefaultWorkers()
	}
	if c.Registry == nil {
		c.Registry = media.NewRegistry()
	}
	if c.Retry == nil {
		c.Retry = util.NoRetryConfig()
	}

	hasher := meta.NewHasher(c.Fs, c.HashAlgo, c.BufferSize, c.Retry)

	var strategy execute.Strategy = execute.Simulate{}
	if !c.DryRun {
		apply, err := execute.NewApply(&execute.ApplyConfig{
			Fs:          c.Fs,
			Verify:      c.Verify,
			BufferSize:  c.BufferSize,
			RetryConfig: c.Retry,
			Hasher:      hasher,
		})
		if err != nil {
			return nil, err
		}
		strategy = apply
	}

	return &Scheduler{
		cfg:       c,
		extractor: meta.NewExtractor(c.Fs, &meta.Config{Registry: c.Registry, FFprobe: c.FFprobe}),
		hasher:    hasher,
		executor:  execute.New(&execute.Config{Strategy: strategy, Logger: c.Logger}),
		runID:     store.NewRunID(),
	}, nil
}

// RunID identifies this run in the journal and event log
func (s *Scheduler) RunID() string {
	return s.runID
}

// destRoot is where files land: the destination root when organizing,
// the input root when renaming in place
func (s *Scheduler) destRoot() string {
	if s.cfg.Mode == plan.ModeOrganize {
		return s.cfg.DestRoot
	}
	return s.cfg.SourceRoot
}

// Run processes the input root. Only preflight failures are returned as
// errors before any work starts; per-file problems end up in the summary.
// A cancelled run still returns its summary, with undispatched records
// Failed as util.ErrAborted, alongside an error wrapping util.ErrAborted.
func (s *Scheduler) Run(ctx context.Context) (*report.Summary, error) {
	start := time.Now()

	if err := s.preflight(); err != nil {
		return nil, err
	}

	s.cfg.Logger.SetRunID(s.runID)
	s.beginJournal()

	util.InfoLog("Run %s: %s %s (workers %d, dry-run %v)", shortID(s.runID), s.cfg.Mode, s.cfg.SourceRoot, s.cfg.Workers, s.cfg.DryRun)

	scanner := scan.New(&scan.Config{
		Fs:       s.cfg.Fs,
		Registry: s.cfg.Registry,
		Exclude:  s.excludedDirs(),
		Logger:   s.cfg.Logger,
	})
	scanned, err := scanner.Scan(ctx, s.cfg.SourceRoot)
	if err != nil && scanned == nil {
		s.finishJournal(nil, nil, store.RunFailed)
		return nil, err
	}
	records := scanned.Records

	pending := scanned.Pending()
	if ctx.Err() == nil {
		s.extract(ctx, pending)
	}

	var planned *plan.Result
	if ctx.Err() == nil {
		planned, err = s.planBatch(ctx, pending)
		if err != nil && ctx.Err() == nil {
			s.finishJournal(records, nil, store.RunFailed)
			return nil, err
		}
	}

	var bytes map[*media.Record]int64
	var total int64
	if ctx.Err() == nil {
		bytes, total = s.transfer(ctx, records)
	}

	aborted := s.abortRemaining(records)

	summary := report.BuildSummary(records)
	summary.Duration = time.Since(start)
	summary.RunID = s.runID
	summary.Mode = string(s.cfg.Mode)
	summary.DryRun = s.cfg.DryRun
	summary.SourcePath = s.cfg.SourceRoot
	summary.DestinationPath = s.cfg.DestRoot
	summary.EventLogPath = s.cfg.Logger.Path()
	summary.BytesTransferred = total
	if planned != nil {
		summary.Disambiguated = planned.Disambiguated
	}

	status := store.RunCompleted
	if ctx.Err() != nil {
		status = store.RunAborted
	}
	s.finishJournal(records, bytes, status)

	if ctx.Err() != nil {
		util.WarnLog("Run cancelled: %d records were not processed", aborted)
		return summary, fmt.Errorf("%w: %w", util.ErrAborted, ctx.Err())
	}
	return summary, nil
}

// preflight fails the whole run when the input root is missing or files
// cannot be placed at the destination. Dry runs never write, so they only
// check that the destination could be created.
func (s *Scheduler) preflight() error {
	if err := scan.CheckRoot(s.cfg.Fs, s.cfg.SourceRoot); err != nil {
		return err
	}

	dest := s.destRoot()
	info, err := s.cfg.Fs.Stat(dest)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%w: destination root %s is not a directory", util.ErrInvalidConfig, dest)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("destination root %s: %w", dest, util.ClassifyIOError(err))
	}

	if s.cfg.DryRun {
		if err != nil {
			return s.checkCreatable(dest)
		}
		return nil
	}

	if err := util.RetryableMkdirAll(s.cfg.Fs, dest, 0o755, s.cfg.Retry); err != nil {
		return fmt.Errorf("cannot create destination root %s: %w", dest, util.ClassifyIOError(err))
	}
	probe, err := afero.TempFile(s.cfg.Fs, dest, ".toki-probe-*")
	if err != nil {
		return fmt.Errorf("destination root %s is not writable: %w", dest, util.ClassifyIOError(err))
	}
	name := probe.Name()
	probe.Close()
	if err := s.cfg.Fs.Remove(name); err != nil {
		util.WarnLog("Failed to remove write probe %s: %v", name, err)
	}
	return nil
}

// checkCreatable walks up to the nearest existing ancestor of dir, which
// must be a directory
func (s *Scheduler) checkCreatable(dir string) error {
	for parent := filepath.Dir(dir); ; parent = filepath.Dir(parent) {
		info, err := s.cfg.Fs.Stat(parent)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%w: cannot create destination root %s under file %s", util.ErrInvalidConfig, dir, parent)
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("destination root %s: %w", dir, util.ClassifyIOError(err))
		}
		if parent == filepath.Dir(parent) {
			return fmt.Errorf("%w: no existing ancestor of %s", util.ErrNotFound, dir)
		}
	}
}

// excludedDirs keeps discovery out of a destination nested in the input root
func (s *Scheduler) excludedDirs() []string {
	if s.cfg.Mode != plan.ModeOrganize {
		return nil
	}
	dest := s.cfg.DestRoot
	if dest != s.cfg.SourceRoot && util.IsWithin(dest, s.cfg.SourceRoot) {
		return []string{dest}
	}
	return nil
}

// extract reads metadata and digests in parallel. Results are applied in
// submission order by the stream's serialized callbacks.
func (s *Scheduler) extract(ctx context.Context, records []*media.Record) {
	if len(records) == 0 {
		return
	}
	util.InfoLog("Reading metadata of %d files", len(records))

	bar := newBar(len(records), "Reading metadata")
	st := stream.New().WithMaxGoroutines(s.cfg.Workers)

	for _, r := range records {
		if ctx.Err() != nil {
			break
		}
		path := r.SourcePath
		st.Go(func() stream.Callback {
			md, extractErr := s.extractor.Extract(ctx, path)
			digest, hashErr := s.hasher.Sum(ctx, path)

			return func() {
				defer addBar(bar)
				s.applyExtraction(ctx, r, md, extractErr, digest, hashErr)
			}
		})
	}
	st.Wait()
	finishBar(bar)
}

func (s *Scheduler) applyExtraction(ctx context.Context, r *media.Record, md meta.Metadata, extractErr error, digest meta.Digest, hashErr error) {
	if extractErr != nil {
		r.Skip(media.ReasonUnsupported)
		r.Err = extractErr
		s.cfg.Logger.LogSkip(r.SourcePath, "", media.ReasonUnsupported)
		return
	}
	if hashErr != nil {
		if ctx.Err() != nil {
			// Left pending; aborted at the end of the run
			return
		}
		r.Fail(hashErr)
		s.cfg.Logger.LogExtract(r.SourcePath, "", "", "", hashErr)
		util.ErrorLog("Cannot read %s: %v", r.SourcePath, hashErr)
		return
	}

	source := md.Source
	if md.CapturedAt == nil {
		source = "mtime"
	}
	r.SetMetadata(md.CapturedAt, md.CameraModel, source)
	r.Digest = string(digest)
	r.ContentHash = digest.Short()
	s.cfg.Logger.LogExtract(r.SourcePath, source, r.Confidence.String(), r.Digest, nil)
}

// planBatch resolves every destination through one planner before any transfer
// starts, so dry runs and real runs plan identically
func (s *Scheduler) planBatch(ctx context.Context, records []*media.Record) (*plan.Result, error) {
	planner, err := plan.New(&plan.Config{
		Fs:            s.cfg.Fs,
		Mode:          s.cfg.Mode,
		DestRoot:      s.cfg.DestRoot,
		Copy:          s.cfg.Copy,
		Rename:        s.cfg.Rename,
		Hasher:        s.hasher,
		Logger:        s.cfg.Logger,
		CaseSensitive: s.cfg.CaseSensitive,
	})
	if err != nil {
		return nil, err
	}

	if s.cfg.Mode == plan.ModeRename && s.cfg.CaseSensitive == nil {
		sensitive, err := util.DetectFilesystemCaseSensitivity(s.cfg.Fs, s.cfg.SourceRoot)
		if err != nil {
			util.WarnLog("Failed to detect filesystem case sensitivity, assuming case-sensitive: %v", err)
			sensitive = true
		}
		planner.SetCaseSensitive(sensitive)
	}

	result, err := planner.PlanBatch(ctx, records)
	if err != nil {
		return result, err
	}
	util.InfoLog("Planned %d transfers (%d in place, %d duplicates, %d renamed to avoid collisions)",
		result.Planned, result.InPlace, result.Duplicates, result.Disambiguated)
	return result, nil
}

// transfer fans planned records out to the worker pool. Outcomes come back
// over a channel to one collector that owns counters, progress, journal
// rows and failure logging. Once ctx is cancelled nothing new is
// dispatched; transfers already running finish.
func (s *Scheduler) transfer(ctx context.Context, records []*media.Record) (map[*media.Record]int64, int64) {
	var queue []*media.Record
	for _, r := range records {
		if r.Status == media.StatusPlanned {
			queue = append(queue, r)
		}
	}
	bytes := make(map[*media.Record]int64, len(queue))
	if len(queue) == 0 {
		return bytes, 0
	}

	label := "Transferring"
	if s.executor.DryRun() {
		label = "Simulating"
	}
	util.InfoLog("%s %d files", label, len(queue))

	results := make(chan execute.Outcome, s.cfg.Workers)
	done := make(chan int64)

	go func() {
		bar := newBar(len(queue), label)
		var total int64
		var rows []*store.Transfer

		for out := range results {
			bytes[out.Record] = out.Bytes
			if out.Err != nil {
				util.ErrorLog("Failed: %s: %v", out.Record.SourcePath, out.Err)
			} else if !s.executor.DryRun() {
				total += out.Bytes
			}
			if s.cfg.Journal != nil {
				rows = append(rows, store.TransferFromRecord(s.runID, out.Record, out.Bytes))
				if len(rows) >= journalBatchSize {
					s.flushJournal(rows)
					rows = rows[:0]
				}
			}
			addBar(bar)
		}

		s.flushJournal(rows)
		finishBar(bar)
		done <- total
	}()

	// In-flight transfers run to completion even after cancellation so no
	// partial file is left behind
	execCtx := context.WithoutCancel(ctx)
	p := pool.New().WithMaxGoroutines(s.cfg.Workers)
	for _, r := range queue {
		if ctx.Err() != nil {
			break
		}
		p.Go(func() {
			results <- s.executor.Execute(execCtx, r)
		})
	}
	p.Wait()
	close(results)

	return bytes, <-done
}

// abortRemaining fails every record that was never dispatched. Dry-run
// records that were planned stay Planned.
func (s *Scheduler) abortRemaining(records []*media.Record) int {
	aborted := 0
	for _, r := range records {
		if r.Status == media.StatusPending || (r.Status == media.StatusPlanned && !s.executor.DryRun()) {
			r.Fail(util.ErrAborted)
			aborted++
		}
	}
	return aborted
}

func (s *Scheduler) beginJournal() {
	if s.cfg.Journal == nil {
		return
	}
	run := &store.Run{
		ID:       s.runID,
		Mode:     string(s.cfg.Mode),
		SrcRoot:  s.cfg.SourceRoot,
		DestRoot: s.cfg.DestRoot,
		DryRun:   s.cfg.DryRun,
		HashAlgo: string(s.hasher.Algorithm()),
	}
	if err := s.cfg.Journal.BeginRun(run); err != nil {
		util.WarnLog("Journal disabled: %v", err)
		s.cfg.Journal = nil
	}
}

// finishJournal writes rows for records that never reached the executor
// and closes the run. bytes marks the records already journaled.
func (s *Scheduler) finishJournal(records []*media.Record, bytes map[*media.Record]int64, status string) {
	if s.cfg.Journal == nil {
		return
	}

	var rows []*store.Transfer
	var counts store.RunCounts
	counts.Discovered = len(records)
	for _, r := range records {
		switch r.Status {
		case media.StatusPlanned:
			counts.Planned++
		case media.StatusApplied:
			counts.Applied++
		case media.StatusSkipped:
			counts.Skipped++
		case media.StatusFailed:
			counts.Failed++
		}
		if n, journaled := bytes[r]; journaled {
			if r.Status == media.StatusApplied {
				counts.Bytes += n
			}
			continue
		}
		rows = append(rows, store.TransferFromRecord(s.runID, r, 0))
	}
	s.flushJournal(rows)

	if err := s.cfg.Journal.FinishRun(s.runID, status, counts); err != nil {
		util.WarnLog("Failed to finish journal run: %v", err)
	}
}

func (s *Scheduler) flushJournal(rows []*store.Transfer) {
	if s.cfg.Journal == nil || len(rows) == 0 {
		return
	}
	if err := s.cfg.Journal.InsertTransferBatch(rows); err != nil {
		util.ErrorLog("Failed to write journal: %v", err)
	}
}

func newBar(total int, description string) *progressbar.ProgressBar {
	if !util.ShowProgress() {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowIts(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func addBar(bar *progressbar.ProgressBar) {
	if bar != nil {
		bar.Add(1)
	}
}

func finishBar(bar *progressbar.ProgressBar) {
	if bar != nil {
		bar.Finish()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
