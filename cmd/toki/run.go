package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/franz/toki/internal/media"
	"github.com/franz/toki/internal/pipeline"
	"github.com/franz/toki/internal/plan"
	"github.com/franz/toki/internal/report"
	"github.com/franz/toki/internal/store"
	"github.com/franz/toki/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errFailures makes the process exit non-zero when any file failed
var errFailures = errors.New("some files could not be processed")

// runBatch drives one rename or organize run from the command line
func runBatch(cmd *cobra.Command, mode plan.Mode, src, dest string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	src, err = filepath.Abs(src)
	if err != nil {
		return err
	}
	if dest != "" {
		if dest, err = filepath.Abs(dest); err != nil {
			return err
		}
	}

	tuning := util.AutoTune(src, dest, cfg.NASMode, cfg.Workers)
	util.DebugLog("I/O tuning: %s", tuning)

	logger := report.NullLogger()
	if cfg.EventLog != "" {
		logger, err = report.NewEventLogger(cfg.EventLog, cfg.EventLevel)
		if err != nil {
			util.WarnLog("Failed to create event logger: %v", err)
			logger = report.NullLogger()
		} else {
			util.InfoLog("Event log: %s", logger.Path())
		}
	}
	defer logger.Close()

	var journal *store.Store
	if cfg.Journal != "" {
		journal, err = store.OpenWithOptions(cfg.Journal, &store.OpenOptions{
			NetworkOptimized: util.OnNetworkStorage(filepath.Dir(cfg.Journal)),
		})
		if err != nil {
			util.WarnLog("Journal disabled: %v", err)
			journal = nil
		} else {
			defer journal.Close()
		}
	}

	scheduler, err := pipeline.New(&pipeline.Config{
		Fs:         afero.NewOsFs(),
		Mode:       mode,
		SourceRoot: src,
		DestRoot:   dest,
		Copy:       cfg.Copy,
		Rename:     cfg.Rename,
		DryRun:     cfg.DryRun,
		Workers:    tuning.Workers,
		HashAlgo:   cfg.Hash,
		Verify:     cfg.Verify,
		BufferSize: tuning.BufferSize,
		Retry:      tuning.Retry,
		Registry:   media.NewRegistry(cfg.Extensions...),
		FFprobe:    cfg.FFprobe,
		Journal:    journal,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := scheduler.Run(ctx)
	if summary == nil {
		return runErr
	}
	if journal != nil {
		summary.JournalPath = cfg.Journal
	}

	fmt.Fprintln(os.Stdout)
	summary.Print(os.Stdout)

	if cfg.Report != "" {
		if err := report.WriteMarkdownReport(summary, cfg.Report); err != nil {
			util.WarnLog("Failed to write summary report: %v", err)
		} else {
			util.SuccessLog("Summary report saved to: %s", cfg.Report)
		}
	}

	if runErr != nil {
		return runErr
	}
	if summary.HasFailures() {
		return fmt.Errorf("%w (%d failed)", errFailures, summary.Count(media.StatusFailed))
	}
	if cfg.DryRun {
		util.InfoLog("Dry run: nothing was changed. Run again without --dry-run to apply.")
	}
	return nil
}
