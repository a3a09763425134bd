package execute

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/toki/internal/media"
	"github.com/franz/toki/internal/report"
	"github.com/franz/toki/internal/util"
)

// Strategy carries out, or pretends to carry out, one planned transfer
type Strategy interface {
	// Name identifies the strategy in logs
	Name() string
	// Mutates reports whether Transfer touches the filesystem
	Mutates() bool
	// Transfer performs r's planned action and returns the bytes moved
	Transfer(ctx context.Context, r *media.Record) (int64, error)
}

// Executor applies planned records through a Strategy
type Executor struct {
	strategy Strategy
	logger   *report.EventLogger
}

// Config holds executor configuration
type Config struct {
	Strategy Strategy // nil = Simulate
	Logger   *report.EventLogger
}

// New creates a new Executor
func New(cfg *Config) *Executor {
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = Simulate{}
	}
	return &Executor{
		strategy: strategy,
		logger:   cfg.Logger,
	}
}

// DryRun reports whether the executor leaves the filesystem alone
func (e *Executor) DryRun() bool {
	return !e.strategy.Mutates()
}

// Outcome is what happened to one record
type Outcome struct {
	Record   *media.Record
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Execute runs the transfer for a Planned record. Records in any other
// state are returned untouched. On success a mutating strategy advances the
// record to Applied; a simulated one leaves it Planned. On failure the
// record becomes Failed with the cause.
func (e *Executor) Execute(ctx context.Context, r *media.Record) Outcome {
	out := Outcome{Record: r}
	if r.Status != media.StatusPlanned {
		return out
	}

	start := time.Now()
	bytes, err := e.strategy.Transfer(ctx, r)
	out.Bytes = bytes
	out.Duration = time.Since(start)

	if err != nil {
		out.Err = err
		if ferr := r.Fail(err); ferr != nil {
			util.ErrorLog("Cannot record failure of %s: %v", r.SourcePath, ferr)
		}
		e.logger.LogTransfer(r.SourcePath, r.PlannedPath, string(r.Action), bytes, out.Duration, err)
		return out
	}

	if !e.strategy.Mutates() {
		util.DebugLog("[%s] %s %s -> %s", e.strategy.Name(), r.Action, r.SourcePath, r.PlannedPath)
		return out
	}

	if err := r.Advance(media.StatusApplied); err != nil {
		out.Err = fmt.Errorf("transfer of %s finished but %w", r.SourcePath, err)
		return out
	}
	e.logger.LogTransfer(r.SourcePath, r.PlannedPath, string(r.Action), bytes, out.Duration, nil)
	util.DebugLog("%s: %s -> %s (%s)", r.Action, r.SourcePath, r.PlannedPath, util.FormatBytes(bytes))
	return out
}
