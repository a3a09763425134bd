package plan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/franz/toki/internal/media"
	"github.com/franz/toki/internal/meta"
	"github.com/franz/toki/internal/report"
	"github.com/franz/toki/internal/util"
	"github.com/spf13/afero"
)

// Mode selects how destinations are derived
type Mode string

const (
	// ModeRename renames files in place to their canonical names
	ModeRename Mode = "rename"
	// ModeOrganize files into <dest>/YYYY/MM/DD
	ModeOrganize Mode = "organize"
)

// maxSuffix bounds the disambiguator search
const maxSuffix = 10000

// Config holds planner configuration
type Config struct {
	Fs       afero.Fs
	Mode     Mode
	DestRoot string // organize only
	Copy     bool   // organize only: copy instead of move
	Rename   bool   // organize only: use canonical names instead of originals
	Hasher   *meta.Hasher
	Logger   *report.EventLogger

	// CaseSensitive overrides detection on the destination filesystem
	CaseSensitive *bool
}

type claim struct {
	rec  *media.Record
	name string // synthesized name the claim was derived from
}

// Planner is the single authority over destination paths for one batch.
// Plan is safe for concurrent use; reproducible results need a fixed
// submission order, which PlanBatch provides.
type Planner struct {
	fs       afero.Fs
	mode     Mode
	destRoot string
	copy     bool
	rename   bool
	hasher   *meta.Hasher
	logger   *report.EventLogger

	mu            sync.Mutex
	caseSensitive bool
	claimed       map[string]claim
	diskDigests   map[string]meta.Digest
}

// Result counts planning outcomes
type Result struct {
	Planned       int
	Disambiguated int
	InPlace       int
	Duplicates    int
	Ignored       int // records already finalized before planning
}

// New creates a planner. The destination filesystem is probed (read-only)
// for case sensitivity unless cfg.CaseSensitive is set.
func New(cfg *Config) (*Planner, error) {
	switch cfg.Mode {
	case ModeRename:
	case ModeOrganize:
		if cfg.DestRoot == "" {
			return nil, fmt.Errorf("%w: organize requires a destination root", util.ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", util.ErrInvalidConfig, cfg.Mode)
	}
	if cfg.Fs == nil || cfg.Hasher == nil {
		return nil, fmt.Errorf("%w: planner needs a filesystem and a hasher", util.ErrInvalidConfig)
	}

	p := &Planner{
		fs:            cfg.Fs,
		mode:          cfg.Mode,
		destRoot:      filepath.Clean(cfg.DestRoot),
		copy:          cfg.Copy,
		rename:        cfg.Rename,
		hasher:        cfg.Hasher,
		logger:        cfg.Logger,
		caseSensitive: true,
		claimed:       make(map[string]claim),
		diskDigests:   make(map[string]meta.Digest),
	}

	switch {
	case cfg.CaseSensitive != nil:
		p.caseSensitive = *cfg.CaseSensitive
	case cfg.Mode == ModeOrganize:
		sensitive, err := util.DetectFilesystemCaseSensitivity(cfg.Fs, p.destRoot)
		if err != nil {
			util.WarnLog("Failed to detect filesystem case sensitivity, assuming case-sensitive: %v", err)
			sensitive = true
		}
		p.caseSensitive = sensitive
		if !sensitive {
			util.InfoLog("Case-insensitive destination detected - comparing paths case-insensitively")
		}
	}

	return p, nil
}

// SetCaseSensitive changes the path comparison rule. Rename mode calls it
// with the input root's rule before planning.
func (p *Planner) SetCaseSensitive(sensitive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caseSensitive = sensitive
}

// PlanBatch plans every pending record in source-path order, so the
// mapping is independent of the order extraction finished in.
func (p *Planner) PlanBatch(ctx context.Context, records []*media.Record) (*Result, error) {
	ordered := make([]*media.Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SourcePath < ordered[j].SourcePath
	})

	result := &Result{}
	for _, r := range ordered {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if r.Status != media.StatusPending {
			result.Ignored++
			continue
		}

		suffixed, err := p.Plan(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			r.Fail(err)
			p.logger.LogError(report.EventPlan, r.SourcePath, err)
			continue
		}

		switch {
		case r.Status == media.StatusPlanned:
			result.Planned++
			if suffixed {
				result.Disambiguated++
			}
		case r.Reason == media.ReasonInPlace:
			result.InPlace++
		case r.Reason == media.ReasonDuplicate:
			result.Duplicates++
		}
	}

	util.DebugLog("Planned %d, in place %d, duplicates %d, disambiguated %d",
		result.Planned, result.InPlace, result.Duplicates, result.Disambiguated)
	return result, nil
}

// Plan resolves the destination of one pending record. The record ends
// Planned, or Skipped when it already sits at its destination or is a
// byte-identical duplicate of a claimed or existing file. suffixed reports
// whether a disambiguator was needed.
func (p *Planner) Plan(ctx context.Context, r *media.Record) (suffixed bool, err error) {
	if r.Status != media.StatusPending {
		return false, fmt.Errorf("%w: plan %s in state %s", media.ErrInvalidTransition, r.SourcePath, r.Status)
	}
	if r.Digest == "" {
		return false, fmt.Errorf("plan %s: record has no content digest", r.SourcePath)
	}

	name, dir, action := p.target(r)
	r.PlannedName = name

	p.mu.Lock()
	defer p.mu.Unlock()

	for n := 0; n < maxSuffix; n++ {
		candidate := filepath.Join(dir, withSuffix(name, n))
		key := util.NormalizePath(candidate, p.caseSensitive)

		if util.PathsEqual(candidate, r.SourcePath, p.caseSensitive) {
			p.claimed[key] = claim{rec: r, name: name}
			r.PlannedName = filepath.Base(candidate)
			r.PlannedPath = candidate
			if action == media.ActionMove && r.PlannedName != filepath.Base(r.SourcePath) {
				// Only the letter case differs, e.g. an upper-case extension
				r.Action = action
				p.logger.LogPlan(r.SourcePath, candidate, string(action))
				return n > 0, r.Advance(media.StatusPlanned)
			}
			r.Action = media.ActionNone
			p.logger.LogSkip(r.SourcePath, candidate, media.ReasonInPlace)
			return n > 0, r.Skip(media.ReasonInPlace)
		}

		if owner, taken := p.claimed[key]; taken {
			if owner.name == name && owner.rec.Digest == r.Digest {
				return false, p.skipDuplicate(r, owner.rec.SourcePath)
			}
			p.logger.LogConflict(r.SourcePath, candidate, "claimed by "+owner.rec.SourcePath)
			continue
		}

		info, err := p.fs.Stat(candidate)
		if err == nil {
			same, err := p.sameContent(ctx, candidate, info, r)
			if err != nil {
				return false, err
			}
			if same {
				return false, p.skipDuplicate(r, candidate)
			}
			p.logger.LogConflict(r.SourcePath, candidate, "exists")
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			// Unknown state; never risk it
			util.WarnLog("Cannot stat %s, trying next name: %v", candidate, err)
			continue
		}

		p.claimed[key] = claim{rec: r, name: name}
		r.PlannedName = filepath.Base(candidate)
		r.PlannedPath = candidate
		r.Action = action
		if n > 0 {
			util.DebugLog("Collision: %s -> %s", r.SourcePath, r.PlannedName)
		}
		p.logger.LogPlan(r.SourcePath, candidate, string(action))
		return n > 0, r.Advance(media.StatusPlanned)
	}

	return false, fmt.Errorf("%w: no free name for %s after %d attempts", util.ErrConflict, name, maxSuffix)
}

// target returns the synthesized name, destination directory and action
func (p *Planner) target(r *media.Record) (string, string, media.Action) {
	if p.mode == ModeRename {
		return meta.CanonicalName(r), filepath.Dir(r.SourcePath), media.ActionMove
	}

	name := filepath.Base(r.SourcePath)
	if p.rename {
		name = meta.CanonicalName(r)
	}
	action := media.ActionMove
	if p.copy {
		action = media.ActionCopy
	}
	return name, DateDir(p.destRoot, r), action
}

// DateDir returns <root>/YYYY/MM/DD for the record's timestamp
func DateDir(root string, r *media.Record) string {
	ts := r.Timestamp()
	return filepath.Join(root, ts.Format("2006"), ts.Format("01"), ts.Format("02"))
}

// withSuffix inserts _n before the extension; n == 0 returns name unchanged
func withSuffix(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// sameContent reports whether the file at path is byte-identical to r.
// Caller holds p.mu.
func (p *Planner) sameContent(ctx context.Context, path string, info fs.FileInfo, r *media.Record) (bool, error) {
	if info.IsDir() || info.Size() != r.Size {
		return false, nil
	}
	digest, ok := p.diskDigests[path]
	if !ok {
		var err error
		digest, err = p.hasher.Sum(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			// Unreadable occupant: treat as different content
			util.WarnLog("Cannot hash existing %s: %v", path, err)
			return false, nil
		}
		p.diskDigests[path] = digest
	}
	return string(digest) == r.Digest, nil
}

func (p *Planner) skipDuplicate(r *media.Record, of string) error {
	r.DuplicateOf = of
	r.Action = media.ActionNone
	p.logger.LogDuplicate(r.SourcePath, of, r.Digest)
	return r.Skip(media.ReasonDuplicate)
}

// Claimed returns the number of destinations claimed so far
func (p *Planner) Claimed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.claimed)
}
