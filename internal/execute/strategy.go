package execute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/franz/toki/internal/media"
	"github.com/franz/toki/internal/meta"
	"github.com/franz/toki/internal/util"
	"github.com/spf13/afero"
)

// PartSuffix marks an in-progress copy
const PartSuffix = ".part"

const defaultBufferSize = 128 * 1024

// VerifyMode selects how a finished transfer is checked
type VerifyMode string

const (
	VerifyNone VerifyMode = "none" // destination must exist
	VerifySize VerifyMode = "size"
	VerifyHash VerifyMode = "hash"
)

// ParseVerifyMode validates a verify mode name; empty means size
func ParseVerifyMode(s string) (VerifyMode, error) {
	switch m := VerifyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return VerifySize, nil
	case VerifyNone, VerifySize, VerifyHash:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown verify mode %q (want none, size or hash)", util.ErrInvalidConfig, s)
}

// Simulate is the dry-run strategy. It never calls the filesystem.
type Simulate struct{}

func (Simulate) Name() string  { return "dry-run" }
func (Simulate) Mutates() bool { return false }

func (Simulate) Transfer(ctx context.Context, r *media.Record) (int64, error) {
	return r.Size, ctx.Err()
}

// ApplyConfig holds configuration for the Apply strategy
type ApplyConfig struct {
	Fs          afero.Fs
	Verify      VerifyMode
	BufferSize  int               // 0 = 128KB
	RetryConfig *util.RetryConfig // nil = no retries
	Hasher      *meta.Hasher      // required for VerifyHash
}

// Apply performs transfers on the filesystem
type Apply struct {
	fs          afero.Fs
	verify      VerifyMode
	bufferSize  int
	retryConfig *util.RetryConfig
	hasher      *meta.Hasher
}

// NewApply creates the mutating strategy
func NewApply(cfg *ApplyConfig) (*Apply, error) {
	if cfg.Fs == nil {
		return nil, fmt.Errorf("%w: apply needs a filesystem", util.ErrInvalidConfig)
	}
	verify := cfg.Verify
	if verify == "" {
		verify = VerifySize
	}
	if verify == VerifyHash && cfg.Hasher == nil {
		return nil, fmt.Errorf("%w: hash verification needs a hasher", util.ErrInvalidConfig)
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	retryConfig := cfg.RetryConfig
	if retryConfig == nil {
		retryConfig = util.NoRetryConfig()
	}

	return &Apply{
		fs:          cfg.Fs,
		verify:      verify,
		bufferSize:  bufferSize,
		retryConfig: retryConfig,
		hasher:      cfg.Hasher,
	}, nil
}

func (a *Apply) Name() string  { return "apply" }
func (a *Apply) Mutates() bool { return true }

// Transfer moves or copies r to its planned path. An existing destination
// is never overwritten, and a failed copy leaves the source untouched.
func (a *Apply) Transfer(ctx context.Context, r *media.Record) (int64, error) {
	src, dest := r.SourcePath, r.PlannedPath
	if dest == "" {
		return 0, fmt.Errorf("%w: %s has no planned destination", util.ErrTransfer, src)
	}

	if err := util.RetryableMkdirAll(a.fs, filepath.Dir(dest), 0o755, a.retryConfig); err != nil {
		return 0, transferError("create directory for", src, dest, err)
	}
	if err := a.ensureFree(src, dest); err != nil {
		return 0, err
	}

	switch r.Action {
	case media.ActionCopy:
		n, err := a.copyFile(ctx, r, dest)
		if err != nil {
			return n, err
		}
		if err := a.verifyDest(ctx, r, dest); err != nil {
			a.discard(dest)
			return n, err
		}
		return n, nil
	case media.ActionMove:
		return a.moveFile(ctx, r, dest)
	}
	return 0, fmt.Errorf("%w: unexpected action %q for %s", util.ErrTransfer, r.Action, src)
}

// ensureFree refuses destinations that appeared after planning. On a
// case-insensitive filesystem a case-only rename finds the source itself
// at dest, which is allowed.
func (a *Apply) ensureFree(src, dest string) error {
	info, err := a.fs.Stat(dest)
	if err == nil {
		if src != dest && strings.EqualFold(src, dest) {
			if srcInfo, serr := a.fs.Stat(src); serr == nil && os.SameFile(srcInfo, info) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s already exists", util.ErrConflict, dest)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return transferError("stat", dest, dest, err)
	}
	return nil
}

// copyFile writes r's content to dest through a .part file and renames it
// into place, then carries the source modification time over.
func (a *Apply) copyFile(ctx context.Context, r *media.Record, dest string) (int64, error) {
	src, err := util.RetryableOpen(a.fs, r.SourcePath, a.retryConfig)
	if err != nil {
		return 0, transferError("open", r.SourcePath, dest, err)
	}
	defer src.Close()

	tempPath := dest + PartSuffix
	// Leftover from an interrupted run
	if err := a.fs.Remove(tempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, transferError("remove stale", tempPath, dest, err)
	}

	out, err := util.RetryableCreateExclusive(a.fs, tempPath, 0o644, a.retryConfig)
	if err != nil {
		return 0, transferError("create", r.SourcePath, tempPath, err)
	}

	written, err := copyWithContext(ctx, out, src, a.bufferSize)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		a.discard(tempPath)
		return 0, transferError("copy", r.SourcePath, dest, err)
	}

	// Strict here: a copy must never land on its own source
	if err := a.ensureFree("", dest); err != nil {
		a.discard(tempPath)
		return 0, err
	}
	if err := util.RetryableRename(a.fs, tempPath, dest, a.retryConfig); err != nil {
		a.discard(tempPath)
		return 0, transferError("rename", tempPath, dest, err)
	}

	if !r.ModTime.IsZero() {
		if err := a.fs.Chtimes(dest, r.ModTime, r.ModTime); err != nil {
			util.WarnLog("Cannot preserve modification time of %s: %v", dest, err)
		}
	}
	return written, nil
}

// moveFile renames r into place. Across devices it copies, verifies and
// only then removes the source.
func (a *Apply) moveFile(ctx context.Context, r *media.Record, dest string) (int64, error) {
	err := util.RetryableRename(a.fs, r.SourcePath, dest, a.retryConfig)
	if err == nil {
		if verr := a.verifyDest(ctx, r, dest); verr != nil {
			// The source must stay where it was
			if rerr := util.RetryableRename(a.fs, dest, r.SourcePath, a.retryConfig); rerr != nil {
				return 0, fmt.Errorf("%w (restoring %s from %s also failed: %v)", verr, r.SourcePath, dest, rerr)
			}
			return 0, verr
		}
		return r.Size, nil
	}
	if !isCrossDevice(err) {
		return 0, transferError("rename", r.SourcePath, dest, err)
	}

	util.DebugLog("Cross-device move, copying: %s -> %s", r.SourcePath, dest)
	written, err := a.copyFile(ctx, r, dest)
	if err != nil {
		return 0, err
	}
	if err := a.verifyDest(ctx, r, dest); err != nil {
		a.discard(dest)
		return 0, err
	}

	if err := util.RetryableRemove(a.fs, r.SourcePath, a.retryConfig); err != nil {
		// The copy is complete and verified
		util.WarnLog("Failed to delete source file %s: %v", r.SourcePath, err)
	}
	return written, nil
}

// verifyDest checks the finished destination according to the verify mode
func (a *Apply) verifyDest(ctx context.Context, r *media.Record, dest string) error {
	info, err := util.RetryableStat(a.fs, dest, a.retryConfig)
	if err != nil {
		return transferError("verify", r.SourcePath, dest, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: verify %s: not a regular file", util.ErrTransfer, dest)
	}

	mode := a.verify
	if mode == VerifyHash && r.Digest == "" {
		mode = VerifySize
	}

	switch mode {
	case VerifySize:
		if info.Size() != r.Size {
			return fmt.Errorf("%w: verify %s: size %d, expected %d", util.ErrTransfer, dest, info.Size(), r.Size)
		}
	case VerifyHash:
		digest, err := a.hasher.Sum(ctx, dest)
		if err != nil {
			return transferError("hash", r.SourcePath, dest, err)
		}
		if string(digest) != r.Digest {
			return fmt.Errorf("%w: verify %s: digest mismatch", util.ErrTransfer, dest)
		}
	}
	return nil
}

func (a *Apply) discard(path string) {
	if err := util.RetryableRemove(a.fs, path, a.retryConfig); err != nil && !errors.Is(err, fs.ErrNotExist) {
		util.WarnLog("Failed to clean up %s: %v", path, err)
	}
}

func transferError(op, src, dest string, err error) error {
	return fmt.Errorf("%w: %s %s -> %s: %w", util.ErrTransfer, op, src, dest, util.ClassifyIOError(err))
}

func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, bufferSize int) (int64, error) {
	buf := make([]byte, bufferSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if ew == nil {
					ew = errors.New("invalid write result")
				}
			}
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er == io.EOF {
			return written, nil
		}
		if er != nil {
			return written, er
		}
	}
}
