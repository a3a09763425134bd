package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

// DetectFilesystemCaseSensitivity reports whether names differing only in
// case are distinct files under dir. It never writes: the nearest existing
// path component containing letters is looked up under its case-swapped
// name. Paths with no such component are assumed case-sensitive.
func DetectFilesystemCaseSensitivity(fsys afero.Fs, dir string) (bool, error) {
	p := filepath.Clean(dir)
	for {
		info, err := fsys.Stat(p)
		switch {
		case err == nil:
			if sensitive, ok, err := probeCase(fsys, p, info); ok || err != nil {
				return sensitive, err
			}
		case !errors.Is(err, fs.ErrNotExist):
			return true, fmt.Errorf("stat %s: %w", p, err)
		}

		parent := filepath.Dir(p)
		if parent == p {
			return true, nil
		}
		p = parent
	}
}

// probeCase looks p up under its case-swapped basename. ok is false when
// the basename has no letters to swap.
func probeCase(fsys afero.Fs, p string, info fs.FileInfo) (sensitive, ok bool, err error) {
	base := filepath.Base(p)
	swapped := swapCase(base)
	if swapped == base {
		return true, false, nil
	}

	other, err := fsys.Stat(filepath.Join(filepath.Dir(p), swapped))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return true, true, nil
	case err != nil:
		return true, true, fmt.Errorf("stat %s: %w", swapped, err)
	}
	// Both names resolve; they are one file only on a case-folding filesystem
	return !os.SameFile(info, other), true, nil
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsUpper(r):
			return unicode.ToLower(r)
		case unicode.IsLower(r):
			return unicode.ToUpper(r)
		}
		return r
	}, s)
}

// NormalizePath returns the key used to compare paths for collisions.
// The path is always cleaned; on case-insensitive filesystems it is also lowercased.
func NormalizePath(path string, caseSensitive bool) string {
	cleaned := filepath.Clean(path)
	if caseSensitive {
		return cleaned
	}
	return strings.ToLower(cleaned)
}

// PathsEqual compares two paths under the given case rule
func PathsEqual(a, b string, caseSensitive bool) bool {
	return NormalizePath(a, caseSensitive) == NormalizePath(b, caseSensitive)
}

// IsWithin reports whether path lies inside (or is) root
func IsWithin(path, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// FormatBytes renders a byte count for humans (e.g. "1.5 MiB")
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
