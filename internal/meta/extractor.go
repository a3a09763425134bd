package meta

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/franz/toki/internal/media"
	"github.com/franz/toki/internal/util"
	"github.com/spf13/afero"
)

// Metadata is the partial result of reading a file's embedded metadata.
// Absent fields are nil, never zero values.
type Metadata struct {
	CapturedAt  *time.Time
	CameraModel *string
	Source      string // which tag/box supplied CapturedAt
}

// Complete reports whether both fields were found
func (m Metadata) Complete() bool {
	return m.CapturedAt != nil && m.CameraModel != nil
}

// fill copies fields from other that are missing in m
func (m *Metadata) fill(other Metadata) {
	if m.CapturedAt == nil && other.CapturedAt != nil {
		m.CapturedAt = other.CapturedAt
		m.Source = other.Source
	}
	if m.CameraModel == nil && other.CameraModel != nil {
		m.CameraModel = other.CameraModel
	}
}

// Config holds extractor configuration
type Config struct {
	Registry *media.Registry // nil means built-in extensions only
	FFprobe  bool            // allow shelling out to ffprobe for video
}

// Extractor reads capture timestamps and camera models from media files
type Extractor struct {
	fs       afero.Fs
	registry *media.Registry
	ffprobe  bool

	probeOnce sync.Once
	probeOK   bool
}

// NewExtractor creates a new metadata extractor
func NewExtractor(fs afero.Fs, cfg *Config) *Extractor {
	if cfg == nil {
		cfg = &Config{}
	}
	reg := cfg.Registry
	if reg == nil {
		reg = media.NewRegistry()
	}
	return &Extractor{
		fs:       fs,
		registry: reg,
		ffprobe:  cfg.FFprobe,
	}
}

// Registry returns the extension registry used for dispatch
func (e *Extractor) Registry() *media.Registry {
	return e.registry
}

// Extract reads embedded metadata from path. The only error returned is
// util.ErrUnsupported for extensions without a decoder; unreadable or
// malformed metadata yields an empty Metadata.
func (e *Extractor) Extract(ctx context.Context, path string) (Metadata, error) {
	ext := media.Ext(path)
	format, ok := e.registry.Lookup(ext)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %q", util.ErrUnsupported, ext)
	}

	var md Metadata
	switch format {
	case media.FormatJPEG, media.FormatTIFF:
		md = e.withFile(path, readGoexif)
		if !md.Complete() {
			md.fill(e.withFile(path, searchExif))
		}
	case media.FormatPNG, media.FormatHEIF, media.FormatGeneric:
		md = e.withFile(path, searchExif)
	case media.FormatMP4:
		md = e.withFile(path, readMovieHeader)
		if md.CapturedAt == nil {
			md.fill(e.withFile(path, readQuickTimeTags))
		}
	}

	if format.IsVideo() && !md.Complete() && e.canProbe() {
		md.fill(e.probe(ctx, path))
	}

	if md.CapturedAt == nil {
		util.DebugLog("No embedded timestamp in %s", path)
	}
	return md, nil
}

type decodeFunc func(r io.ReadSeeker) (Metadata, error)

// withFile opens path and runs decode, swallowing every failure.
func (e *Extractor) withFile(path string, decode decodeFunc) (md Metadata) {
	f, err := e.fs.Open(path)
	if err != nil {
		util.DebugLog("Open %s for metadata: %v", path, err)
		return Metadata{}
	}
	defer f.Close()

	// Some decoders report corrupt input by panicking
	defer func() {
		if r := recover(); r != nil {
			util.DebugLog("Metadata decoder panicked on %s: %v", path, r)
			md = Metadata{}
		}
	}()

	md, err = decode(f)
	if err != nil {
		util.DebugLog("Metadata decode %s: %v", path, err)
	}
	return md
}

// canProbe reports whether ffprobe may be used: enabled, installed, and
// the extractor is reading the real filesystem.
func (e *Extractor) canProbe() bool {
	if !e.ffprobe {
		return false
	}
	if _, ok := e.fs.(*afero.OsFs); !ok {
		return false
	}
	e.probeOnce.Do(func() {
		_, err := exec.LookPath("ffprobe")
		e.probeOK = err == nil
		if !e.probeOK {
			util.WarnLog("ffprobe not found in PATH; AVI files will fall back to modification time")
		}
	})
	return e.probeOK
}

func (e *Extractor) probe(ctx context.Context, path string) Metadata {
	info, err := RunFFprobe(ctx, path)
	if err != nil {
		util.DebugLog("ffprobe %s: %v", path, err)
		return Metadata{}
	}
	var md Metadata
	if ts := info.CreationTime(); ts != nil {
		md.CapturedAt = ts
		md.Source = "ffprobe:creation_time"
	}
	md.CameraModel = info.CameraModel()
	return md
}

func cleanTagString(s string) *string {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return nil
	}
	return &s
}
