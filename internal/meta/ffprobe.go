package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/franz/toki/internal/util"
)

// ProbeInfo is the subset of `ffprobe -show_format -show_streams` we read
type ProbeInfo struct {
	Streams []ProbeStream `json:"streams"`
	Format  *ProbeFormat  `json:"format"`
}

// ProbeStream is one stream entry
type ProbeStream struct {
	Index     int               `json:"index"`
	CodecType string            `json:"codec_type"`
	Tags      map[string]string `json:"tags"`
}

// ProbeFormat is the container section
type ProbeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags"`
}

// RunFFprobe executes ffprobe and parses the JSON output
func RunFFprobe(ctx context.Context, path string) (*ProbeInfo, error) {
	if !CheckFFprobeAvailable() {
		return nil, fmt.Errorf("ffprobe: %w", util.ErrNotFound)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe execution failed: %w", err)
	}

	return ParseProbeOutput(output)
}

// ParseProbeOutput decodes ffprobe's JSON document
func ParseProbeOutput(data []byte) (*ProbeInfo, error) {
	var info ProbeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &info, nil
}

// CheckFFprobeAvailable checks if ffprobe is available in PATH
func CheckFFprobeAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

// CreationTime returns the recording time from container or stream tags.
// Apple's creationdate carries the recording offset and wins over the UTC
// creation_time. Muxer defaults (1904/1970) are ignored.
func (p *ProbeInfo) CreationTime() *time.Time {
	for _, key := range []string{"com.apple.quicktime.creationdate", "creation_time", "date"} {
		for _, tags := range p.tagSets() {
			if ts := parseProbeTime(lookupTag(tags, key)); ts != nil {
				return ts
			}
		}
	}
	return nil
}

// CameraModel returns the recording device model, if tagged
func (p *ProbeInfo) CameraModel() *string {
	for _, key := range []string{"com.apple.quicktime.model", "com.android.model", "model"} {
		for _, tags := range p.tagSets() {
			if v := cleanTagString(lookupTag(tags, key)); v != nil {
				return v
			}
		}
	}
	return nil
}

// tagSets lists format tags first, then each stream's tags
func (p *ProbeInfo) tagSets() []map[string]string {
	sets := make([]map[string]string, 0, len(p.Streams)+1)
	if p.Format != nil && p.Format.Tags != nil {
		sets = append(sets, p.Format.Tags)
	}
	for _, s := range p.Streams {
		if s.Tags != nil {
			sets = append(sets, s.Tags)
		}
	}
	return sets
}

func lookupTag(tags map[string]string, key string) string {
	if v, ok := tags[key]; ok {
		return v
	}
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

var probeTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
}

func parseProbeTime(s string) *time.Time {
	ts := parseRecordedTime(probeTimeLayouts, s)
	if ts == nil || ts.Year() <= 1970 {
		return nil
	}
	return ts
}

// parseRecordedTime keeps the wall clock the device recorded. A stated
// non-UTC offset is kept as is, UTC is shown in the local zone and a
// naive value is taken as local time.
func parseRecordedTime(layouts []string, s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range layouts {
		ts, err := time.ParseInLocation(layout, s, time.Local)
		if err != nil {
			continue
		}
		if _, offset := ts.Zone(); offset == 0 && ts.Location() != time.Local {
			ts = ts.Local()
		}
		return &ts
	}
	return nil
}
