package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/franz/toki/internal/media"
	"github.com/franz/toki/internal/util"
)

func record(path string, status media.Status) *media.Record {
	r := media.NewRecord(path, nil)
	r.Status = status
	r.Digest = "5eb63bbbe01eeed093cb22bb8f5acdc3"
	return r
}

func sampleRecords() []*media.Record {
	captured := time.Date(2024, 1, 23, 10, 15, 0, 0, time.Local)

	applied := record("/photos/b.jpg", media.StatusApplied)
	applied.SetMetadata(&captured, nil, "exif:DateTimeOriginal")
	applied.PlannedPath = "/library/2024/01/23/b.jpg"
	applied.Action = media.ActionCopy

	inPlace := record("/photos/c.jpg", media.StatusSkipped)
	inPlace.Reason = media.ReasonInPlace

	dup := record("/photos/d.jpg", media.StatusSkipped)
	dup.Reason = media.ReasonDuplicate
	dup.DuplicateOf = "/photos/b.jpg"

	unsupported := media.NewRecord("/photos/notes.txt", nil)
	unsupported.Status = media.StatusSkipped
	unsupported.Reason = media.ReasonUnsupported

	failed := record("/photos/a.jpg", media.StatusFailed)
	failed.PlannedPath = "/library/2024/01/01/a.jpg"
	failed.Action = media.ActionCopy
	failed.Err = fmt.Errorf("%w: copy: %w", util.ErrTransfer, util.ClassifyIOError(syscall.ENOSPC))

	aborted := record("/photos/e.jpg", media.StatusFailed)
	aborted.Err = util.ErrAborted

	return []*media.Record{applied, inPlace, dup, unsupported, failed, aborted}
}

func TestBuildSummary(t *testing.T) {
	s := BuildSummary(sampleRecords())

	if s.Discovered != 6 {
		t.Errorf("Discovered = %d, want 6", s.Discovered)
	}
	checks := map[media.Status]int{
		media.StatusApplied: 1,
		media.StatusSkipped: 3,
		media.StatusFailed:  2,
		media.StatusPlanned: 0,
	}
	for status, want := range checks {
		if got := s.Count(status); got != want {
			t.Errorf("Count(%s) = %d, want %d", status, got, want)
		}
	}
	if s.InPlace != 1 || s.Duplicates != 1 || s.Unsupported != 1 {
		t.Errorf("skip reasons = %d/%d/%d, want 1/1/1", s.InPlace, s.Duplicates, s.Unsupported)
	}
	if s.Accurate != 1 || s.Coarse != 4 {
		t.Errorf("confidence = %d accurate / %d coarse, want 1/4", s.Accurate, s.Coarse)
	}
	if !s.HasFailures() {
		t.Error("HasFailures() = false")
	}

	if len(s.Failures) != 2 || s.Failures[0].SrcPath != "/photos/a.jpg" {
		t.Fatalf("Failures = %+v, want sorted a.jpg, e.jpg", s.Failures)
	}
	if !strings.Contains(s.Failures[0].Error, "disk full") {
		t.Errorf("failure cause = %q, want disk full", s.Failures[0].Error)
	}

	if len(s.Transformations) != 1 || s.Transformations[0].Dest != "/library/2024/01/23/b.jpg" {
		t.Errorf("Transformations = %+v", s.Transformations)
	}

	categories := make(map[string]int)
	for _, e := range s.TopErrors {
		categories[e.Error] = e.Count
	}
	if categories[util.ErrDiskFull.Error()] != 1 || categories[util.ErrAborted.Error()] != 1 {
		t.Errorf("TopErrors = %+v", s.TopErrors)
	}
}

func TestBuildSummaryDryRun(t *testing.T) {
	var records []*media.Record
	for _, name := range []string{"z.jpg", "a.jpg", "m.jpg"} {
		r := record("/in/"+name, media.StatusPlanned)
		r.PlannedPath = "/in/renamed_" + name
		r.Action = media.ActionMove
		records = append(records, r)
	}

	s := BuildSummary(records)
	s.DryRun = true
	if s.Count(media.StatusPlanned) != 3 || s.HasFailures() {
		t.Errorf("Planned = %d, failures %v", s.Count(media.StatusPlanned), s.HasFailures())
	}

	for i, want := range []string{"/in/a.jpg", "/in/m.jpg", "/in/z.jpg"} {
		if s.Transformations[i].Source != want {
			t.Errorf("Transformations[%d] = %s, want %s", i, s.Transformations[i].Source, want)
		}
	}

	var buf bytes.Buffer
	s.Print(&buf)
	out := buf.String()
	if !strings.Contains(out, "dry run") {
		t.Error("dry run summary does not say so")
	}
	if !strings.Contains(out, "/in/a.jpg -> /in/renamed_a.jpg") {
		t.Errorf("dry run summary missing transformation:\n%s", out)
	}
}

func TestSummaryPrintListsFailures(t *testing.T) {
	s := BuildSummary(sampleRecords())

	var buf bytes.Buffer
	s.Print(&buf)
	out := buf.String()

	for _, want := range []string{"Applied:      1", "Failed:       2", "/photos/a.jpg:", "/photos/e.jpg: run aborted"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Planned transformations") {
		t.Error("real run should not list planned transformations")
	}
}

func TestErrorCategory(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "unknown error"},
		{errors.New("boom"), "other"},
		{fmt.Errorf("%w: x", util.ErrTransfer), "transfer failed"},
		{fmt.Errorf("%w: %w", util.ErrTransfer, util.ClassifyIOError(syscall.EACCES)), "permission denied"},
		{fmt.Errorf("%w: read", util.ErrUnreadable), "source unreadable"},
		{util.ErrAborted, "run aborted"},
	}
	for _, tt := range tests {
		if got := errorCategory(tt.err); got != tt.want {
			t.Errorf("errorCategory(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "reports", "summary.md")

	s := BuildSummary(sampleRecords())
	s.Mode = "organize"
	s.RunID = "run-123"
	s.SourcePath = "/photos"
	s.DestinationPath = "/library"
	s.BytesTransferred = 2048

	if err := WriteMarkdownReport(s, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	md := string(content)

	expected := []string{
		"# toki - Summary Report",
		"**Run:** `run-123`",
		"| Mode | organize |",
		"| Files Discovered | 6 |",
		"| failed | 2 |",
		"| duplicate | 1 |",
		"## ⚠️ Top Errors",
		"## 🚨 Failures",
		"`/photos/a.jpg`",
		"## 📁 Transformations",
		"2.0 KiB",
	}
	for _, want := range expected {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown report missing %q", want)
		}
	}
}

func TestWriteMarkdownReportEmpty(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "empty.md")

	if err := WriteMarkdownReport(BuildSummary(nil), outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}
	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	md := string(content)
	if !strings.Contains(md, "| failed | 0 |") {
		t.Error("empty report should still show the failed count")
	}
	if strings.Contains(md, "Failures") || strings.Contains(md, "Transformations") {
		t.Error("empty report should omit failure and transformation sections")
	}
}

func TestTruncatePath(t *testing.T) {
	testCases := []struct {
		name   string
		path   string
		maxLen int
	}{
		{"Short path - no truncation", "/photos/IMG_0001.jpg", 50},
		{"Long path - truncate middle", "/very/long/path/to/some/photo/collection/2024/01/23/IMG_0001.jpg", 30},
		{"Exactly at limit", "/photos/a.jpg", 13},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := truncatePath(tc.path, tc.maxLen)

			if len(result) > tc.maxLen {
				t.Errorf("Result length %d exceeds maxLen %d", len(result), tc.maxLen)
			}
			if len(tc.path) > tc.maxLen && !strings.Contains(result, "...") {
				t.Error("Expected truncated path to contain '...'")
			}
			if len(tc.path) <= tc.maxLen && result != tc.path {
				t.Errorf("Short path should not be truncated: expected '%s', got '%s'", tc.path, result)
			}
		})
	}
}
