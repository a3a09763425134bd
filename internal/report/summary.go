package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/toki/internal/media"
	"github.com/franz/toki/internal/util"
)

// Summary is the end-of-run report
type Summary struct {
	GeneratedAt time.Time
	Duration    time.Duration

	RunID           string
	Mode            string
	DryRun          bool
	SourcePath      string
	DestinationPath string
	JournalPath     string
	EventLogPath    string

	Discovered int
	Counts     map[media.Status]int

	Accurate      int
	Coarse        int
	Unsupported   int
	InPlace       int
	Duplicates    int
	Disambiguated int

	BytesTransferred int64

	Failures        []Failure
	TopErrors       []ErrorSummary
	Transformations []media.Transformation
}

// Failure is one Failed record and its cause
type Failure struct {
	SrcPath  string
	DestPath string
	Error    string
}

// ErrorSummary represents an error category with its count
type ErrorSummary struct {
	Error string
	Count int
}

// BuildSummary tallies records into a summary. Failures and
// transformations are sorted by source path.
func BuildSummary(records []*media.Record) *Summary {
	s := &Summary{
		GeneratedAt: time.Now(),
		Discovered:  len(records),
		Counts:      make(map[media.Status]int),
	}

	categories := make(map[string]int)
	for _, r := range records {
		s.Counts[r.Status]++

		switch r.Reason {
		case media.ReasonUnsupported:
			s.Unsupported++
			continue
		case media.ReasonInPlace:
			s.InPlace++
		case media.ReasonDuplicate:
			s.Duplicates++
		}

		if r.Digest != "" {
			if r.Confidence == media.Accurate {
				s.Accurate++
			} else {
				s.Coarse++
			}
		}

		if r.Status == media.StatusFailed {
			msg := "unknown error"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			s.Failures = append(s.Failures, Failure{
				SrcPath:  r.SourcePath,
				DestPath: r.PlannedPath,
				Error:    msg,
			})
			categories[errorCategory(r.Err)]++
		}

		if r.Status == media.StatusPlanned || r.Status == media.StatusApplied {
			if t, ok := r.Transformation(); ok {
				s.Transformations = append(s.Transformations, t)
			}
		}
	}

	sort.Slice(s.Failures, func(i, j int) bool {
		return s.Failures[i].SrcPath < s.Failures[j].SrcPath
	})
	sort.Slice(s.Transformations, func(i, j int) bool {
		return s.Transformations[i].Source < s.Transformations[j].Source
	})

	for msg, count := range categories {
		s.TopErrors = append(s.TopErrors, ErrorSummary{Error: msg, Count: count})
	}
	sort.Slice(s.TopErrors, func(i, j int) bool {
		if s.TopErrors[i].Count != s.TopErrors[j].Count {
			return s.TopErrors[i].Count > s.TopErrors[j].Count
		}
		return s.TopErrors[i].Error < s.TopErrors[j].Error
	})

	return s
}

// Count returns the number of records that ended in status
func (s *Summary) Count(status media.Status) int {
	return s.Counts[status]
}

// HasFailures reports whether any record ended Failed
func (s *Summary) HasFailures() bool {
	return s.Counts[media.StatusFailed] > 0
}

// errorCategory groups failure causes by sentinel
func errorCategory(err error) string {
	for _, sentinel := range []error{
		util.ErrAborted,
		util.ErrDiskFull,
		util.ErrPermission,
		util.ErrConflict,
		util.ErrUnreadable,
		util.ErrTransfer,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	if err == nil {
		return "unknown error"
	}
	return "other"
}

// Print writes the human-readable summary. Dry runs also list every planned
// transformation.
func (s *Summary) Print(w io.Writer) {
	title := "Summary"
	if s.DryRun {
		title = "Summary (dry run, nothing was changed)"
	}
	fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
	fmt.Fprintf(w, "Discovered:   %d\n", s.Discovered)
	if s.DryRun {
		fmt.Fprintf(w, "Planned:      %d\n", s.Count(media.StatusPlanned))
	} else {
		fmt.Fprintf(w, "Applied:      %d (%s)\n", s.Count(media.StatusApplied), util.FormatBytes(s.BytesTransferred))
	}
	fmt.Fprintf(w, "Skipped:      %d (in place %d, duplicates %d, unsupported %d)\n",
		s.Count(media.StatusSkipped), s.InPlace, s.Duplicates, s.Unsupported)
	fmt.Fprintf(w, "Failed:       %d\n", s.Count(media.StatusFailed))
	fmt.Fprintf(w, "Confidence:   %d accurate, %d coarse\n", s.Accurate, s.Coarse)
	if s.Disambiguated > 0 {
		fmt.Fprintf(w, "Renamed to avoid collisions: %d\n", s.Disambiguated)
	}
	if s.Duration > 0 {
		fmt.Fprintf(w, "Elapsed:      %s\n", s.Duration.Round(time.Millisecond))
	}

	if s.DryRun && len(s.Transformations) > 0 {
		fmt.Fprintf(w, "\nPlanned transformations:\n")
		for _, t := range s.Transformations {
			fmt.Fprintf(w, "  %-4s %s -> %s\n", t.Action, t.Source, t.Dest)
		}
	}

	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures:\n")
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.SrcPath, f.Error)
		}
	}
}

// WriteMarkdownReport writes the summary as Markdown
func WriteMarkdownReport(s *Summary, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# toki - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", s.GeneratedAt.Format("2006-01-02 15:04:05")))
	if s.RunID != "" {
		md.WriteString(fmt.Sprintf("**Run:** `%s`\n\n", s.RunID))
	}
	if s.JournalPath != "" {
		md.WriteString(fmt.Sprintf("**Journal:** `%s`\n\n", s.JournalPath))
	}
	if s.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", s.EventLogPath))
	}
	md.WriteString("---\n\n")

	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	if s.Mode != "" {
		mode := s.Mode
		if s.DryRun {
			mode += " (dry run)"
		}
		md.WriteString(fmt.Sprintf("| Mode | %s |\n", mode))
	}
	if s.SourcePath != "" {
		md.WriteString(fmt.Sprintf("| Source | `%s` |\n", s.SourcePath))
	}
	if s.DestinationPath != "" {
		md.WriteString(fmt.Sprintf("| Destination | `%s` |\n", s.DestinationPath))
	}
	md.WriteString(fmt.Sprintf("| Files Discovered | %d |\n", s.Discovered))
	md.WriteString(fmt.Sprintf("| Accurate Timestamps | %d |\n", s.Accurate))
	md.WriteString(fmt.Sprintf("| Coarse Timestamps | %d |\n", s.Coarse))
	if s.Duration > 0 {
		md.WriteString(fmt.Sprintf("| Duration | %s |\n", s.Duration.Round(time.Second)))
	}
	md.WriteString("\n")

	md.WriteString("## 📋 Outcome\n\n")
	md.WriteString("| Status | Count |\n")
	md.WriteString("|--------|-------|\n")
	for _, status := range []media.Status{media.StatusPlanned, media.StatusApplied, media.StatusSkipped, media.StatusFailed} {
		if n := s.Count(status); n > 0 || status == media.StatusFailed {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", status, n))
		}
	}
	md.WriteString("\n")

	if s.Count(media.StatusSkipped) > 0 {
		md.WriteString("| Skip Reason | Count |\n")
		md.WriteString("|-------------|-------|\n")
		md.WriteString(fmt.Sprintf("| %s | %d |\n", media.ReasonInPlace, s.InPlace))
		md.WriteString(fmt.Sprintf("| %s | %d |\n", media.ReasonDuplicate, s.Duplicates))
		md.WriteString(fmt.Sprintf("| %s | %d |\n", media.ReasonUnsupported, s.Unsupported))
		md.WriteString("\n")
	}

	if s.BytesTransferred > 0 {
		md.WriteString(fmt.Sprintf("**Bytes transferred:** %s\n\n", util.FormatBytes(s.BytesTransferred)))
	}

	if len(s.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, e := range s.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", e.Count, e.Error))
		}
		md.WriteString("\n")
	}

	if len(s.Failures) > 0 {
		md.WriteString("## 🚨 Failures\n\n")
		md.WriteString("| Source | Destination | Error |\n")
		md.WriteString("|--------|-------------|-------|\n")
		for _, f := range s.Failures {
			md.WriteString(fmt.Sprintf("| `%s` | `%s` | %s |\n",
				truncatePath(f.SrcPath, 60),
				truncatePath(f.DestPath, 60),
				escapeCell(f.Error)))
		}
		md.WriteString("\n")
	}

	if len(s.Transformations) > 0 {
		heading := "## 📁 Transformations\n\n"
		if s.DryRun {
			heading = "## 📁 Planned Transformations\n\n"
		}
		md.WriteString(heading)
		md.WriteString("| Action | Source | Destination |\n")
		md.WriteString("|--------|--------|-------------|\n")
		for _, t := range s.Transformations {
			md.WriteString(fmt.Sprintf("| %s | `%s` | `%s` |\n",
				t.Action, truncatePath(t.Source, 60), truncatePath(t.Dest, 60)))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by toki*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Keep start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
