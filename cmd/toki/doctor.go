package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/toki/internal/store"
	"github.com/franz/toki/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure toki can operate correctly.

This command checks:
- ffprobe (optional, improves video timestamps)
- SQLite version and journal integrity
- Source readability and destination writability
- Disk space and network storage tuning

Use this command to troubleshoot issues before a large organize run.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().String("src", "", "Source directory to check (optional)")
	doctorCmd.Flags().String("dest", "", "Destination directory to check (optional)")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== toki doctor ===")
	util.InfoLog("")

	results := []checkResult{
		checkFFprobe(),
		checkSQLite(),
		checkJournal(expandHome(viper.GetString("journal"))),
	}

	srcPath, _ := cmd.Flags().GetString("src")
	srcPath = GetConfigString("source", srcPath)
	destPath, _ := cmd.Flags().GetString("dest")
	destPath = GetConfigString("dest", destPath)

	if srcPath != "" {
		results = append(results, checkSourceDirectory(srcPath), checkDiskSpace(srcPath, "source"))
	}
	if destPath != "" {
		results = append(results, checkDestinationDirectory(destPath))
		if destPath != srcPath {
			results = append(results, checkDiskSpace(destPath, "destination"))
		}
	}
	results = append(results, checkTuning(srcPath, destPath))

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		switch {
		case r.error:
			util.ErrorLog("%s", line)
		case r.warning:
			util.WarnLog("%s", line)
		default:
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before running toki.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed.")
	}

	return nil
}

// checkFFprobe reports the ffprobe version. Missing ffprobe only costs
// video timestamp coverage, so it is a warning.
func checkFFprobe() checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "ffprobe", "-version").CombinedOutput()
	if err != nil {
		return checkResult{
			name:    "ffprobe (optional)",
			warning: true,
			message: "not found (videos without embedded dates fall back to modification time)",
		}
	}

	// "ffprobe version 6.1.1 Copyright ..."
	version := "unknown"
	if parts := strings.Fields(strings.SplitN(string(output), "\n", 2)[0]); len(parts) >= 3 {
		version = parts[2]
	}

	return checkResult{
		name:    "ffprobe (optional)",
		message: fmt.Sprintf("version %s", version),
	}
}

func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkJournal verifies the run journal, which is optional
func checkJournal(path string) checkResult {
	if path == "" {
		return checkResult{
			name:    "Journal",
			message: "disabled (use --journal to record runs)",
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return checkResult{
				name:    "Journal",
				message: fmt.Sprintf("%s (will be created on first run)", path),
			}
		}
		return checkResult{
			name:    "Journal",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Journal",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", path),
		}
	}

	db, err := store.Open(path)
	if err != nil {
		return checkResult{
			name:    "Journal",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", path, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Journal",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	runs, _ := db.CountRuns()
	return checkResult{
		name:    "Journal",
		message: fmt.Sprintf("%s (%s, %d runs)", path, util.FormatBytes(info.Size()), runs),
	}
}

// checkSourceDirectory verifies source directory is readable
func checkSourceDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    "Source directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Source directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return checkResult{
			name:    "Source directory",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	return checkResult{
		name:    "Source directory",
		message: fmt.Sprintf("%s (%d entries)", path, len(entries)),
	}
}

// checkDestinationDirectory verifies the destination is writable, or that
// it could be created. Nothing is left behind.
func checkDestinationDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return checkResult{
				name:    "Destination directory",
				error:   true,
				message: fmt.Sprintf("cannot access %s: %v", path, err),
			}
		}

		parent := filepath.Dir(path)
		for {
			if _, err := os.Stat(parent); err == nil || parent == filepath.Dir(parent) {
				break
			}
			parent = filepath.Dir(parent)
		}
		if res := checkDestinationDirectory(parent); res.error {
			res.message = fmt.Sprintf("cannot create %s: %s", path, res.message)
			return res
		}
		return checkResult{
			name:    "Destination directory",
			message: fmt.Sprintf("%s (will be created)", path),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Destination directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	f, err := os.CreateTemp(path, ".toki-probe-*")
	if err != nil {
		return checkResult{
			name:    "Destination directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(f.Name())

	return checkResult{
		name:    "Destination directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkDiskSpace warns below 10GB free or above 90% used
func checkDiskSpace(path string, label string) checkResult {
	name := fmt.Sprintf("Disk space (%s)", label)

	info, err := util.InspectStorage(path)
	if err != nil {
		return checkResult{
			name:    name,
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}
	if info.TotalBytes == 0 {
		return checkResult{
			name:    name,
			warning: true,
			message: "volume reports no size",
		}
	}

	usedPercent := float64(info.TotalBytes-info.FreeBytes) / float64(info.TotalBytes) * 100

	warning := false
	warningMsg := ""
	if info.FreeBytes < 10<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	message := fmt.Sprintf("%s available%s", util.FormatBytes(int64(info.FreeBytes)), warningMsg)
	if info.Network {
		message += fmt.Sprintf(", network storage (%s)", info.Protocol)
	}

	return checkResult{
		name:    name,
		warning: warning,
		message: message,
	}
}

// checkTuning shows the I/O settings a run would use
func checkTuning(src, dest string) checkResult {
	t := util.AutoTune(src, dest, GetConfigOptionalBool("nas-mode"), viper.GetInt("workers"))
	return checkResult{
		name:    "I/O tuning",
		message: t.String(),
	}
}
