package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/franz/toki/internal/execute"
	"github.com/franz/toki/internal/meta"
	"github.com/franz/toki/internal/report"
	"github.com/franz/toki/internal/util"
	"github.com/spf13/viper"
)

// TOKI_EVENT_LOG maps to the event-log key
var envKeyReplacer = strings.NewReplacer("-", "_")

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (TOKI_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigOptionalBool returns nil unless key was set explicitly, so
// callers can fall back to detection
func GetConfigOptionalBool(key string) *bool {
	if !viper.IsSet(key) {
		return nil
	}
	val := viper.GetBool(key)
	return &val
}

// settings is the validated configuration of one rename or organize run
type settings struct {
	DryRun     bool
	Copy       bool
	Rename     bool
	Workers    int
	Hash       meta.Algorithm
	Verify     execute.VerifyMode
	Journal    string
	EventLog   string
	EventLevel report.EventLevel
	Report     string
	NASMode    *bool
	FFprobe    bool
	Extensions []string
}

func loadSettings() (*settings, error) {
	hash, err := meta.ParseAlgorithm(viper.GetString("hash"))
	if err != nil {
		return nil, err
	}
	verify, err := execute.ParseVerifyMode(viper.GetString("verify"))
	if err != nil {
		return nil, err
	}
	level, err := report.ParseLevel(viper.GetString("event-level"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrInvalidConfig, err)
	}

	workers := viper.GetInt("workers")
	if workers < 0 {
		return nil, fmt.Errorf("%w: workers must not be negative, got %d", util.ErrInvalidConfig, workers)
	}

	return &settings{
		DryRun:     viper.GetBool("dry-run"),
		Copy:       viper.GetBool("copy"),
		Rename:     viper.GetBool("rename"),
		Workers:    workers,
		Hash:       hash,
		Verify:     verify,
		Journal:    expandHome(viper.GetString("journal")),
		EventLog:   expandHome(viper.GetString("event-log")),
		EventLevel: level,
		Report:     expandHome(viper.GetString("report")),
		NASMode:    GetConfigOptionalBool("nas-mode"),
		FFprobe:    viper.GetBool("ffprobe"),
		Extensions: viper.GetStringSlice("extensions"),
	}, nil
}

// expandHome resolves a leading ~/ from config files, which no shell expands
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
