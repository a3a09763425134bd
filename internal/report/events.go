package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventDiscover  EventType = "discover"
	EventExtract   EventType = "extract"
	EventPlan      EventType = "plan"
	EventSkip      EventType = "skip"
	EventDuplicate EventType = "duplicate"
	EventConflict  EventType = "conflict"
	EventTransfer  EventType = "transfer"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel accepts debug, info, warning/warn and error
func ParseLevel(s string) (EventLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return "", fmt.Errorf("unknown event level %q", s)
}

// Event is one line of the JSONL audit trail
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	RunID      string            `json:"run_id,omitempty"`
	SrcPath    string            `json:"src_path,omitempty"`
	DestPath   string            `json:"dest_path,omitempty"`
	Action     string            `json:"action,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Digest     string            `json:"digest,omitempty"`
	Confidence string            `json:"confidence,omitempty"`
	Bytes      int64             `json:"bytes,omitempty"`
	Duration   int64             `json:"duration_ms,omitempty"`
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file. A nil *EventLogger is valid
// and discards everything, so callers never need to check.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates events-<timestamp>.jsonl in outputDir.
// Events below minLevel are dropped.
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := fmt.Sprintf("events-%s.jsonl", time.Now().Format("20060102-150405"))
	path := filepath.Join(outputDir, filename)

	// O_APPEND so two runs in the same second share one file safely
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// SetRunID stamps subsequent events with the run identifier
func (l *EventLogger) SetRunID(id string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runID = id
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}
	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// LogDiscover logs a discovered file
func (l *EventLogger) LogDiscover(srcPath string, sizeBytes int64) error {
	return l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventDiscover,
		SrcPath: srcPath,
		Bytes:   sizeBytes,
	})
}

// LogExtract logs the metadata and digest gathered for a file
func (l *EventLogger) LogExtract(srcPath, source, confidence, digest string, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:      level,
		Event:      EventExtract,
		SrcPath:    srcPath,
		Confidence: confidence,
		Digest:     digest,
		Error:      errMsg,
		Extra:      map[string]string{"source": source},
	})
}

// LogPlan logs an assigned destination
func (l *EventLogger) LogPlan(srcPath, destPath, action string) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventPlan,
		SrcPath:  srcPath,
		DestPath: destPath,
		Action:   action,
	})
}

// LogSkip logs a record finalized without a transfer
func (l *EventLogger) LogSkip(srcPath, destPath, reason string) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventSkip,
		SrcPath:  srcPath,
		DestPath: destPath,
		Reason:   reason,
	})
}

// LogDuplicate logs a byte-identical file that will not be transferred
func (l *EventLogger) LogDuplicate(srcPath, duplicateOf, digest string) error {
	return l.Log(&Event{
		Level:    LevelWarning,
		Event:    EventDuplicate,
		SrcPath:  srcPath,
		DestPath: duplicateOf,
		Digest:   digest,
	})
}

// LogConflict logs a destination that was taken and passed over
func (l *EventLogger) LogConflict(srcPath, destPath, reason string) error {
	return l.Log(&Event{
		Level:    LevelDebug,
		Event:    EventConflict,
		SrcPath:  srcPath,
		DestPath: destPath,
		Reason:   reason,
	})
}

// LogTransfer logs a move or copy result
func (l *EventLogger) LogTransfer(srcPath, destPath, action string, bytes int64, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventTransfer,
		SrcPath:  srcPath,
		DestPath: destPath,
		Action:   action,
		Bytes:    bytes,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, srcPath string, err error) error {
	return l.Log(&Event{
		Level:   LevelError,
		Event:   event,
		SrcPath: srcPath,
		Error:   err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
