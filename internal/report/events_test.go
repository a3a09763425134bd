package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, level EventLevel) *EventLogger {
	t.Helper()
	logger, err := NewEventLogger(t.TempDir(), level)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var decoded Event
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("Failed to decode line %d: %v", len(events)+1, err)
		}
		events = append(events, decoded)
	}
	return events
}

func TestNewEventLogger(t *testing.T) {
	logger := newTestLogger(t, LevelDebug)

	if _, err := os.Stat(logger.Path()); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.Path())
	}
	filename := filepath.Base(logger.Path())
	if !strings.HasPrefix(filename, "events-") || !strings.HasSuffix(filename, ".jsonl") {
		t.Errorf("Event log filename format incorrect: %s", filename)
	}
}

func TestEventLogger_Helpers(t *testing.T) {
	logger := newTestLogger(t, LevelDebug)
	logger.SetRunID("run-1")

	logger.LogDiscover("/in/IMG_0001.jpg", 2048)
	logger.LogExtract("/in/IMG_0001.jpg", "exif:DateTimeOriginal", "accurate", "a3f2d1e8aa", nil)
	logger.LogPlan("/in/IMG_0001.jpg", "/in/20241130_143022_A_iPhone_15_Pro_a3f2d1e8.jpg", "move")
	logger.LogConflict("/in/b.jpg", "/out/2024/01/23/b.jpg", "exists")
	logger.LogDuplicate("/in/copy.jpg", "/in/IMG_0001.jpg", "a3f2d1e8aa")
	logger.LogSkip("/in/x.jpg", "/in/x.jpg", "already in place")
	logger.LogTransfer("/in/IMG_0001.jpg", "/out/a.jpg", "copy", 2048, 250*time.Millisecond, nil)
	logger.LogTransfer("/in/c.jpg", "/out/c.jpg", "move", 0, 0, errors.New("disk full"))
	logger.LogError(EventExtract, "/in/d.jpg", errors.New("unreadable"))
	logger.Close()

	events := readEvents(t, logger.Path())
	wantTypes := []EventType{
		EventDiscover, EventExtract, EventPlan, EventConflict, EventDuplicate,
		EventSkip, EventTransfer, EventTransfer, EventExtract,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("Expected %d events, got %d", len(wantTypes), len(events))
	}
	for i, want := range wantTypes {
		if events[i].Event != want {
			t.Errorf("Event %d: type %q, want %q", i, events[i].Event, want)
		}
		if events[i].RunID != "run-1" {
			t.Errorf("Event %d: run_id %q", i, events[i].RunID)
		}
		if events[i].Timestamp.IsZero() {
			t.Errorf("Event %d: timestamp not set", i)
		}
	}

	if events[0].Bytes != 2048 {
		t.Errorf("discover bytes = %d", events[0].Bytes)
	}
	if events[1].Extra["source"] != "exif:DateTimeOriginal" || events[1].Confidence != "accurate" {
		t.Errorf("extract event incomplete: %+v", events[1])
	}
	if events[4].Level != LevelWarning || events[4].DestPath != "/in/IMG_0001.jpg" {
		t.Errorf("duplicate event incorrect: %+v", events[4])
	}
	if events[6].Duration != 250 || events[6].Level != LevelInfo {
		t.Errorf("transfer event incorrect: %+v", events[6])
	}
	if events[7].Level != LevelError || events[7].Error != "disk full" {
		t.Errorf("failed transfer event incorrect: %+v", events[7])
	}
}

func TestEventLogger_LevelFilter(t *testing.T) {
	logger := newTestLogger(t, LevelWarning)

	logger.LogDiscover("/in/a.jpg", 1)
	logger.LogPlan("/in/a.jpg", "/out/a.jpg", "move")
	logger.LogDuplicate("/in/b.jpg", "/in/a.jpg", "ff")
	logger.LogError(EventTransfer, "/in/c.jpg", errors.New("boom"))
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 2 {
		t.Fatalf("Expected 2 events at warning level, got %d", len(events))
	}
}

func TestEventLogger_ConcurrentWrites(t *testing.T) {
	logger := newTestLogger(t, LevelDebug)

	const numGoroutines = 10
	const eventsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				if err := logger.LogPlan(fmt.Sprintf("/in/%d-%d.jpg", id, j), "/out/x.jpg", "copy"); err != nil {
					t.Errorf("Concurrent log failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	if got := len(readEvents(t, logger.Path())); got != numGoroutines*eventsPerGoroutine {
		t.Errorf("Expected %d events, got %d", numGoroutines*eventsPerGoroutine, got)
	}
}

func TestEventLogger_NullLogger(t *testing.T) {
	logger := NullLogger()

	if err := logger.Log(&Event{Level: LevelInfo, Event: EventPlan}); err != nil {
		t.Errorf("NullLogger.Log should not return error, got: %v", err)
	}
	if err := logger.LogTransfer("/a", "/b", "move", 1, time.Second, nil); err != nil {
		t.Errorf("NullLogger.LogTransfer should not return error, got: %v", err)
	}
	logger.SetRunID("ignored")
	if err := logger.Close(); err != nil {
		t.Errorf("NullLogger.Close should not return error, got: %v", err)
	}
	if path := logger.Path(); path != "" {
		t.Errorf("NullLogger.Path should return empty string, got: %s", path)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    EventLevel
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"DEBUG", LevelDebug, false},
		{"warn", LevelWarning, false},
		{"error", LevelError, false},
		{"loud", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = (%q, %v)", tt.in, got, err)
		}
	}
}
