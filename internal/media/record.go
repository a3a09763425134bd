package media

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidTransition is returned when a status change would move a
// record backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the lifecycle position of a record within one run
type Status int

const (
	StatusPending Status = iota
	StatusPlanned
	StatusApplied
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPlanned:
		return "planned"
	case StatusApplied:
		return "applied"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transition is allowed
func (s Status) Terminal() bool {
	return s == StatusApplied || s == StatusSkipped || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusPlanned:
		return 1
	}
	return 2
}

// Confidence grades where a record's timestamp came from
type Confidence int

const (
	// Coarse: no embedded timestamp, filesystem mtime used instead
	Coarse Confidence = iota
	// Accurate: timestamp read from embedded metadata
	Accurate
)

// Code is the single letter used in canonical filenames
func (c Confidence) Code() string {
	if c == Accurate {
		return "A"
	}
	return "C"
}

func (c Confidence) String() string {
	if c == Accurate {
		return "accurate"
	}
	return "coarse"
}

// Classify grades a record by whether embedded metadata supplied a timestamp.
func Classify(capturedAt *time.Time) Confidence {
	if capturedAt != nil {
		return Accurate
	}
	return Coarse
}

// Action is the filesystem operation planned for a record
type Action string

const (
	ActionMove Action = "move"
	ActionCopy Action = "copy"
	ActionNone Action = "none"
)

// Skip reasons recorded on Skipped records
const (
	ReasonUnsupported = "unsupported format"
	ReasonInPlace     = "already in place"
	ReasonDuplicate   = "duplicate"
)

// UnknownCamera substitutes for an absent camera model
const UnknownCamera = "Unknown"

// Record is one discovered file and everything learned about it during a run
type Record struct {
	SourcePath string // absolute, identity key
	Extension  string // lower-cased, with leading dot
	Size       int64
	ModTime    time.Time

	CapturedAt     *time.Time // nil unless read from embedded metadata
	MetadataSource string
	CameraModel    string
	Confidence     Confidence

	Digest      string // full hex content digest
	ContentHash string // 8-character display form

	PlannedName string
	PlannedPath string
	Action      Action

	Status      Status
	Reason      string
	Err         error
	DuplicateOf string // source path of the record or file this one duplicates
}

// NewRecord creates a pending record for a discovered file
func NewRecord(path string, info fs.FileInfo) *Record {
	r := &Record{
		SourcePath:  path,
		Extension:   Ext(path),
		CameraModel: UnknownCamera,
		Action:      ActionNone,
	}
	if info != nil {
		r.Size = info.Size()
		r.ModTime = info.ModTime()
	}
	return r
}

// Ext returns the lower-cased extension of path, including the dot
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Timestamp is the instant used for naming and date folders: the embedded
// capture time when known, otherwise the filesystem modification time.
func (r *Record) Timestamp() time.Time {
	if r.CapturedAt != nil {
		return *r.CapturedAt
	}
	return r.ModTime
}

// SetMetadata fills the extraction results and classifies the record.
func (r *Record) SetMetadata(capturedAt *time.Time, camera *string, source string) {
	r.CapturedAt = capturedAt
	r.MetadataSource = source
	r.CameraModel = UnknownCamera
	if camera != nil && strings.TrimSpace(*camera) != "" {
		r.CameraModel = *camera
	}
	r.Confidence = Classify(capturedAt)
}

// Advance moves the record to status to. Transitions must increase rank
// (Pending < Planned < terminal) and never leave a terminal state.
func (r *Record) Advance(to Status) error {
	if r.Status.Terminal() || to.rank() <= r.Status.rank() {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, r.Status, to, r.SourcePath)
	}
	r.Status = to
	return nil
}

// Skip finalizes the record as Skipped with a reason
func (r *Record) Skip(reason string) error {
	if err := r.Advance(StatusSkipped); err != nil {
		return err
	}
	r.Reason = reason
	return nil
}

// Fail finalizes the record as Failed, keeping the cause
func (r *Record) Fail(cause error) error {
	if err := r.Advance(StatusFailed); err != nil {
		return err
	}
	r.Err = cause
	return nil
}

// Transformation is a planned source -> destination mapping
type Transformation struct {
	Source string
	Dest   string
	Action Action
}

// Transformation returns the planned mapping, or false when the record was
// never planned for a filesystem change.
func (r *Record) Transformation() (Transformation, bool) {
	if r.PlannedPath == "" || r.Action == ActionNone {
		return Transformation{}, false
	}
	return Transformation{Source: r.SourcePath, Dest: r.PlannedPath, Action: r.Action}, true
}
