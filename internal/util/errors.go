package util

import (
	"errors"
	"syscall"
)

// Sentinel errors for the failure taxonomy shared by all pipeline stages
var (
	// ErrUnsupported indicates a file extension with no metadata decoder (UnsupportedFormat)
	ErrUnsupported = errors.New("unsupported format")

	// ErrUnreadable indicates the source could not be read (SourceUnreadable)
	ErrUnreadable = errors.New("source unreadable")

	// ErrConflict indicates a destination file conflict (DestinationConflict)
	ErrConflict = errors.New("destination conflict")

	// ErrTransfer indicates an I/O failure while moving or copying (TransferFailure)
	ErrTransfer = errors.New("transfer failed")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPermission indicates a permission error
	ErrPermission = errors.New("permission denied")

	// ErrDiskFull indicates insufficient disk space
	ErrDiskFull = errors.New("disk full")

	// ErrAborted marks work that was never dispatched because the run was cancelled
	ErrAborted = errors.New("run aborted")
)

// ClassifyIOError maps low-level errno values onto the sentinels above so
// reports can group failures by cause. The original error stays in the chain.
func ClassifyIOError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, syscall.ENOSPC):
		return &classifiedError{kind: ErrDiskFull, err: err}
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM), errors.Is(err, syscall.EROFS):
		return &classifiedError{kind: ErrPermission, err: err}
	}
	return err
}

type classifiedError struct {
	kind error
	err  error
}

func (e *classifiedError) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *classifiedError) Unwrap() []error { return []error{e.kind, e.err} }
