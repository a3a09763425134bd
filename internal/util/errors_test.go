package util

import (
	"errors"
	"os"
	"syscall"
	"testing"
)

func TestClassifyIOError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"disk full", &os.PathError{Op: "write", Path: "/d/a.jpg", Err: syscall.ENOSPC}, ErrDiskFull},
		{"permission", &os.PathError{Op: "open", Path: "/d/a.jpg", Err: syscall.EACCES}, ErrPermission},
		{"read-only", &os.LinkError{Op: "rename", Old: "/a", New: "/b", Err: syscall.EROFS}, ErrPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyIOError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("Expected %v in chain, got %v", tt.want, got)
			}
			if !errors.Is(got, tt.err) {
				t.Error("Original error must stay in the chain")
			}
		})
	}

	plain := errors.New("boom")
	if ClassifyIOError(plain) != plain {
		t.Error("Unclassified errors should be returned unchanged")
	}
	if ClassifyIOError(nil) != nil {
		t.Error("nil should stay nil")
	}
}
