package util

import (
	"fmt"
	"runtime"
)

// Tuning holds I/O settings derived from where the library lives
type Tuning struct {
	Workers    int
	BufferSize int
	Retry      *RetryConfig
	NASMode    bool
	Storage    *StorageInfo // volume that triggered NAS mode, if detected
}

// DefaultWorkers leaves one core for the collector and the OS
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// AutoTune picks worker count, buffer size and retry policy for a run
// touching src and dest. A non-nil nasMode overrides detection.
func AutoTune(src, dest string, nasMode *bool, workers int) *Tuning {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	t := &Tuning{
		Workers:    workers,
		BufferSize: 128 * 1024,
		Retry:      DefaultRetryConfig(),
	}

	if nasMode != nil {
		if *nasMode {
			t.applyNAS()
			DebugLog("NAS mode: forced on")
		} else {
			DebugLog("NAS mode: forced off")
		}
		return t
	}

	for _, p := range []string{src, dest} {
		if p == "" {
			continue
		}
		info, err := InspectStorage(p)
		if err != nil {
			DebugLog("Storage detection failed for %s: %v", p, err)
			continue
		}
		if info.Network {
			t.Storage = info
			t.applyNAS()
			InfoLog("Network storage detected at %s (%s): %d workers, %dKB buffers, %d attempts",
				info.MountPoint, info.Protocol, t.Workers, t.BufferSize/1024, t.Retry.MaxAttempts)
			InfoLog("Use --nas-mode=false to disable auto-tuning")
			break
		}
	}
	return t
}

func (t *Tuning) applyNAS() {
	t.NASMode = true
	// NAS boxes choke on many concurrent streams
	if t.Workers > 4 {
		t.Workers = 4
	}
	if t.Workers < 2 {
		t.Workers = 2
	}
	t.BufferSize = 256 * 1024
	t.Retry = NASRetryConfig()
}

// String renders the settings for `toki doctor`
func (t *Tuning) String() string {
	if !t.NASMode {
		return fmt.Sprintf("local: %d workers, %dKB buffers", t.Workers, t.BufferSize/1024)
	}
	where := "forced"
	if t.Storage != nil {
		where = fmt.Sprintf("%s on %s", t.Storage.Protocol, t.Storage.MountPoint)
	}
	return fmt.Sprintf("NAS (%s): %d workers, %dKB buffers, %d attempts",
		where, t.Workers, t.BufferSize/1024, t.Retry.MaxAttempts)
}
