package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// StorageInfo describes the volume that holds a path
type StorageInfo struct {
	Network    bool   // SMB/NFS/FUSE-remote mount
	Protocol   string // filesystem type name, empty when unknown
	MountPoint string
	FreeBytes  uint64
	TotalBytes uint64
}

// InspectStorage reports on the volume holding path. Paths that do not
// exist yet are resolved to their nearest existing ancestor, so a
// destination root can be inspected before it is created.
func InspectStorage(path string) (*StorageInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	probe := abs
	for {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return nil, fmt.Errorf("no existing ancestor for %s: %w", path, ErrNotFound)
		}
		probe = parent
	}

	return statStorage(probe)
}

// OnNetworkStorage is a convenience wrapper that treats errors as local
func OnNetworkStorage(path string) bool {
	info, err := InspectStorage(path)
	if err != nil {
		return false
	}
	return info.Network
}
