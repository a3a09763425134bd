//go:build !linux && !darwin

package util

// Volume inspection is not implemented here; everything reads as local
// with unknown capacity.
func statStorage(path string) (*StorageInfo, error) {
	return &StorageInfo{MountPoint: path}, nil
}
