//go:build darwin

package util

import (
	"strings"
	"syscall"
)

var networkTypeHints = []string{"nfs", "smbfs", "afpfs", "cifs", "webdav", "osxfuse", "macfuse"}

func statStorage(path string) (*StorageInfo, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return nil, err
	}

	info := &StorageInfo{
		Protocol:   cString(st.Fstypename[:]),
		MountPoint: cString(st.Mntonname[:]),
		FreeBytes:  st.Bavail * uint64(st.Bsize),
		TotalBytes: st.Blocks * uint64(st.Bsize),
	}
	lower := strings.ToLower(info.Protocol)
	for _, hint := range networkTypeHints {
		if strings.Contains(lower, hint) {
			info.Network = true
			break
		}
	}
	return info, nil
}

// cString converts a NUL-terminated int8 array
func cString(arr []int8) string {
	b := make([]byte, 0, len(arr))
	for _, c := range arr {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}
