//go:build linux

package util

import (
	"bufio"
	"os"
	"strings"
	"syscall"
)

// Kernel VFS magic numbers for remote filesystems
var networkMagic = map[uint32]string{
	0x6969:     "nfs",
	0xff534d42: "cifs",
	0x517b:     "smb",
	0xfe534d42: "smb2",
	0x564c:     "ncp",
}

var networkTypeHints = []string{"nfs", "cifs", "smb", "ncpfs", "fuse.sshfs", "fuse.rclone"}

func statStorage(path string) (*StorageInfo, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return nil, err
	}

	info := &StorageInfo{
		FreeBytes:  st.Bavail * uint64(st.Bsize),
		TotalBytes: st.Blocks * uint64(st.Bsize),
	}
	if proto, ok := networkMagic[uint32(st.Type)]; ok {
		info.Network = true
		info.Protocol = proto
	}

	mounts, err := readMounts("/proc/self/mounts")
	if err != nil {
		return info, nil
	}
	if mp, fsType := longestMount(mounts, path); mp != "" {
		info.MountPoint = mp
		if info.Protocol == "" {
			info.Protocol = fsType
		}
		lower := strings.ToLower(fsType)
		for _, hint := range networkTypeHints {
			if strings.Contains(lower, hint) {
				info.Network = true
				info.Protocol = lower
				break
			}
		}
	}
	return info, nil
}

// readMounts returns mount point -> filesystem type
func readMounts(file string) (map[string]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mounts := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		// device mountpoint fstype options dump pass
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[fields[1]] = fields[2]
	}
	return mounts, sc.Err()
}

func longestMount(mounts map[string]string, path string) (string, string) {
	best, bestType := "", ""
	for mp, fsType := range mounts {
		if IsWithin(path, mp) && len(mp) > len(best) {
			best, bestType = mp, fsType
		}
	}
	return best, bestType
}
