package archive

import (
	"fmt"
	"syscall"
)

// DiskUsagePercent returns used space on the filesystem holding path.
func DiskUsagePercent(path string) (float64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}

	total := st.Blocks * uint64(st.Bsize)
	if total == 0 {
		return 0, fmt.Errorf("statfs %s reported zero capacity", path)
	}
	free := st.Bavail * uint64(st.Bsize)
	return float64(total-free) / float64(total) * 100, nil
}
