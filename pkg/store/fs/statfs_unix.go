//go:build linux || darwin

package fs

import "golang.org/x/sys/unix"

// fsUsage returns total and available bytes for the filesystem holding path.
func fsUsage(path string) (total, avail uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return uint64(st.Blocks) * bsize, uint64(st.Bavail) * bsize, nil
}
