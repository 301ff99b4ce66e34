//go:build !linux && !darwin

package fs

// fsUsage is unsupported on this platform; capacity fields stay zero.
func fsUsage(path string) (total, avail uint64, err error) {
	return 0, 0, nil
}
