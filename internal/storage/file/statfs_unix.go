//go:build linux || darwin || freebsd

package file

import "golang.org/x/sys/unix"

// availableSpace returns the bytes available to unprivileged users on the
// filesystem holding path, or -1.
func availableSpace(path string) int64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return -1
	}
	return int64(st.Bavail) * int64(st.Bsize)
}
