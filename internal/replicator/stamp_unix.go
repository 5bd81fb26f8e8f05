//go:build linux || darwin || freebsd || netbsd || openbsd

package replicator

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// changeStamp returns the inode and status-change time of path. The ctime
// moves on every write and on every Chtimes, so a rewrite that restores the
// old mtime still produces a new stamp.
func changeStamp(path string) string {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return ""
	}
	return fmt.Sprintf("%d:%d.%09d", uint64(st.Ino), int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
}
