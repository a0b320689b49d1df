//go:build unix

package inventory

import (
	"io/fs"
	"syscall"
)

// platformOwner reads uid/gid from the OS-specific stat structure.
func platformOwner(info fs.FileInfo) (uid, gid uint32) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Uid, st.Gid
	}
	return 0, 0
}
