//go:build !unix

package inventory

import "io/fs"

// platformOwner has no portable meaning outside POSIX filesystems.
func platformOwner(info fs.FileInfo) (uid, gid uint32) {
	return 0, 0
}
