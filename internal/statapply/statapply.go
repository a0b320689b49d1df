// Package statapply applies a recorded Stat to a local path after a
// successful rename, in the exact order spec.md §4.8 requires: chown
// (root only) before utime, and chmod last, so a failure at the mode
// step still leaves the content and ownership recoverable.
package statapply

import (
	"fmt"
	"os"
	"time"

	"github.com/phlash/azure-sync/internal/metadata"
)

// Apply sets ownership, timestamps, and mode on path from st.
func Apply(path string, st metadata.Stat) error {
	if os.Geteuid() == 0 {
		if err := os.Chown(path, int(st.UID), int(st.GID)); err != nil {
			return fmt.Errorf("statapply: chown %q: %w", path, err)
		}
	}

	mtime := secondsToTime(st.Mtime)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return fmt.Errorf("statapply: chtimes %q: %w", path, err)
	}

	if err := os.Chmod(path, os.FileMode(st.Mode).Perm()); err != nil {
		return fmt.Errorf("statapply: chmod %q: %w", path, err)
	}
	return nil
}

func secondsToTime(seconds float64) time.Time {
	whole := int64(seconds)
	frac := seconds - float64(whole)
	return time.Unix(whole, int64(frac*1e9))
}
