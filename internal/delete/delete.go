// Package delete implements nuke-mode deletion (SPEC_FULL.md §4.9):
// after a push, every remote-only blob is removed; after a pull, every
// local-only file is removed. The illegal push+pull+delete combination
// is rejected earlier, in config.Mode.Validate, before any I/O.
package delete

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/phlash/azure-sync/internal/logging"
	"github.com/phlash/azure-sync/internal/objectstore"
)

// Remote deletes every blob named in names, logging and continuing
// past individual failures (spec.md §7: no retries, current file is
// logged and the run proceeds).
func Remote(ctx context.Context, store objectstore.Store, names []string, logger *slog.Logger) int {
	logger = logging.Default(logger).With("component", "delete")
	deleted := 0
	for _, name := range names {
		if err := store.Delete(ctx, name); err != nil {
			logger.Error("failed to delete remote blob", "name", name, "error", err)
			continue
		}
		deleted++
	}
	return deleted
}

// Local removes every file named in names, rooted at writePrefix.
func Local(writePrefix string, names []string, logger *slog.Logger) int {
	logger = logging.Default(logger).With("component", "delete")
	deleted := 0
	for _, name := range names {
		path := filepath.Join(writePrefix, filepath.FromSlash(name))
		if err := os.Remove(path); err != nil {
			logger.Error("failed to delete local file", "name", name, "error", fmt.Errorf("delete: remove %q: %w", path, err))
			continue
		}
		deleted++
	}
	return deleted
}
