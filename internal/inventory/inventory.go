// Package inventory builds the two indexes the reconciler compares: the
// remote blob index (one prefix-scoped listing) and the local file
// index (one directory walk), both keyed by the same canonical name
// (SPEC_FULL.md §4.4). That name is the scan path itself, exactly as
// given on the command line, joined with each entry's path below it —
// the same string a real backend's List(prefix) matches against and
// the same string blobs are committed under, so a local file and its
// remote blob always land on the same map key. Indexes are built once
// per scan path and consumed read-only afterward.
package inventory

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/phlash/azure-sync/internal/metadata"
	"github.com/phlash/azure-sync/internal/objectstore"
)

// LocalFile is one regular file found under the scan root.
type LocalFile struct {
	Name string // canonical path: the scan root joined with the entry's path below it, forward-slash separated — identical in form to the remote blob name BuildRemote lists under the same root
	Path string // filesystem path as walked (root joined with the entry's path below it)
	Size uint64
	Stat metadata.Stat
}

const progressEvery = 1000

// excluded reports whether name matches any of the glob patterns.
func excluded(name string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, name); ok {
			return true
		}
	}
	return false
}

// BuildRemote lists every blob under prefix into a name → record map,
// logging progress every 1,000 entries. Excluded names are dropped.
func BuildRemote(ctx context.Context, store objectstore.Store, prefix string, exclude []string, logger *slog.Logger) (map[string]objectstore.BlobRecord, error) {
	out := make(map[string]objectstore.BlobRecord)
	count := 0
	err := store.List(ctx, prefix, func(rec objectstore.BlobRecord) error {
		count++
		if count%progressEvery == 0 {
			logger.Info("remote inventory progress", "count", count)
		}
		if excluded(rec.Name, exclude) {
			return nil
		}
		out[rec.Name] = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: list %q: %w", prefix, err)
	}
	return out, nil
}

// BuildLocal walks the directory rooted at root, stat-ing every regular
// file and skipping symlinks entirely (spec.md §4.4, Non-goal: no
// symlink replication). Traversal order is not semantically significant.
//
// Every entry's Name is root joined with its path below root — the
// same root string the caller passes to BuildRemote as the listing
// prefix — rather than a root-relative path. A name stripped of root
// would never match a real backend's List(prefix), which filters on
// the blob's full name (objectstore.go), nor the name push commits
// blobs under; keeping root in the name is what makes the two indexes
// comparable key-for-key.
func BuildLocal(root string, exclude []string) (map[string]LocalFile, error) {
	out := make(map[string]LocalFile)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("inventory: walk %q: %w", path, err)
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := filepath.ToSlash(path)
		if excluded(name, exclude) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("inventory: stat %q: %w", path, err)
		}
		out[name] = LocalFile{
			Name: name,
			Path: path,
			Size: uint64(info.Size()),
			Stat: statFromFileInfo(info),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func statFromFileInfo(info fs.FileInfo) metadata.Stat {
	st := metadata.Stat{
		Mode:  uint32(info.Mode().Perm()),
		Mtime: float64(info.ModTime().UnixNano()) / 1e9,
	}
	st.UID, st.GID = platformOwner(info)
	return st
}
