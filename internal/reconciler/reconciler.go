// Package reconciler implements the classification algorithm of
// SPEC_FULL.md §4.5: for each (name × side) pair, decide skip,
// push-new, push-modify, pull-new, or pull-modify. Reconcile is a pure
// function over the two indexes plus whatever chunking/block-list
// lookups are strictly necessary to decide — it performs no transfer
// I/O itself and returns an immutable action list.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phlash/azure-sync/internal/fingerprint"
	"github.com/phlash/azure-sync/internal/inventory"
	"github.com/phlash/azure-sync/internal/logging"
	"github.com/phlash/azure-sync/internal/metadata"
	"github.com/phlash/azure-sync/internal/objectstore"
)

// Action is the sum type of reconciliation outcomes. Dispatch on it is
// exhaustive via a type switch; there is no default case that silently
// drops an unhandled variant.
type Action interface {
	actionName() string
}

type PushNew struct {
	Name   string
	Path   string
	Chunks fingerprint.Sequence
	Stat   metadata.Stat
}

type PushModify struct {
	Name           string
	Path           string
	Chunks         fingerprint.Sequence
	ExistingBlocks []objectstore.Block
	Stat           metadata.Stat
}

type PullNew struct {
	Name string
	Stat metadata.Stat
}

type PullModify struct {
	Name         string
	LocalChunks  fingerprint.Sequence
	RemoteBlocks []objectstore.Block
	Stat         metadata.Stat
}

type DeleteRemote struct{ Name string }
type DeleteLocal struct{ Name string }

func (PushNew) actionName() string      { return "push-new" }
func (PushModify) actionName() string   { return "push-modify" }
func (PullNew) actionName() string      { return "pull-new" }
func (PullModify) actionName() string   { return "pull-modify" }
func (DeleteRemote) actionName() string { return "delete-remote" }
func (DeleteLocal) actionName() string  { return "delete-local" }

// ChunkFunc computes a file's fingerprint sequence, given its local
// path. Callers typically wrap the cache (C12) in front of the real
// chunker so an unchanged file is never re-read.
type ChunkFunc func(path string, size uint64, mtime float64) (fingerprint.Sequence, error)

// Reconcile classifies every local file and every remaining remote-only
// blob. local and remote are read-only; remote is not mutated by this
// call (an internal copy tracks residuals). A chunker failure on one
// file is logged and that file is omitted from the action list; it
// does not abort classification of the rest (spec's "chunker failure
// skips the file, not the pass").
func Reconcile(ctx context.Context, local map[string]inventory.LocalFile, remote map[string]objectstore.BlobRecord, store objectstore.Store, chunk ChunkFunc, logger *slog.Logger) ([]Action, error) {
	logger = logging.Default(logger)
	residual := make(map[string]objectstore.BlobRecord, len(remote))
	for k, v := range remote {
		residual[k] = v
	}

	var actions []Action
	for name, f := range local {
		blob, ok := residual[name]
		if !ok {
			seq, err := chunk(f.Path, f.Size, f.Stat.Mtime)
			if err != nil {
				logger.Warn("chunker failure, skipping file", "name", name, "error", err)
				continue
			}
			actions = append(actions, PushNew{Name: name, Path: f.Path, Chunks: seq, Stat: f.Stat})
			continue
		}
		delete(residual, name)

		blobStat, warn, err := metadata.Decode(blob.Metadata, blob.LastModified)
		if err != nil {
			return nil, fmt.Errorf("reconciler: decode metadata %q: %w", name, err)
		}
		if warn {
			logger.Warn("missing timestamp in blob metadata, using server last-modified", "name", name)
		}

		// Fast path: size and recorded mtime match exactly, skip without
		// chunking.
		if blob.ContentLength == f.Size && blobStat.Mtime == f.Stat.Mtime {
			continue
		}

		seq, err := chunk(f.Path, f.Size, f.Stat.Mtime)
		if err != nil {
			logger.Warn("chunker failure, skipping file", "name", name, "error", err)
			continue
		}

		if seq.WholeFileHash() == blob.ContentMD5 {
			continue
		}

		blocks, err := store.GetBlockList(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("reconciler: get block list %q: %w", name, err)
		}

		if blobStat.Mtime > f.Stat.Mtime {
			actions = append(actions, PullModify{Name: name, LocalChunks: seq, RemoteBlocks: blocks, Stat: blobStat})
		} else {
			// Local wins on a tie (spec.md §4.5): equal mtime with
			// differing content biases toward uploading the user's edit.
			actions = append(actions, PushModify{Name: name, Path: f.Path, Chunks: seq, ExistingBlocks: blocks, Stat: f.Stat})
		}
	}

	for name, blob := range residual {
		st, warn, err := metadata.Decode(blob.Metadata, blob.LastModified)
		if err != nil {
			return nil, fmt.Errorf("reconciler: decode metadata %q: %w", name, err)
		}
		if warn {
			logger.Warn("missing timestamp in blob metadata, using server last-modified", "name", name)
		}
		actions = append(actions, PullNew{Name: name, Stat: st})
	}

	return actions, nil
}

// LocalOnly returns the subset of actions that represent local-only
// files (PushNew): used by the delete propagator when pulling with
// nuke mode (spec.md §4.9).
func LocalOnly(actions []Action) []string {
	var names []string
	for _, a := range actions {
		if pn, ok := a.(PushNew); ok {
			names = append(names, pn.Name)
		}
	}
	return names
}

// RemoteOnly returns the subset of actions that represent remote-only
// blobs (PullNew): used by the delete propagator when pushing with
// nuke mode.
func RemoteOnly(actions []Action) []string {
	var names []string
	for _, a := range actions {
		if pn, ok := a.(PullNew); ok {
			names = append(names, pn.Name)
		}
	}
	return names
}
