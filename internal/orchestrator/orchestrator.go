// Package orchestrator drives one run of the synchronizer: for each
// scan path, build inventory, reconcile, then optionally push, pull,
// and nuke (SPEC_FULL.md §4.10). Every log line for the run carries a
// uuid run id so concurrent per-file operations can be correlated.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/phlash/azure-sync/internal/cache"
	"github.com/phlash/azure-sync/internal/chunker"
	"github.com/phlash/azure-sync/internal/config"
	"github.com/phlash/azure-sync/internal/delete"
	"github.com/phlash/azure-sync/internal/fingerprint"
	"github.com/phlash/azure-sync/internal/inventory"
	"github.com/phlash/azure-sync/internal/logging"
	"github.com/phlash/azure-sync/internal/objectstore"
	"github.com/phlash/azure-sync/internal/pull"
	"github.com/phlash/azure-sync/internal/push"
	"github.com/phlash/azure-sync/internal/reconciler"
)

// Counts summarizes one run's outcome, printed for dry runs and logged
// for real ones.
type Counts struct {
	Skipped       int
	PushNew       int
	PushModify    int
	PullNew       int
	PullModify    int
	DeletedRemote int
	DeletedLocal  int
}

func (c Counts) Total() int {
	return c.PushNew + c.PushModify + c.PullNew + c.PullModify
}

// Orchestrator wires the components for one invocation.
type Orchestrator struct {
	Store       objectstore.Store
	Cache       *cache.Cache
	Push        *push.Engine
	Pull        *pull.Engine
	WritePrefix string
	Logger      *slog.Logger
}

// New constructs an Orchestrator from a resolved config and store.
func New(cfg config.Config, store objectstore.Store, ch *cache.Cache, logger *slog.Logger) *Orchestrator {
	logger = logging.Default(logger)
	return &Orchestrator{
		Store:       store,
		Cache:       ch,
		WritePrefix: cfg.WritePrefix,
		Logger:      logger,
		Push: &push.Engine{
			Store:       store,
			Concurrency: cfg.MaxConcurrency,
			Logger:      logger,
		},
		Pull: &pull.Engine{
			Store:       store,
			WritePrefix: cfg.WritePrefix,
			Concurrency: cfg.MaxConcurrency,
			Logger:      logger,
		},
	}
}

// Run executes one pass over every scan path.
func (o *Orchestrator) Run(ctx context.Context, paths []string, opts config.RunOptions) (Counts, error) {
	runID := uuid.New().String()
	logger := o.Logger.With("run_id", runID)

	var total Counts
	dryRun := !opts.Push && !opts.Pull

	for _, path := range paths {
		c, err := o.runOne(ctx, path, opts, dryRun, logger)
		if err != nil {
			return total, fmt.Errorf("orchestrator: %q: %w", path, err)
		}
		total.Skipped += c.Skipped
		total.PushNew += c.PushNew
		total.PushModify += c.PushModify
		total.PullNew += c.PullNew
		total.PullModify += c.PullModify
		total.DeletedRemote += c.DeletedRemote
		total.DeletedLocal += c.DeletedLocal
	}

	if o.Cache != nil {
		if err := o.Cache.Save(); err != nil {
			logger.Warn("failed to persist chunk cache", "error", err)
		}
	}

	logger.Info("run complete",
		"push_new", total.PushNew, "push_modify", total.PushModify,
		"pull_new", total.PullNew, "pull_modify", total.PullModify,
		"deleted_remote", total.DeletedRemote, "deleted_local", total.DeletedLocal,
		"skipped", total.Skipped)
	return total, nil
}

func (o *Orchestrator) runOne(ctx context.Context, path string, opts config.RunOptions, dryRun bool, logger *slog.Logger) (Counts, error) {
	local, err := inventory.BuildLocal(path, opts.Exclude)
	if err != nil {
		return Counts{}, fmt.Errorf("build local index: %w", err)
	}
	remote, err := inventory.BuildRemote(ctx, o.Store, path, opts.Exclude, logger)
	if err != nil {
		return Counts{}, fmt.Errorf("build remote index: %w", err)
	}

	chunkFn := o.chunkFunc(logger)
	actions, err := reconciler.Reconcile(ctx, local, remote, o.Store, chunkFn, logger)
	if err != nil {
		return Counts{}, fmt.Errorf("reconcile: %w", err)
	}

	counts := Counts{Skipped: intersectionCount(local, remote) - modifyActionCount(actions)}
	if dryRun {
		for _, a := range actions {
			tallyDryRun(&counts, a)
		}
		return counts, nil
	}

	if opts.Push {
		for _, a := range actions {
			switch act := a.(type) {
			case reconciler.PushNew:
				if err := o.Push.PushNew(ctx, act); err != nil {
					logger.Error("push failed", "name", act.Name, "error", err)
					continue
				}
				counts.PushNew++
			case reconciler.PushModify:
				if err := o.Push.PushModify(ctx, act); err != nil {
					logger.Error("push failed", "name", act.Name, "error", err)
					continue
				}
				counts.PushModify++
			}
		}
	}

	if opts.Pull {
		for _, a := range actions {
			switch act := a.(type) {
			case reconciler.PullNew:
				if err := o.Pull.PullNew(ctx, act); err != nil {
					logger.Error("pull failed", "name", act.Name, "error", err)
					continue
				}
				counts.PullNew++
			case reconciler.PullModify:
				lf, ok := local[act.Name]
				if !ok {
					logger.Error("pull modify missing local source", "name", act.Name)
					continue
				}
				if err := o.Pull.PullModify(ctx, act, lf.Path); err != nil {
					logger.Error("pull failed", "name", act.Name, "error", err)
					continue
				}
				counts.PullModify++
			}
		}
	}

	if opts.Delete {
		if opts.Push {
			names := reconciler.RemoteOnly(actions)
			counts.DeletedRemote = delete.Remote(ctx, o.Store, names, logger)
		}
		if opts.Pull {
			names := reconciler.LocalOnly(actions)
			counts.DeletedLocal = delete.Local(o.WritePrefix, names, logger)
		}
	}

	return counts, nil
}

// chunkFunc builds a ChunkFunc that consults the cache (C12) before
// falling back to the real chunker.
func (o *Orchestrator) chunkFunc(logger *slog.Logger) reconciler.ChunkFunc {
	return func(path string, size uint64, mtime float64) (fingerprint.Sequence, error) {
		if o.Cache != nil {
			if seq, ok := o.Cache.Lookup(path, size, mtime); ok {
				return seq, nil
			}
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("chunk %q: %w", path, err)
		}
		defer f.Close()
		seq, err := chunker.Chunk(f)
		if err != nil {
			logger.Warn("chunker failure, skipping file this run", "path", path, "error", err)
			return nil, err
		}
		if o.Cache != nil {
			o.Cache.Put(path, size, mtime, seq)
		}
		return seq, nil
	}
}

func tallyDryRun(c *Counts, a reconciler.Action) {
	switch a.(type) {
	case reconciler.PushNew:
		c.PushNew++
	case reconciler.PushModify:
		c.PushModify++
	case reconciler.PullNew:
		c.PullNew++
	case reconciler.PullModify:
		c.PullModify++
	}
}

// intersectionCount returns how many names appear in both indexes.
// Per spec.md §3's invariant, every such name contributes exactly one
// classification — skip, push-modify, or pull-modify — so subtracting
// the modify actions from this count yields the skip count.
func intersectionCount(local map[string]inventory.LocalFile, remote map[string]objectstore.BlobRecord) int {
	n := 0
	for name := range local {
		if _, ok := remote[name]; ok {
			n++
		}
	}
	return n
}

func modifyActionCount(actions []reconciler.Action) int {
	n := 0
	for _, a := range actions {
		switch a.(type) {
		case reconciler.PushModify, reconciler.PullModify:
			n++
		}
	}
	return n
}
