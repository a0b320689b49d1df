// Command azuresync synchronizes a local directory subtree against a
// block-addressable object store container (spec.md §6.1).
//
// Logging:
//   - One *slog.Logger is built in main from AZURE_SYNC_STDOUT/SYSLOG/VERBOSE
//   - Passed to the orchestrator by dependency injection, never global
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/phlash/azure-sync/internal/cache"
	"github.com/phlash/azure-sync/internal/config"
	"github.com/phlash/azure-sync/internal/logging"
	"github.com/phlash/azure-sync/internal/objectstore"
	"github.com/phlash/azure-sync/internal/objectstore/azureblob"
	"github.com/phlash/azure-sync/internal/objectstore/gcsblock"
	"github.com/phlash/azure-sync/internal/objectstore/s3block"
	"github.com/phlash/azure-sync/internal/orchestrator"
	"github.com/phlash/azure-sync/internal/scheduler"
)

var version = "dev"

func main() {
	var (
		push, pull, del bool
		exclude         []string
		every           time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "azuresync [paths...]",
		Short: "Synchronize local directories against a block-addressable object store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return run(ctx, args, push, pull, del, exclude, every)
		},
	}
	rootCmd.Flags().BoolVar(&push, "push", false, "push local changes to the store")
	rootCmd.Flags().BoolVar(&pull, "pull", false, "pull remote changes to local disk")
	rootCmd.Flags().BoolVar(&del, "delete", false, "remove entries absent from the sending side (nuke mode)")
	rootCmd.Flags().StringArrayVar(&exclude, "exclude", nil, "glob to exclude from both sides (repeatable)")
	rootCmd.Flags().DurationVar(&every, "every", 0, "repeat the scan on this interval instead of running once")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, paths []string, push, pull, del bool, exclude []string, every time.Duration) error {
	mode := config.Mode{Push: push, Pull: pull, Delete: del}
	if err := mode.Validate(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Sinks{Stdout: cfg.Stdout, Syslog: cfg.Syslog}, cfg.Verbosity)
	if err != nil {
		return err
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("construct object store: %w", err)
	}

	ch, err := cache.Load(cfg.CacheFile)
	if err != nil {
		return fmt.Errorf("load chunk cache: %w", err)
	}

	o := orchestrator.New(cfg, store, ch, logger)
	if cfg.RateBytesPerSec > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.RateBytesPerSec), cfg.RateBytesPerSec)
		o.Push.Limiter = limiter
		o.Pull.Limiter = limiter
	}

	opts := config.RunOptions{Mode: mode, Exclude: exclude, Every: every}
	if cfg.NoWrite {
		opts.Mode.Push, opts.Mode.Pull = false, false
	}

	if every > 0 {
		return scheduler.Repeat(ctx, o, paths, opts, every, logger)
	}

	counts, err := o.Run(ctx, paths, opts)
	if err != nil {
		return err
	}
	if !opts.Push && !opts.Pull {
		fmt.Printf("push_new=%d push_modify=%d pull_new=%d pull_modify=%d skipped=%d\n",
			counts.PushNew, counts.PushModify, counts.PullNew, counts.PullModify, counts.Skipped)
	}
	logger.Info("run complete", "push_new", counts.PushNew, "push_modify", counts.PushModify,
		"pull_new", counts.PullNew, "pull_modify", counts.PullModify,
		"deleted_remote", counts.DeletedRemote, "deleted_local", counts.DeletedLocal,
		"skipped", counts.Skipped)
	return nil
}

// newStore constructs the configured backend. Credentials for s3 and
// gcs come from each SDK's standard ambient resolution (environment,
// shared config files, instance metadata) — spec.md never specifies a
// bespoke credential format for those backends, so the SDK default
// chain is authoritative (Open Question, see DESIGN.md).
func newStore(ctx context.Context, cfg config.Config) (objectstore.Store, error) {
	switch cfg.Backend {
	case config.BackendAzure:
		return azureblob.New(cfg.StorageAccount, cfg.StorageKey, cfg.Container)
	case config.BackendS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return s3block.New(s3.NewFromConfig(awsCfg), cfg.Container), nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create GCS client: %w", err)
		}
		return gcsblock.New(client, cfg.Container), nil
	default:
		return nil, fmt.Errorf("newStore: %w", config.ErrBadBackend)
	}
}
