// Package scheduler wraps the orchestrator for repeated full-scan
// passes on a timer (SPEC_FULL.md §4.14, C13), driven by
// github.com/go-co-op/gocron/v2. Absent --every, the CLI never touches
// this package — a single invocation of Orchestrator.Run is exactly
// the single-shot behavior of spec.md §6.1.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/phlash/azure-sync/internal/config"
	"github.com/phlash/azure-sync/internal/logging"
	"github.com/phlash/azure-sync/internal/orchestrator"
)

// Runner is the subset of *orchestrator.Orchestrator the scheduler
// needs, narrowed for testability.
type Runner interface {
	Run(ctx context.Context, paths []string, opts config.RunOptions) (orchestrator.Counts, error)
}

// Repeat runs o.Run every interval until ctx is cancelled. A failing
// tick is logged and the schedule continues — the same "no retries,
// log and continue" philosophy the core applies per file applies here
// per run.
func Repeat(ctx context.Context, o Runner, paths []string, opts config.RunOptions, interval time.Duration, logger *slog.Logger) error {
	logger = logging.Default(logger).With("component", "scheduler")

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("scheduler: new: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := o.Run(ctx, paths, opts); err != nil {
				logger.Error("scheduled run failed", "error", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("scheduler: new job: %w", err)
	}

	sched.Start()
	<-ctx.Done()
	return sched.Shutdown()
}
