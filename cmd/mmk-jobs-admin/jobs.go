package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/target/mmk-jobs/internal/adapters/reaper"
	redisadapter "github.com/target/mmk-jobs/internal/adapters/redis"
	"github.com/target/mmk-jobs/internal/data"
	"github.com/target/mmk-jobs/internal/domain/model"
	"github.com/target/mmk-jobs/internal/service"
)

const defaultCommandTimeout = 2 * time.Minute

func openJobRepo(cmdCtx *commandContext) (*data.JobRepo, func(), error) {
	in, err := openInfra(cmdCtx, needDB)
	if err != nil {
		return nil, nil, err
	}
	return in.jobRepo(cmdCtx), func() { in.closeQuietly(cmdCtx) }, nil
}

func runStats(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	repo, closer, err := openJobRepo(cmdCtx)
	if err != nil {
		return err
	}
	defer closer()

	stats, err := repo.Stats(ctx)
	if err != nil {
		return fmt.Errorf("job stats: %w", err)
	}
	return printStats(cmdCtx.Out, stats)
}

func runListStale(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	repo, closer, err := openJobRepo(cmdCtx)
	if err != nil {
		return err
	}
	defer closer()

	jobs, err := repo.GetStaleRunningJobs(ctx)
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}
	return printStaleJobs(cmdCtx.Out, jobs, time.Now())
}

type recoverOptions struct {
	DryRun bool
	Force  bool
}

func parseRecoverFlags(args []string) (recoverOptions, error) {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts recoverOptions
	fs.BoolVar(&opts.DryRun, "dry-run", false, "List the jobs that would be failed without changing them")
	fs.BoolVar(&opts.Force, "force", false, "Confirm that no orchestrator process is running")

	if err := fs.Parse(args); err != nil {
		return recoverOptions{}, err
	}
	if !opts.DryRun && !opts.Force {
		return recoverOptions{}, errors.New("refusing to fail running jobs without --force (use --dry-run to inspect)")
	}
	return opts, nil
}

// runRecover fails every job recorded as running. A live orchestrator would lose its
// in-flight jobs, so the command requires --force.
func runRecover(cmdCtx *commandContext, args []string) error {
	opts, err := parseRecoverFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	repo, closer, err := openJobRepo(cmdCtx)
	if err != nil {
		return err
	}
	defer closer()

	jobs, err := repo.GetStaleRunningJobs(ctx)
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}
	if opts.DryRun {
		return printStaleJobs(cmdCtx.Out, jobs, time.Now())
	}

	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	n, err := repo.MarkStaleJobsAsFailed(ctx, ids, service.MsgInterrupted)
	if err != nil {
		return fmt.Errorf("mark stale jobs failed: %w", err)
	}
	return writef(cmdCtx.Out, "marked %d of %d running jobs as failed\n", n, len(jobs))
}

func runCleanup(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	in, err := openInfra(cmdCtx, needDB)
	if err != nil {
		return err
	}
	defer in.closeQuietly(cmdCtx)

	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:     in.db,
		Config: cmdCtx.Config.Reaper,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}
	sum, err := runner.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("reaper pass: %w", err)
	}
	return writef(cmdCtx.Out, "cleanup pass completed: deleted %d completed and %d failed jobs\n", sum.Completed, sum.Failed)
}

type watchOptions struct {
	JobID string
}

func parseWatchFlags(args []string) (watchOptions, error) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts watchOptions
	fs.StringVar(&opts.JobID, "job-id", "", "Only print events for this job")
	if err := fs.Parse(args); err != nil {
		return watchOptions{}, err
	}
	return opts, nil
}

// runWatch prints lifecycle events until interrupted.
func runWatch(cmdCtx *commandContext, args []string) error {
	opts, err := parseWatchFlags(args)
	if err != nil {
		return err
	}

	in, err := openInfra(cmdCtx, needRedis)
	if err != nil {
		return err
	}
	defer in.closeQuietly(cmdCtx)

	sub := redisadapter.NewEventSubscriber(in.redis, cmdCtx.Logger)
	err = sub.Run(cmdCtx.Ctx, func(_ context.Context, evt model.JobEvent) error {
		if opts.JobID != "" && evt.JobID != opts.JobID {
			return nil
		}
		return printEvent(cmdCtx.Out, evt)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
