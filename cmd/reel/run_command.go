package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reel/internal/jobs"
	"reel/internal/orchestrator"
	"reel/internal/services"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var allFlag bool
	var fromScratchFlag bool

	cmd := &cobra.Command{
		Use:   "run [job-id]",
		Short: "Run a job through its workflow stages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if allFlag == (len(args) == 1) {
				return services.Wrap(services.ErrConfiguration, "run", "parse arguments",
					"provide exactly one of a job id or --all", nil)
			}
			opts := orchestrator.RunOptions{FromScratch: fromScratchFlag}
			if allFlag {
				return runPendingJobs(cmd, ctx, opts)
			}
			return runSingleJob(cmd, ctx, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&allFlag, "all", false, "Run every pending job")
	cmd.Flags().BoolVar(&fromScratchFlag, "from-scratch", false,
		"Discard the checkpoint and rerun every stage")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <job-id>",
		Short: "Resume a job from its checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingleJob(cmd, ctx, args[0], orchestrator.RunOptions{})
		},
	}
	return cmd
}

func runSingleJob(cmd *cobra.Command, ctx *commandContext, jobID string, opts orchestrator.RunOptions) error {
	store, err := ctx.openStore()
	if err != nil {
		return err
	}
	job, err := store.GetByID(cmd.Context(), jobID)
	closeErr := store.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	if job == nil {
		return services.Wrap(services.ErrInputNotFound, "run", "load job",
			"no job with id "+jobID, nil)
	}

	var logPaths []string
	if job.LogPath != "" {
		logPaths = append(logPaths, job.LogPath)
	}
	logger, err := ctx.newLogger(logPaths...)
	if err != nil {
		return err
	}

	runCtx, stop := signalContext(cmd.Context())
	defer stop()

	return ctx.withOrchestrator(logger, func(orch *orchestrator.Orchestrator, store *jobs.Store) error {
		if _, err := orch.ReclaimStale(runCtx); err != nil {
			return err
		}
		if err := orch.RunJob(runCtx, jobID, opts); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s completed\n", jobID)
		return nil
	})
}

func runPendingJobs(cmd *cobra.Command, ctx *commandContext, opts orchestrator.RunOptions) error {
	logger, err := ctx.newLogger()
	if err != nil {
		return err
	}

	runCtx, stop := signalContext(cmd.Context())
	defer stop()

	return ctx.withOrchestrator(logger, func(orch *orchestrator.Orchestrator, store *jobs.Store) error {
		if _, err := orch.ReclaimStale(runCtx); err != nil {
			return err
		}
		pending, err := store.List(runCtx, jobs.StatusPending)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending jobs")
			return nil
		}
		if err := orch.RunPending(runCtx, opts); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ran %d job(s)\n", len(pending))
		return nil
	})
}

// signalContext cancels on SIGINT/SIGTERM so in-flight stages get their
// grace period instead of dying with the process.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
