package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reel/internal/services"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Move failed jobs back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			moved, err := store.RetryFailed(cmd.Context(), args...)
			if err != nil {
				return err
			}
			if moved == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No failed jobs to retry")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s)\n", moved)
			return nil
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return services.Wrap(services.ErrInputNotFound, "remove", "load job",
					"no job with id "+args[0], nil)
			}
			if job.IsRunning() {
				return services.Wrap(services.ErrConfiguration, "remove", "remove job",
					"job is running; cancel it first", nil)
			}
			removed, err := store.Remove(cmd.Context(), job.ID)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", job.ID)
			}
			return nil
		},
	}
}

func newClearCompletedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed job records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.ClearCompleted(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed job(s)\n", removed)
			return nil
		},
	}
}
