package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/jobs"
	"reel/internal/services"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show job status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return printJobDetail(cmd, store, args[0])
			}
			return printJobList(cmd, store)
		},
	}
	return cmd
}

func printJobList(cmd *cobra.Command, store *jobs.Store) error {
	list, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No jobs")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, job := range list {
		stage := job.CurrentStage
		if stage == "" {
			stage = job.LastCompletedStage
		}
		rows = append(rows, []string{
			job.ID,
			job.Workflow,
			string(job.Status),
			stage,
			filepath.Base(job.MediaPath),
			job.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Workflow", "Status", "Stage", "Media", "Created"},
		rows, nil))

	health, err := store.Health(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d total: %d pending, %d running, %d completed, %d failed, %d cancelled\n",
		health.Total, health.Pending, health.Running, health.Completed, health.Failed, health.Cancelled)
	return nil
}

func printJobDetail(cmd *cobra.Command, store *jobs.Store, jobID string) error {
	job, err := store.GetByID(cmd.Context(), jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrInputNotFound, "status", "load job",
			"no job with id "+jobID, nil)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:       %s\n", job.ID)
	fmt.Fprintf(out, "Workflow:  %s\n", job.Workflow)
	fmt.Fprintf(out, "Status:    %s\n", job.Status)
	fmt.Fprintf(out, "Media:     %s\n", job.MediaPath)
	if job.Owner != "" {
		fmt.Fprintf(out, "Owner:     %s\n", job.Owner)
	}
	if job.MediaIdentity != "" {
		fmt.Fprintf(out, "Identity:  %s\n", job.MediaIdentity)
	}
	fmt.Fprintf(out, "Root:      %s\n", job.RootDir)
	if job.CurrentStage != "" {
		fmt.Fprintf(out, "Stage:     %s (running)\n", job.CurrentStage)
	} else if job.LastCompletedStage != "" {
		fmt.Fprintf(out, "Stage:     %s (last completed)\n", job.LastCompletedStage)
	}
	if job.ErrorStage != "" || job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     [%s] %s: %s\n", job.ErrorKind, job.ErrorStage, job.ErrorMessage)
	}
	if job.StartedAt != nil {
		fmt.Fprintf(out, "Started:   %s\n", job.StartedAt.Local().Format(time.RFC1123))
	}
	if job.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:  %s\n", job.FinishedAt.Local().Format(time.RFC1123))
	}
	if job.LogPath != "" {
		fmt.Fprintf(out, "Log:       %s\n", job.LogPath)
	}
	return nil
}
