package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reel/internal/jobs"
	"reel/internal/orchestrator"
	"reel/internal/registry"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var workflowFlag string

	cmd := &cobra.Command{
		Use:   "create <media-file>",
		Short: "Register a new pipeline job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withOrchestrator(logger, func(orch *orchestrator.Orchestrator, store *jobs.Store) error {
				job, warnings, err := orch.Create(cmd.Context(), args[0], workflowFlag)
				if err != nil {
					return err
				}
				job.LogPath = filepath.Join(cfg.Paths.LogDir, "jobs", job.ID+".log")
				if err := store.Update(cmd.Context(), job); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, warning := range warnings {
					fmt.Fprintf(out, "warning: %s\n", warning)
				}
				fmt.Fprintf(out, "Created job %s (%s) for %s\n", job.ID, job.Workflow, job.MediaPath)
				fmt.Fprintf(out, "Run it with: reel run %s\n", job.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&workflowFlag, "workflow", "w", "",
		"Workflow to run: "+workflowNames())
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func workflowNames() string {
	names := make([]string, 0, 3)
	for _, w := range registry.Workflows() {
		names = append(names, string(w))
	}
	return strings.Join(names, ", ")
}
