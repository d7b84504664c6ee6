package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/lineage"
	"reel/internal/registry"
	"reel/internal/services"
)

func newLineageCommand(ctx *commandContext) *cobra.Command {
	var artifact string
	cmd := &cobra.Command{
		Use:   "lineage <job-id>",
		Short: "Show stage provenance for a job",
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
				return services.Wrap(services.ErrInputNotFound, "lineage", "load job",
					"no job with id "+args[0], nil)
			}
			defs, err := registry.ForWorkflow(job.Workflow)
			if err != nil {
				return err
			}
			tracker := lineage.NewTracker(job.RootDir)

			if artifact != "" {
				return printProducer(cmd, tracker, defs, artifact)
			}
			return printLineage(cmd, tracker, defs)
		},
	}
	cmd.Flags().StringVar(&artifact, "artifact", "", "trace the stage that produced this artifact")
	return cmd
}

func printLineage(cmd *cobra.Command, tracker *lineage.Tracker, defs []registry.Definition) error {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(defs))
	var warnings []string
	for _, def := range defs {
		rec, err := tracker.Load(def)
		if err != nil {
			return err
		}
		if rec == nil {
			rows = append(rows, []string{def.Name, "-", "", "", ""})
			continue
		}
		source := "ran"
		if rec.CacheHit {
			source = "cache"
		}
		duration := ""
		if !rec.FinishedAt.IsZero() {
			duration = rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			def.Name,
			rec.Status,
			source,
			strconv.Itoa(len(rec.Outputs)),
			duration,
		})
		for _, w := range rec.Warnings {
			warnings = append(warnings, def.Name+": "+w)
		}
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "Status", "Source", "Outputs", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
	for _, w := range warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}
	return nil
}

func printProducer(cmd *cobra.Command, tracker *lineage.Tracker, defs []registry.Definition, artifact string) error {
	rec, art, err := tracker.FindProducer(defs, artifact)
	if err != nil {
		return err
	}
	if rec == nil {
		return services.Wrap(services.ErrInputNotFound, "lineage", "find producer",
			"no stage produced artifact "+artifact, nil)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Artifact:  %s (%s)\n", art.Name, art.Type)
	fmt.Fprintf(out, "Path:      %s\n", art.Path)
	fmt.Fprintf(out, "Checksum:  %s\n", art.Checksum)
	fmt.Fprintf(out, "Bytes:     %d\n", art.Bytes)
	fmt.Fprintf(out, "Producer:  %s (%s", rec.Stage, rec.Status)
	if rec.CacheHit {
		fmt.Fprint(out, ", from cache")
	}
	fmt.Fprintln(out, ")")
	if rec.Config != nil {
		fmt.Fprintf(out, "Config:    schema v%d, hash %s\n", rec.Config.SchemaVersion, rec.Config.Hash)
	}
	for _, in := range rec.Inputs {
		origin := in.Stage
		if in.FromCache {
			origin += " (cache)"
		}
		fmt.Fprintf(out, "Input:     %s from %s", in.Artifact, origin)
		if in.Checksum != "" {
			fmt.Fprintf(out, " (%s, %d bytes)", in.Checksum, in.Bytes)
		}
		fmt.Fprintln(out)
	}
	return nil
}
