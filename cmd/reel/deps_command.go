package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reel/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tool availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := deps.Check(cfg)
			rows := make([][]string, 0, len(results))
			missingRequired := 0
			for _, status := range results {
				if !status.Available && !status.Optional {
					missingRequired++
				}
				rows = append(rows, []string{
					status.Name,
					yesNo(status.Available),
					yesNo(!status.Optional),
					status.Detail,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Dependency", "Available", "Required", "Detail"},
				rows, nil))
			if missingRequired > 0 {
				fmt.Fprintf(out, "%d required dependencies missing\n", missingRequired)
			} else {
				fmt.Fprintln(out, "All required dependencies available")
			}
			return nil
		},
	}
}
