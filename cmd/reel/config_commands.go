package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"reel/internal/config"
	"reel/internal/registry"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to configure stage commands before creating jobs.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if !ctx.configExists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			for _, workflow := range registry.Workflows() {
				issues, err := registry.ValidateStageOptions(cfg, workflow)
				if err != nil {
					return err
				}
				for _, issue := range issues {
					fmt.Fprintf(out, "Warning (%s): %s\n", workflow, issue)
				}
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Work dir:   %s\n", cfg.Paths.WorkDir)
			fmt.Fprintf(out, "Cache dir:  %s\n", cfg.Paths.CacheDir)
			fmt.Fprintf(out, "Log dir:    %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Cache:      enabled=%t max=%d GiB min_quality=%.2f\n",
				cfg.Cache.Enabled, cfg.Cache.MaxGiB, cfg.Cache.MinReuseQuality)
			fmt.Fprintf(out, "Workflow:   max_concurrent=%d retries=%d heavy_timeout=%ds\n",
				cfg.Workflow.MaxConcurrentJobs, cfg.Workflow.RetryAttempts, cfg.Workflow.HeavyStageTimeout)
			stages := make([]string, 0, len(cfg.Stages))
			for name := range cfg.Stages {
				stages = append(stages, name)
			}
			sort.Strings(stages)
			for _, name := range stages {
				fmt.Fprintf(out, "Stage:      %-16s %s\n", name, cfg.Stages[name].Command)
			}
			return nil
		},
	}
}
