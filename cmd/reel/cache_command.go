package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"reel/internal/cache"
	"reel/internal/logging"
	"reel/internal/registry"
	"reel/internal/services"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the artifact cache",
	}
	cmd.AddCommand(newCacheStatsCommand(ctx))
	cmd.AddCommand(newCachePruneCommand(ctx))
	cmd.AddCommand(newCacheInvalidateCommand(ctx))
	cmd.AddCommand(newCacheClearCommand(ctx))
	return cmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, ctx, func(manager *cache.Manager) error {
				stats, err := manager.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Entries:    %d\n", stats.Entries)
				fmt.Fprintf(out, "Size:       %s of %s\n",
					formatBytes(stats.TotalBytes), formatBytes(stats.MaxBytes))
				fmt.Fprintf(out, "Disk free:  %s (%.0f%%)\n",
					formatBytes(int64(stats.FreeBytes)), stats.FreeRatio*100)
				layers := make([]string, 0, len(stats.ByLayer))
				for layer := range stats.ByLayer {
					layers = append(layers, layer)
				}
				sort.Strings(layers)
				for _, layer := range layers {
					fmt.Fprintf(out, "  %-12s %d\n", layer, stats.ByLayer[layer])
				}
				return nil
			})
		},
	}
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired entries and reclaim space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, ctx, func(manager *cache.Manager) error {
				removed, err := manager.Prune(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries\n", removed)
				return nil
			})
		},
	}
}

func newCacheInvalidateCommand(ctx *commandContext) *cobra.Command {
	var layerFlag string
	cmd := &cobra.Command{
		Use:   "invalidate [media-identity]",
		Short: "Drop cached artifacts by media identity or layer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (layerFlag == "") == (len(args) == 0) {
				return services.Wrap(services.ErrConfiguration, "cache", "parse arguments",
					"provide exactly one of a media identity or --layer", nil)
			}
			return withCache(cmd, ctx, func(manager *cache.Manager) error {
				if layerFlag != "" {
					layer, err := parseLayer(layerFlag)
					if err != nil {
						return err
					}
					removed, err := manager.InvalidateLayer(cmd.Context(), layer)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %d entries in layer %s\n", removed, layer)
					return nil
				}
				removed, err := manager.InvalidateIdentity(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %d entries for %s\n", removed, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&layerFlag, "layer", "", "Cache layer to drop: fingerprint, recognition, translation, glossary")
	return cmd
}

func parseLayer(value string) (registry.CacheLayer, error) {
	switch registry.CacheLayer(value) {
	case registry.LayerFingerprint, registry.LayerRecognition,
		registry.LayerTranslation, registry.LayerGlossary:
		return registry.CacheLayer(value), nil
	}
	return registry.LayerNone, services.Wrap(services.ErrConfiguration, "cache", "parse layer",
		"unknown cache layer "+value, nil)
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry and payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, ctx, func(manager *cache.Manager) error {
				removed, err := manager.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries\n", removed)
				return nil
			})
		},
	}
}

func withCache(cmd *cobra.Command, ctx *commandContext, fn func(*cache.Manager) error) error {
	manager, err := ctx.openCache(logging.NewNop())
	if err != nil {
		return err
	}
	if manager == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Cache is disabled")
		return nil
	}
	defer manager.Close()
	return fn(manager)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
