package main

import (
	"testing"
)

func TestCacheStatsEmptyCache(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Entries:    0")
}

func TestCachePruneAndClearEmptyCache(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "cache", "prune")
	if err != nil {
		t.Fatalf("cache prune: %v", err)
	}
	requireContains(t, out, "Pruned 0 entries")

	out, _, err = runCLI(t, env.configPath, "cache", "clear")
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Cleared 0 entries")
}

func TestCacheDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Cache.Enabled = false
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, env.configPath, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Cache is disabled")
}
