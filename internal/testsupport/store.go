package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"reel/internal/config"
	"reel/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a pending job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, cfg *config.Config, workflow, mediaPath string) *jobs.Job {
	t.Helper()

	rootDir := filepath.Join(cfg.Paths.WorkDir, "jobs", workflow)
	job, err := store.NewJob(context.Background(), workflow, mediaPath, rootDir, "")
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
