package main

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reel/internal/cache"
	"reel/internal/config"
	"reel/internal/jobs"
	"reel/internal/logging"
	"reel/internal/orchestrator"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, loadedPath, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.configPath = loadedPath
		c.configExists = exists
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// newLogger builds a logger writing to stdout plus the shared log file.
// extraPaths adds per-job log files for run commands.
func (c *commandContext) newLogger(extraPaths ...string) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	paths := append([]string{"stdout", filepath.Join(cfg.Paths.LogDir, "reel.log")}, extraPaths...)
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: paths,
	})
}

func (c *commandContext) openStore() (*jobs.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return jobs.Open(cfg)
}

func (c *commandContext) openCache(logger *slog.Logger) (*cache.Manager, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return cache.Open(cfg, logger)
}

// withOrchestrator wires a store, cache, and orchestrator, closing both
// stores when fn returns.
func (c *commandContext) withOrchestrator(logger *slog.Logger, fn func(*orchestrator.Orchestrator, *jobs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := c.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	manager, err := c.openCache(logger)
	if err != nil {
		return err
	}
	if manager != nil {
		defer manager.Close()
	}

	return fn(orchestrator.New(cfg, store, manager, logger), store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
