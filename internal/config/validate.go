package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateStages()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set when cache.enabled is true")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	positives := map[string]int{
		"workflow.light_stage_timeout": c.Workflow.LightStageTimeout,
		"workflow.heavy_stage_timeout": c.Workflow.HeavyStageTimeout,
		"workflow.retry_attempts":      c.Workflow.RetryAttempts,
		"workflow.retry_backoff":       c.Workflow.RetryBackoff,
		"workflow.cancel_grace":        c.Workflow.CancelGrace,
		"workflow.max_concurrent_jobs": c.Workflow.MaxConcurrentJobs,
		"workflow.heartbeat_interval":  c.Workflow.HeartbeatInterval,
	}
	for key, value := range positives {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if c.Workflow.HeavyStageTimeout < c.Workflow.LightStageTimeout {
		return errors.New("workflow.heavy_stage_timeout must be at least workflow.light_stage_timeout")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	ttls := map[string]int{
		"cache.fingerprint_ttl_days": c.Cache.FingerprintTTLDays,
		"cache.recognition_ttl_days": c.Cache.RecognitionTTLDays,
		"cache.translation_ttl_days": c.Cache.TranslationTTLDays,
		"cache.glossary_ttl_days":    c.Cache.GlossaryTTLDays,
	}
	for key, value := range ttls {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if c.Cache.MinReuseQuality < 0 || c.Cache.MinReuseQuality > 1 {
		return errors.New("cache.min_reuse_quality must be between 0 and 1")
	}
	if c.Cache.SupersedeMargin < 0 || c.Cache.SupersedeMargin > 1 {
		return errors.New("cache.supersede_margin must be between 0 and 1")
	}
	if c.Cache.MaxGiB <= 0 {
		return errors.New("cache.max_gib must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateStages() error {
	for name, stage := range c.Stages {
		if strings.TrimSpace(name) == "" {
			return errors.New("stages: stage name must not be empty")
		}
		if stage.SchemaVersion < 0 {
			return fmt.Errorf("stages.%s.schema_version must not be negative", name)
		}
	}
	return nil
}
