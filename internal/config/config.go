package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	CacheDir string `toml:"cache_dir"`
	LogDir   string `toml:"log_dir"`
}

// Workflow contains stage timing, retry, and concurrency settings.
// Durations are in seconds.
type Workflow struct {
	LightStageTimeout int `toml:"light_stage_timeout"`
	HeavyStageTimeout int `toml:"heavy_stage_timeout"`
	RetryAttempts     int `toml:"retry_attempts"`
	RetryBackoff      int `toml:"retry_backoff"`
	CancelGrace       int `toml:"cancel_grace"`
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
}

// Cache contains result-cache policy settings.
type Cache struct {
	Enabled            bool    `toml:"enabled"`
	FingerprintTTLDays int     `toml:"fingerprint_ttl_days"`
	RecognitionTTLDays int     `toml:"recognition_ttl_days"`
	TranslationTTLDays int     `toml:"translation_ttl_days"`
	GlossaryTTLDays    int     `toml:"glossary_ttl_days"`
	MinReuseQuality    float64 `toml:"min_reuse_quality"`
	SupersedeMargin    float64 `toml:"supersede_margin"`
	MaxGiB             int     `toml:"max_gib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Tools names the external binaries the control-plane invokes directly.
type Tools struct {
	FFprobe string `toml:"ffprobe"`
	FFmpeg  string `toml:"ffmpeg"`
}

// Stage is the versioned option table for one pipeline stage. Command is the
// external program invoked for the stage; Options is passed through to it in
// the config snapshot after schema validation.
type Stage struct {
	SchemaVersion int            `toml:"schema_version"`
	Command       string         `toml:"command"`
	Options       map[string]any `toml:"options"`
}

// Config encapsulates all configuration values for the pipeline.
type Config struct {
	Paths    Paths            `toml:"paths"`
	Workflow Workflow         `toml:"workflow"`
	Cache    Cache            `toml:"cache"`
	Logging  Logging          `toml:"logging"`
	Tools    Tools            `toml:"tools"`
	Stages   map[string]Stage `toml:"stages"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was found (defaults are used otherwise).
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return err
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if strings.TrimSpace(c.Tools.FFprobe) == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
	if strings.TrimSpace(c.Tools.FFmpeg) == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
	return nil
}

// EnsureDirectories creates the directories the control-plane writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.LogDir}
	if c.Cache.Enabled {
		dirs = append(dirs, c.Paths.CacheDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StageTimeout returns the execution deadline for a stage of the given class.
func (c *Config) StageTimeout(heavy bool) time.Duration {
	if heavy {
		return time.Duration(c.Workflow.HeavyStageTimeout) * time.Second
	}
	return time.Duration(c.Workflow.LightStageTimeout) * time.Second
}

// RetryBackoffDuration returns the base backoff used for transient retries.
func (c *Config) RetryBackoffDuration() time.Duration {
	return time.Duration(c.Workflow.RetryBackoff) * time.Second
}

// CancelGraceDuration returns how long an in-flight stage process may keep
// running after cancellation before forced termination.
func (c *Config) CancelGraceDuration() time.Duration {
	return time.Duration(c.Workflow.CancelGrace) * time.Second
}

// StageConfig returns the option table for a stage, or an empty table when
// the stage is not configured.
func (c *Config) StageConfig(stage string) Stage {
	if c.Stages == nil {
		return Stage{}
	}
	return c.Stages[stage]
}

// StageCommand returns the external command configured for a stage.
func (c *Config) StageCommand(stage string) string {
	return strings.TrimSpace(c.StageConfig(stage).Command)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
