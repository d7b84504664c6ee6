// Package config loads, normalizes, and validates the TOML configuration
// used by the pipeline control-plane.
package config
