// Package logging configures slog output for the pipeline: a pretty console
// handler for interactive use, a JSON handler for files, and helpers that
// derive structured fields from request context.
package logging
