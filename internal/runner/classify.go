package runner

import (
	"context"
	"errors"
	"strings"

	"reel/internal/services"
)

// diagnosticPatterns maps known stderr fragments to taxonomy markers.
// Matching is case-insensitive against the captured stderr tail. First
// match wins, so more specific patterns come first.
var diagnosticPatterns = []struct {
	fragment string
	marker   error
}{
	{"no such file", services.ErrInputNotFound},
	{"unknown option", services.ErrConfiguration},
	{"invalid option", services.ErrConfiguration},
	{"invalid argument", services.ErrConfiguration},
	{"unsupported model", services.ErrConfiguration},
	{"connection refused", services.ErrTransient},
	{"connection reset", services.ErrTransient},
	{"temporarily unavailable", services.ErrTransient},
	{"resource busy", services.ErrTransient},
	{"too many requests", services.ErrTransient},
	{"out of memory", services.ErrTransient},
}

// classifyRunError maps a process failure to the error taxonomy. Context
// expiry takes precedence over anything the process printed; otherwise the
// stderr tail is matched against known diagnostic patterns and defaults to
// an external tool failure.
func classifyRunError(stage, diagnostics string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, stage, "run tool",
			"stage exceeded its deadline", err)
	case errors.Is(err, context.Canceled):
		return services.Wrap(services.ErrCancelled, stage, "run tool", "", err)
	}

	lowered := strings.ToLower(diagnostics)
	for _, pattern := range diagnosticPatterns {
		if strings.Contains(lowered, pattern.fragment) {
			return services.Wrap(pattern.marker, stage, "run tool", diagnostics, err)
		}
	}
	return services.Wrap(services.ErrExternalTool, stage, "run tool", diagnostics, err)
}
