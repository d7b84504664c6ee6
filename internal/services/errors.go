package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors forming the pipeline error taxonomy. Stage and cache code
// tags failures with one of these markers via Wrap so the orchestrator and
// CLI can classify them without string matching.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrInputNotFound   = errors.New("input not found")
	ErrExternalTool    = errors.New("external tool error")
	ErrTimeout         = errors.New("timeout")
	ErrCancelled       = errors.New("cancelled")
	ErrCacheCorruption = errors.New("cache corruption")
	ErrIntegrity       = errors.New("integrity violation")
	ErrTransient       = errors.New("transient failure")
)

// Kind is the user-visible classification of a pipeline error.
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindInputNotFound   Kind = "input_not_found"
	KindExternalTool    Kind = "tool_failure"
	KindTimeout         Kind = "timed_out"
	KindCancelled       Kind = "cancelled"
	KindCacheCorruption Kind = "cache_corruption"
	KindIntegrity       Kind = "integrity_violation"
	KindTransient       Kind = "transient"
	KindUnknown         Kind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ClassifyKind maps an error to its taxonomy kind.
func ClassifyKind(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrInputNotFound):
		return KindInputNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrCacheCorruption):
		return KindCacheCorruption
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsTransient reports whether the error should receive bounded retry before
// final classification.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// SelfHealing reports whether the error kind resolves automatically
// (recompute or resume-point rollback) rather than failing the job.
func SelfHealing(err error) bool {
	return errors.Is(err, ErrCacheCorruption) || errors.Is(err, ErrIntegrity)
}

// Exit codes for the command surface.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitMissing       = 3
	ExitStageFailure  = 4
)

// ExitCode maps an error to the documented CLI exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch ClassifyKind(err) {
	case KindConfiguration:
		return ExitConfiguration
	case KindInputNotFound:
		return ExitMissing
	case KindExternalTool, KindTimeout:
		return ExitStageFailure
	default:
		return ExitFailure
	}
}

// Detail carries the human-readable portions of a tagged error.
type Detail struct {
	Kind    Kind
	Message string
}

// Details extracts the classification and trimmed message from an error.
func Details(err error) Detail {
	if err == nil {
		return Detail{Kind: KindUnknown}
	}
	msg := err.Error()
	for _, marker := range []error{
		ErrConfiguration, ErrInputNotFound, ErrExternalTool, ErrTimeout,
		ErrCancelled, ErrCacheCorruption, ErrIntegrity, ErrTransient,
	} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			msg = strings.TrimPrefix(msg, prefix)
			break
		}
	}
	return Detail{Kind: ClassifyKind(err), Message: strings.TrimSpace(msg)}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
