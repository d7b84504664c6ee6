package runner

import (
	"context"
	"path/filepath"

	"reel/internal/fileutil"
	"reel/internal/lineage"
	"reel/internal/registry"
	"reel/internal/services"
)

// builtinFunc implements a stage inside the control plane instead of an
// external process. It records its outputs on the handle and returns them
// by artifact name.
type builtinFunc func(ctx context.Context, r *Runner, jc JobContext, handle *lineage.Handle) (map[string]string, error)

var builtins = map[string]builtinFunc{
	"ingest":      builtinIngest,
	"fingerprint": builtinFingerprint,
}

// builtinIngest validates the job's media source and publishes it as the
// source artifact. The media stays in place; later stages read it where it
// lives.
func builtinIngest(_ context.Context, _ *Runner, jc JobContext, handle *lineage.Handle) (map[string]string, error) {
	if !fileutil.NonEmptyFile(jc.MediaPath) {
		return nil, services.Wrap(services.ErrInputNotFound, "ingest", "validate media",
			"media file missing or empty: "+jc.MediaPath, nil)
	}
	if err := handle.RecordOutput("source", string(registry.ArtifactMedia), jc.MediaPath); err != nil {
		return nil, err
	}
	return map[string]string{"source": jc.MediaPath}, nil
}

// builtinFingerprint writes the precomputed media identity as the stage's
// artifact so downstream records and the cache can reference it.
func builtinFingerprint(_ context.Context, _ *Runner, jc JobContext, handle *lineage.Handle) (map[string]string, error) {
	if jc.MediaIdentity == "" {
		return nil, services.Wrap(services.ErrConfiguration, "fingerprint", "write identity",
			"media identity was not computed before the stage ran", nil)
	}
	path := filepath.Join(handle.Dir(), "identity")
	if err := fileutil.WriteFileAtomic(path, []byte(jc.MediaIdentity+"\n"), 0o644); err != nil {
		return nil, err
	}
	if err := handle.RecordOutput("identity", string(registry.ArtifactFingerprint), path); err != nil {
		return nil, err
	}
	return map[string]string{"identity": path}, nil
}
