package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"

	"reel/internal/config"
	"reel/internal/fileutil"
)

const snapshotFileName = "snapshot.json"

// Snapshot is the config view handed to a stage process. It is written to
// the stage directory before the process starts so the stage sees exactly
// the options that were validated at job creation.
type Snapshot struct {
	Stage         string         `json:"stage"`
	Workflow      string         `json:"workflow"`
	JobID         string         `json:"job_id"`
	SchemaVersion int            `json:"schema_version"`
	Options       map[string]any `json:"options,omitempty"`
	ConfigHash    string         `json:"config_hash"`
}

// newSnapshot builds the snapshot for a stage run. The config hash covers
// only the stage's schema version and options, so unrelated config edits do
// not invalidate cached results.
func newSnapshot(stage config.Stage, stageName, workflow, jobID string) (Snapshot, error) {
	hashed, err := json.Marshal(struct {
		SchemaVersion int            `json:"schema_version"`
		Options       map[string]any `json:"options,omitempty"`
	}{stage.SchemaVersion, stage.Options})
	if err != nil {
		return Snapshot{}, fmt.Errorf("runner: hash stage config: %w", err)
	}
	sum := sha256.Sum256(hashed)
	return Snapshot{
		Stage:         stageName,
		Workflow:      workflow,
		JobID:         jobID,
		SchemaVersion: stage.SchemaVersion,
		Options:       stage.Options,
		ConfigHash:    hex.EncodeToString(sum[:]),
	}, nil
}

// write persists the snapshot into the stage directory and returns its path.
func (s Snapshot) write(stageDir string) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("runner: marshal snapshot: %w", err)
	}
	path := filepath.Join(stageDir, snapshotFileName)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("runner: write snapshot: %w", err)
	}
	return path, nil
}
