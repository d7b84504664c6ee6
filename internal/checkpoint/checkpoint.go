// Package checkpoint persists per-job resume state.
//
// A checkpoint.json in the job root records which stages completed and the
// outputs they produced. On resume the manager verifies those outputs still
// exist and match their recorded checksums before skipping work; anything
// that fails verification is rolled back so the stage runs again.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reel/internal/fileutil"
	"reel/internal/lineage"
	"reel/internal/registry"
	"reel/internal/services"
)

const fileName = "checkpoint.json"

// StageCheckpoint records one completed stage and its verified outputs.
type StageCheckpoint struct {
	Stage       string                   `json:"stage"`
	Ordinal     int                      `json:"ordinal"`
	CompletedAt time.Time                `json:"completed_at"`
	Outputs     []lineage.ArtifactRecord `json:"outputs,omitempty"`
}

// Checkpoint is the persisted resume state for a job.
type Checkpoint struct {
	JobID         string            `json:"job_id"`
	Workflow      string            `json:"workflow"`
	MediaIdentity string            `json:"media_identity,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Stages        []StageCheckpoint `json:"stages"`
}

// LastCompleted returns the name of the latest completed stage, or empty.
func (c *Checkpoint) LastCompleted() string {
	if c == nil || len(c.Stages) == 0 {
		return ""
	}
	return c.Stages[len(c.Stages)-1].Stage
}

// Stage returns the checkpoint entry for a stage name, or nil.
func (c *Checkpoint) Stage(name string) *StageCheckpoint {
	if c == nil {
		return nil
	}
	for i := range c.Stages {
		if c.Stages[i].Stage == name {
			return &c.Stages[i]
		}
	}
	return nil
}

// Manager reads and writes the checkpoint file for one job root.
type Manager struct {
	rootDir string
}

// NewManager creates a manager rooted at the job directory.
func NewManager(rootDir string) *Manager {
	return &Manager{rootDir: rootDir}
}

// Path returns the checkpoint file location.
func (m *Manager) Path() string {
	return filepath.Join(m.rootDir, fileName)
}

// Load reads the checkpoint. Returns nil when no checkpoint exists.
// A corrupt checkpoint is an integrity violation: callers should discard
// it and resume from scratch.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, services.Wrap(services.ErrIntegrity, "checkpoint", "load",
			"checkpoint file is corrupt", err)
	}
	return &cp, nil
}

// Init writes a fresh checkpoint header with no completed stages.
func (m *Manager) Init(jobID, workflow, mediaIdentity string) (*Checkpoint, error) {
	cp := &Checkpoint{
		JobID:         jobID,
		Workflow:      workflow,
		MediaIdentity: mediaIdentity,
		Stages:        []StageCheckpoint{},
	}
	if err := m.write(cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// MarkCompleted appends a completed stage with its outputs and persists the
// checkpoint. Advancement happens only after the stage's outputs are recorded,
// so a crash between stages never claims unfinished work.
func (m *Manager) MarkCompleted(cp *Checkpoint, def registry.Definition, outputs []lineage.ArtifactRecord) error {
	if cp == nil {
		return errors.New("checkpoint is nil")
	}
	if existing := cp.Stage(def.Name); existing != nil {
		return fmt.Errorf("stage %s already checkpointed", def.Name)
	}
	cp.Stages = append(cp.Stages, StageCheckpoint{
		Stage:       def.Name,
		Ordinal:     def.Ordinal,
		CompletedAt: time.Now().UTC(),
		Outputs:     outputs,
	})
	return m.write(cp)
}

// Rollback removes the named stage and every stage after it, then persists.
func (m *Manager) Rollback(cp *Checkpoint, stage string) error {
	if cp == nil {
		return errors.New("checkpoint is nil")
	}
	for i := range cp.Stages {
		if cp.Stages[i].Stage == stage {
			cp.Stages = cp.Stages[:i]
			return m.write(cp)
		}
	}
	return nil
}

// Clear removes the checkpoint file.
func (m *Manager) Clear() error {
	err := os.Remove(m.Path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// VerifyStage checks that every recorded output of a checkpointed stage still
// exists, is non-empty, and matches its recorded checksum.
func (m *Manager) VerifyStage(sc *StageCheckpoint) error {
	if sc == nil {
		return errors.New("stage checkpoint is nil")
	}
	for _, out := range sc.Outputs {
		info, err := os.Stat(out.Path)
		if err != nil {
			return services.Wrap(services.ErrIntegrity, sc.Stage, "verify checkpoint",
				fmt.Sprintf("output %s missing", out.Name), err)
		}
		if info.Size() == 0 {
			return services.Wrap(services.ErrIntegrity, sc.Stage, "verify checkpoint",
				fmt.Sprintf("output %s is empty", out.Name), nil)
		}
		checksum, err := fileutil.HashFile(out.Path)
		if err != nil {
			return services.Wrap(services.ErrIntegrity, sc.Stage, "verify checkpoint",
				fmt.Sprintf("output %s unreadable", out.Name), err)
		}
		if out.Checksum != "" && checksum != out.Checksum {
			return services.Wrap(services.ErrIntegrity, sc.Stage, "verify checkpoint",
				fmt.Sprintf("output %s checksum mismatch", out.Name), nil)
		}
	}
	return nil
}

// ResumePoint determines where a job should resume within the ordered stage
// list. Checkpointed stages are verified in order; the first stage that fails
// verification (and everything after it) is rolled back and re-run. Returns
// the index of the first stage to execute and any warnings generated by
// rollbacks.
func (m *Manager) ResumePoint(cp *Checkpoint, defs []registry.Definition) (int, []string, error) {
	if cp == nil || len(cp.Stages) == 0 {
		return 0, nil, nil
	}

	var warnings []string
	for i, def := range defs {
		sc := cp.Stage(def.Name)
		if sc == nil {
			return i, warnings, nil
		}
		if err := m.VerifyStage(sc); err != nil {
			warnings = append(warnings,
				fmt.Sprintf("checkpoint for %s failed verification, re-running: %s", def.Name, services.Details(err).Message))
			if rbErr := m.Rollback(cp, def.Name); rbErr != nil {
				return 0, warnings, rbErr
			}
			return i, warnings, nil
		}
	}
	return len(defs), warnings, nil
}

func (m *Manager) write(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(m.rootDir, 0o755); err != nil {
		return fmt.Errorf("create job root: %w", err)
	}
	if err := fileutil.WriteFileAtomic(m.Path(), data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
