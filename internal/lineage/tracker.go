package lineage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"reel/internal/fileutil"
	"reel/internal/registry"
)

// Tracker manages stage provenance records under a job's root directory.
type Tracker struct {
	rootDir string

	mu   sync.Mutex
	open map[string]*Handle
}

// NewTracker creates a tracker rooted at the job directory.
func NewTracker(rootDir string) *Tracker {
	return &Tracker{
		rootDir: rootDir,
		open:    make(map[string]*Handle),
	}
}

// RootDir returns the job directory the tracker operates on.
func (t *Tracker) RootDir() string {
	return t.rootDir
}

// StageDir returns the directory for a stage, e.g. <root>/040-recognition.
func (t *Tracker) StageDir(def registry.Definition) string {
	return filepath.Join(t.rootDir, fmt.Sprintf("%03d-%s", def.Ordinal, def.Name))
}

// RecordPath returns the record.json path for a stage.
func (t *Tracker) RecordPath(def registry.Definition) string {
	return filepath.Join(t.StageDir(def), "record.json")
}

// Begin opens a provenance handle for a stage execution and creates the
// stage directory. Only one handle per stage may be open at a time.
func (t *Tracker) Begin(jobID string, def registry.Definition) (*Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.open[def.Name]; exists {
		return nil, fmt.Errorf("stage %s already has an open lineage handle", def.Name)
	}

	dir := t.StageDir(def)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create stage dir: %w", err)
	}

	handle := &Handle{
		tracker: t,
		dir:     dir,
		record: Record{
			JobID:     jobID,
			Stage:     def.Name,
			Ordinal:   def.Ordinal,
			StartedAt: time.Now().UTC(),
		},
	}
	t.open[def.Name] = handle
	return handle, nil
}

// OpenHandles returns stage names that were begun but never finalized.
func (t *Tracker) OpenHandles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.open))
	for name := range t.open {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads a stage's persisted record. Returns nil when the stage has no
// record yet.
func (t *Tracker) Load(def registry.Definition) (*Record, error) {
	data, err := os.ReadFile(t.RecordPath(def))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lineage record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode lineage record for %s: %w", def.Name, err)
	}
	return &record, nil
}

// ResolveOutput finds the named output artifact from a completed stage run.
// Returns nil when the stage has no record or did not produce the artifact.
func (t *Tracker) ResolveOutput(def registry.Definition, artifact string) (*ArtifactRecord, error) {
	record, err := t.Load(def)
	if err != nil {
		return nil, err
	}
	if !record.Succeeded() {
		return nil, nil
	}
	return record.Output(artifact), nil
}

// FindProducer walks stage records in reverse ordinal order and returns the
// latest completed stage that produced the named artifact, along with the
// artifact itself. Returns nils when no producer is found.
func (t *Tracker) FindProducer(defs []registry.Definition, artifact string) (*Record, *ArtifactRecord, error) {
	for i := len(defs) - 1; i >= 0; i-- {
		record, err := t.Load(defs[i])
		if err != nil {
			return nil, nil, err
		}
		if !record.Succeeded() {
			continue
		}
		if out := record.Output(artifact); out != nil {
			return record, out, nil
		}
	}
	return nil, nil, nil
}

// Warnings collects warnings from all persisted records in ordinal order.
func (t *Tracker) Warnings(defs []registry.Definition) ([]string, error) {
	var warnings []string
	for _, def := range defs {
		record, err := t.Load(def)
		if err != nil {
			return nil, err
		}
		if record == nil {
			continue
		}
		for _, w := range record.Warnings {
			warnings = append(warnings, fmt.Sprintf("%s: %s", def.Name, w))
		}
	}
	return warnings, nil
}

// Handle accumulates provenance for a single stage execution.
type Handle struct {
	tracker *Tracker
	dir     string

	mu        sync.Mutex
	finalized bool
	record    Record
}

// Dir returns the stage directory backing this handle.
func (h *Handle) Dir() string {
	return h.dir
}

// RecordInput notes an input consumed from an upstream stage, carrying the
// producer's artifact identity (type, size, checksum) into this record.
func (h *Handle) RecordInput(stage string, artifact ArtifactRecord, fromCache bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.Inputs = append(h.record.Inputs, InputRecord{
		Stage:     stage,
		Artifact:  artifact.Name,
		Type:      artifact.Type,
		Path:      artifact.Path,
		Bytes:     artifact.Bytes,
		Checksum:  artifact.Checksum,
		FromCache: fromCache,
	})
}

// RecordConfig pins the configuration snapshot the stage ran with.
func (h *Handle) RecordConfig(schemaVersion int, hash, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.Config = &ConfigRecord{
		SchemaVersion: schemaVersion,
		Hash:          hash,
		Path:          path,
	}
}

// RecordOutput registers a produced artifact, hashing the file for later
// integrity checks. The file must exist.
func (h *Handle) RecordOutput(name, artifactType, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat output %s: %w", name, err)
	}
	checksum, err := fileutil.HashFile(path)
	if err != nil {
		return fmt.Errorf("hash output %s: %w", name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.Outputs = append(h.record.Outputs, ArtifactRecord{
		Name:      name,
		Type:      artifactType,
		Path:      path,
		Bytes:     info.Size(),
		Checksum:  checksum,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// RecordIntermediate notes a scratch file produced during the stage and the
// reason it is retained.
func (h *Handle) RecordIntermediate(path, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.Intermediates = append(h.record.Intermediates, IntermediateRecord{
		Path:   path,
		Reason: reason,
	})
}

// AddWarning appends a non-fatal warning to the record.
func (h *Handle) AddWarning(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.Warnings = append(h.record.Warnings, message)
}

// MarkCacheHit flags the stage as satisfied from cache.
func (h *Handle) MarkCacheHit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.CacheHit = true
}

// Finalize persists the record with the given status and error message.
// A handle may be finalized exactly once.
func (h *Handle) Finalize(status, errMessage string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.finalized {
		return fmt.Errorf("stage %s lineage already finalized", h.record.Stage)
	}
	h.record.Status = status
	h.record.Error = errMessage
	h.record.FinishedAt = time.Now().UTC()

	data, err := json.MarshalIndent(h.record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lineage record: %w", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(h.dir, "record.json"), data, 0o644); err != nil {
		return fmt.Errorf("write lineage record: %w", err)
	}
	h.finalized = true

	h.tracker.mu.Lock()
	delete(h.tracker.open, h.record.Stage)
	h.tracker.mu.Unlock()
	return nil
}
