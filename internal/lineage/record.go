// Package lineage records per-stage provenance for pipeline jobs.
//
// Every stage execution leaves a record.json in its stage directory
// describing the inputs it consumed, the outputs it produced, and any
// warnings raised along the way. Records are written atomically and are
// the authority consulted when later stages resolve their inputs.
package lineage

import "time"

// Record statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

// ArtifactRecord describes a single output produced by a stage.
type ArtifactRecord struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Path      string    `json:"path"`
	Bytes     int64     `json:"bytes"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// InputRecord describes an input consumed by a stage, pointing back at the
// stage that produced it. Type, size, and checksum are carried over from the
// producer's artifact record so consumption can be audited without the
// producer's record.
type InputRecord struct {
	Stage     string `json:"stage"`
	Artifact  string `json:"artifact"`
	Type      string `json:"type,omitempty"`
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes,omitempty"`
	Checksum  string `json:"checksum,omitempty"`
	FromCache bool   `json:"from_cache,omitempty"`
}

// ConfigRecord pins the exact configuration a stage ran with.
type ConfigRecord struct {
	SchemaVersion int    `json:"schema_version"`
	Hash          string `json:"hash"`
	Path          string `json:"path,omitempty"`
}

// IntermediateRecord notes a scratch file left in the stage directory and
// why it is kept.
type IntermediateRecord struct {
	Path   string `json:"path"`
	Reason string `json:"reason,omitempty"`
}

// Record is the persisted provenance of one stage execution.
type Record struct {
	JobID         string               `json:"job_id"`
	Stage         string               `json:"stage"`
	Ordinal       int                  `json:"ordinal"`
	Status        string               `json:"status"`
	CacheHit      bool                 `json:"cache_hit,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    time.Time            `json:"finished_at"`
	Config        *ConfigRecord        `json:"config,omitempty"`
	Inputs        []InputRecord        `json:"inputs,omitempty"`
	Outputs       []ArtifactRecord     `json:"outputs,omitempty"`
	Intermediates []IntermediateRecord `json:"intermediates,omitempty"`
	Warnings      []string             `json:"warnings,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// Output returns the named output artifact, or nil when absent.
func (r *Record) Output(name string) *ArtifactRecord {
	if r == nil {
		return nil
	}
	for i := range r.Outputs {
		if r.Outputs[i].Name == name {
			return &r.Outputs[i]
		}
	}
	return nil
}

// Succeeded reports whether the record reflects a completed stage run.
func (r *Record) Succeeded() bool {
	return r != nil && r.Status == StatusCompleted
}
