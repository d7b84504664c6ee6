package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a pipeline job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// CancelledMessage is the error summary recorded when a job is cancelled by the operator.
const CancelledMessage = "Cancelled by operator"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Job represents a pipeline job persisted in SQLite.
type Job struct {
	ID                 string
	Workflow           string
	MediaPath          string
	MediaIdentity      string
	RootDir            string
	Owner              string
	Status             Status
	CurrentStage       string
	LastCompletedStage string
	ErrorStage         string
	ErrorKind          string
	ErrorMessage       string
	OptionsJSON        string
	LogPath            string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	StartedAt          *time.Time
	FinishedAt         *time.Time
	LastHeartbeat      *time.Time
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Failed    int
	Completed int
	Cancelled int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status reflects a finished job.
func IsTerminal(status Status) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsRunning returns true when the job reflects an in-flight pipeline run.
func (j Job) IsRunning() bool {
	return j.Status == StatusRunning
}

// SetFailed marks the job as failed at the given stage.
// Clears the heartbeat and current stage so the job is no longer considered in flight.
func (j *Job) SetFailed(stage, kind, message string) {
	j.Status = StatusFailed
	j.ErrorStage = stage
	j.ErrorKind = kind
	j.ErrorMessage = message
	j.CurrentStage = ""
	j.LastHeartbeat = nil
}

// SetCompleted marks the job as completed and clears transient run state.
func (j *Job) SetCompleted(finishedAt time.Time) {
	j.Status = StatusCompleted
	j.CurrentStage = ""
	j.ErrorStage = ""
	j.ErrorKind = ""
	j.ErrorMessage = ""
	j.LastHeartbeat = nil
	ts := finishedAt.UTC()
	j.FinishedAt = &ts
}
