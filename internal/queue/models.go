package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queued job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the error message set when a job is interrupted by shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a user-supplied value into a Status.
func ParseStatus(value string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no worker will touch the job again without a retry.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalItems       int      `json:"total_items"`
	Error            string   `json:"error,omitempty"`
}

// Item is one persisted synthesis job.
type Item struct {
	ID              int64
	JobID           string
	Status          Status
	Request         string
	PipelineState   string
	ProgressPercent float64
	ProgressMessage string
	ErrorKind       string
	FailedStage     string
	ErrorMessage    string
	FinalPath       string
	DurationSeconds float64
	FragmentCount   int
	Attempts        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	LastHeartbeat   *time.Time
}

// SetProgress records the current pipeline state.
func (i *Item) SetProgress(state, message string, percent float64) {
	i.PipelineState = state
	i.ProgressMessage = message
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	i.ProgressPercent = percent
}

// SetCompleted marks the job completed with its result.
func (i *Item) SetCompleted(finalPath string, durationSeconds float64, fragmentCount int) {
	now := time.Now().UTC()
	i.Status = StatusCompleted
	i.PipelineState = "completed"
	i.FinalPath = finalPath
	i.DurationSeconds = durationSeconds
	i.FragmentCount = fragmentCount
	i.ProgressPercent = 100
	i.ProgressMessage = "Completed"
	i.ErrorKind = ""
	i.FailedStage = ""
	i.ErrorMessage = ""
	i.FinishedAt = &now
	i.LastHeartbeat = nil
}

// SetFailed marks the job failed, recording which state failed and why. The
// pipeline state becomes "failed"; stage keeps the state that was active.
func (i *Item) SetFailed(kind, stage, message string) {
	now := time.Now().UTC()
	i.Status = StatusFailed
	i.PipelineState = "failed"
	i.ErrorKind = kind
	i.FailedStage = stage
	i.ErrorMessage = message
	i.ProgressMessage = "Failed"
	i.FinishedAt = &now
	i.LastHeartbeat = nil
}

// Elapsed returns how long the job ran, or has been running.
func (i Item) Elapsed() time.Duration {
	if i.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if i.FinishedAt != nil {
		end = *i.FinishedAt
	}
	return end.Sub(*i.StartedAt)
}
