package api

import "murmur/internal/pipeline"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest = pipeline.SynthesisRequest

// Job describes a queued synthesis job in a transport-friendly format.
type Job struct {
	ID         int64       `json:"id"`
	JobID      string      `json:"job_id"`
	Status     string      `json:"status"`
	Progress   JobProgress `json:"progress"`
	Error      *JobError   `json:"error,omitempty"`
	Result     *JobResult  `json:"result,omitempty"`
	Attempts   int         `json:"attempts"`
	CreatedAt  string      `json:"created_at,omitempty"`
	UpdatedAt  string      `json:"updated_at,omitempty"`
	StartedAt  string      `json:"started_at,omitempty"`
	FinishedAt string      `json:"finished_at,omitempty"`
	ElapsedMS  int64       `json:"elapsed_ms,omitempty"`

	Request *pipeline.SynthesisRequest `json:"request,omitempty"`
}

// JobProgress captures the pipeline state of a job.
type JobProgress struct {
	State   string  `json:"state"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// JobError explains why a job failed. Kind separates invalid input from
// upstream failures.
type JobError struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// JobResult is the outcome of a completed job.
type JobResult struct {
	Location        string  `json:"location"`
	DurationSeconds float64 `json:"duration_seconds"`
	FragmentCount   int     `json:"fragment_count"`
}

// ActiveJob is a job currently held by a worker.
type ActiveJob struct {
	Worker  int    `json:"worker"`
	JobID   string `json:"job_id"`
	State   string `json:"state"`
	Started string `json:"started"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	Workers    int            `json:"workers"`
	Active     []ActiveJob    `json:"active"`
	QueueStats map[string]int `json:"queue_stats"`
	LastError  string         `json:"last_error,omitempty"`
	LastJob    *Job           `json:"last_job,omitempty"`
}

// DependencyStatus captures availability of an external program.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult mirrors one preflight check.
type CheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Required bool   `json:"required"`
	Detail   string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queue_db_path"`
	LockFilePath string             `json:"lock_file_path"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Checks       []CheckResult      `json:"checks,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// ClearResponse reports how many jobs DELETE /api/jobs removed.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}
