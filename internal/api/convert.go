package api

import (
	"encoding/json"
	"time"

	"murmur/internal/deps"
	"murmur/internal/pipeline"
	"murmur/internal/preflight"
	"murmur/internal/queue"
	"murmur/internal/workflow"
)

// FromQueueItem converts a queue row to its API representation. The stored
// request is decoded when it is valid JSON and omitted otherwise.
func FromQueueItem(item *queue.Item) Job {
	if item == nil {
		return Job{}
	}
	state := item.PipelineState
	if state == "" {
		state = string(pipeline.StateValidating)
	}
	dto := Job{
		ID:       item.ID,
		JobID:    item.JobID,
		Status:   string(item.Status),
		Attempts: item.Attempts,
		Progress: JobProgress{
			State:   state,
			Percent: item.ProgressPercent,
			Message: item.ProgressMessage,
		},
		CreatedAt:  FormatTime(item.CreatedAt),
		UpdatedAt:  FormatTime(item.UpdatedAt),
		StartedAt:  formatTimePtr(item.StartedAt),
		FinishedAt: formatTimePtr(item.FinishedAt),
		ElapsedMS:  item.Elapsed().Milliseconds(),
	}
	if item.Status == queue.StatusFailed {
		dto.Error = &JobError{
			Kind:    item.ErrorKind,
			Stage:   item.FailedStage,
			Message: item.ErrorMessage,
		}
	}
	if item.Status == queue.StatusCompleted {
		dto.Result = &JobResult{
			Location:        item.FinalPath,
			DurationSeconds: item.DurationSeconds,
			FragmentCount:   item.FragmentCount,
		}
	}
	if item.Request != "" {
		var req pipeline.SynthesisRequest
		if err := json.Unmarshal([]byte(item.Request), &req); err == nil {
			dto.Request = &req
		}
	}
	return dto
}

// FromQueueItems converts a slice of queue rows.
func FromQueueItems(items []*queue.Item) []Job {
	if len(items) == 0 {
		return nil
	}
	out := make([]Job, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    summary.Running,
		Workers:    summary.Workers,
		QueueStats: MergeQueueStats(summary.QueueStats),
		LastError:  summary.LastError,
	}
	for _, active := range summary.Active {
		status.Active = append(status.Active, ActiveJob{
			Worker:  active.Worker,
			JobID:   active.JobID,
			State:   string(active.State),
			Started: FormatTime(active.Started),
		})
	}
	if summary.LastItem != nil {
		job := FromQueueItem(summary.LastItem)
		status.LastJob = &job
	}
	return status
}

// MergeQueueStats keys stats by status string and fills in zero counts so
// every status is present.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

// FromDependencies converts binary availability results.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Required: r.Required, Detail: r.Detail})
	}
	return out
}

// FormatTime renders t for API payloads, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}
