package pipeline

import (
	"time"

	"murmur/internal/artifacts"
	"murmur/internal/catalog"
	"murmur/internal/tts"
)

// Job is the aggregate for one pipeline run. It owns its workspace for the
// duration of Orchestrator.Run.
type Job struct {
	ID        string
	Request   SynthesisRequest
	Voice     catalog.Voice
	Track     catalog.MusicTrack
	Workspace *artifacts.Workspace
	Fragments []tts.Fragment
	Stages    []*PipelineStage
	Machine   *Machine
	Result    *JobResult
	Created   time.Time
}

// JobResult is returned for a completed job.
type JobResult struct {
	JobID           string         `json:"job_id"`
	FinalPath       string         `json:"final_path"`
	DurationSeconds float64        `json:"duration_seconds"`
	FragmentCount   int            `json:"fragment_count"`
	Stages          []StageSummary `json:"stages,omitempty"`
}

func (j *Job) summaries() []StageSummary {
	out := make([]StageSummary, 0, len(j.Stages))
	for _, stage := range j.Stages {
		out = append(out, stage.Summary())
	}
	return out
}
