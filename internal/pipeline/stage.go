package pipeline

import (
	"fmt"
	"time"
)

// StageStatus is the lifecycle of one PipelineStage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// PipelineStage records one executed step. Status only moves
// pending -> running -> succeeded|failed.
type PipelineStage struct {
	Name     State
	Inputs   []string
	Output   string
	Status   StageStatus
	Err      error
	Started  time.Time
	Finished time.Time
}

// StageSummary is the reportable view of a PipelineStage.
type StageSummary struct {
	Name       State       `json:"name"`
	Status     StageStatus `json:"status"`
	Output     string      `json:"output,omitempty"`
	ElapsedMS  int64       `json:"elapsed_ms"`
	Error      string      `json:"error,omitempty"`
	InputCount int         `json:"input_count"`
}

// NewPipelineStage returns a pending stage.
func NewPipelineStage(name State, inputs []string, output string) *PipelineStage {
	return &PipelineStage{
		Name:   name,
		Inputs: append([]string(nil), inputs...),
		Output: output,
		Status: StagePending,
	}
}

// Start moves the stage to running.
func (s *PipelineStage) Start() error {
	if s.Status != StagePending {
		return fmt.Errorf("%w: stage %s start from %s", ErrInvalidTransition, s.Name, s.Status)
	}
	s.Status = StageRunning
	s.Started = time.Now()
	return nil
}

// Succeed moves a running stage to succeeded.
func (s *PipelineStage) Succeed() error {
	if s.Status != StageRunning {
		return fmt.Errorf("%w: stage %s succeed from %s", ErrInvalidTransition, s.Name, s.Status)
	}
	s.Status = StageSucceeded
	s.Finished = time.Now()
	return nil
}

// Fail moves a running stage to failed.
func (s *PipelineStage) Fail(err error) error {
	if s.Status != StageRunning {
		return fmt.Errorf("%w: stage %s fail from %s", ErrInvalidTransition, s.Name, s.Status)
	}
	s.Status = StageFailed
	s.Err = err
	s.Finished = time.Now()
	return nil
}

// Elapsed returns how long the stage ran.
func (s *PipelineStage) Elapsed() time.Duration {
	if s.Started.IsZero() {
		return 0
	}
	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}
	return s.Finished.Sub(s.Started)
}

// Summary converts the stage for reporting.
func (s *PipelineStage) Summary() StageSummary {
	summary := StageSummary{
		Name:       s.Name,
		Status:     s.Status,
		Output:     s.Output,
		ElapsedMS:  s.Elapsed().Milliseconds(),
		InputCount: len(s.Inputs),
	}
	if s.Err != nil {
		summary.Error = s.Err.Error()
	}
	return summary
}
