// Package pipeline turns a validated synthesis request into one mixed audio
// file.
//
// A Job moves through an explicit State machine: validating, synthesizing,
// concatenating, tempo_shifting, volume_adjusting, looping, mixing and
// completed, with failed reachable from any non-terminal state. Each
// transcode step is recorded as a PipelineStage whose inputs must exist
// before it starts. The Orchestrator owns the job workspace and releases it
// on every exit path; failures surface as *StageError values that classify
// through the services error markers.
package pipeline
