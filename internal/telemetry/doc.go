// Package telemetry exports pipeline metrics in Prometheus format and,
// optionally, one span per pipeline state to a writer.
//
// Telemetry implements pipeline.Observer, so it only needs to be attached to
// the orchestrator to see every job.
package telemetry
