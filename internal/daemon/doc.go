// Package daemon coordinates the long-running murmur process.
//
// It wires configuration, queue storage and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Start runs preflight checks, requeues jobs a crashed predecessor left
// processing, and then launches the worker pool and the job API.
//
// The HTTP API accepts synthesis requests (validated before they are queued),
// lists and describes jobs, resubmits failed jobs, reports daemon status and,
// when telemetry is enabled, serves Prometheus metrics. A static bearer token
// guards every route when api.token is set.
//
// Keep orchestration logic here: the pipeline lives in its own packages while
// the daemon focuses on startup, shutdown, and high level coordination.
package daemon
