// Package api defines wire-format types, converters and the HTTP client for
// the daemon job API. It translates queue rows and workflow diagnostics into
// transport-friendly DTOs so the CLI and other consumers can render them
// without coupling to internal types.
//
// # Key Types
//
// Job: a queued synthesis job with progress, failure details (kind, stage,
// message) or the published result.
//
// WorkflowStatus: worker pool state, active jobs and queue counts.
//
// DaemonStatus: aggregated runtime information including dependency and
// preflight results.
//
// # Converters
//
// FromQueueItem: queue.Item -> Job. The stored request JSON is decoded and
// echoed back when valid.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// # Design Notes
//
// DTOs use snake_case JSON tags. Timestamps use RFC3339 with milliseconds in
// UTC. Non-2xx responses carry ErrorResponse; the client turns them into
// *APIError, which matches services.ErrValidation for 400 and
// services.ErrNotFound for 404 under errors.Is.
package api
