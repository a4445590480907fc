// Package logging assembles structured slog loggers and formatting helpers used
// across murmur.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with job IDs, pipeline states, and correlation IDs. TeeLogger copies a
// job's records into its own log file alongside the daemon log.
package logging
