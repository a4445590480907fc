// Package queue persists synthesis jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, and stuck-job recovery. Jobs move from pending
// to processing through ClaimNext, which guarantees a single owner per job,
// and end as completed or failed with the pipeline state that failed and the
// error kind recorded alongside.
//
// The same database caches probed background track durations so catalog
// listings do not invoke ffprobe for unchanged files.
//
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package queue
