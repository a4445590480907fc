// Package services defines shared error and context utilities consumed by the
// pipeline stages and the daemon.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, pipeline states, and correlation
//     identifiers for logging and tracing.
//   - Error markers for the validation, synthesis, execution and storage
//     classes, the Wrap helper, and KindOf which maps any error to the stable
//     kind persisted on failed jobs.
package services
