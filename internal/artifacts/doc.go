// Package artifacts owns the per-job scratch directories that hold speech
// fragments and transcode intermediates.
//
// Store.Open creates one directory per job id and refuses to start when the
// filesystem is short on space. Workspace.Release applies the cleanup policy
// (always, keep_failed, never) and is safe to defer on every path. CleanStale
// sweeps directories left behind by retention or by a crashed process.
package artifacts
