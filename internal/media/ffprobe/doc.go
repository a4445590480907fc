// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Prober runs ffprobe through the command executor so tests can script its
// output. Duration is the entry point the catalog uses to learn a music
// track's length once.
package ffprobe
