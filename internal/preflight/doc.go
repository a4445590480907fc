// Package preflight provides readiness checks for the directories, binaries
// and services murmur depends on.
//
// The daemon runs RunAll before starting workers and refuses to start when a
// required check fails; `murmur status` renders the same results. TTS
// reachability is reported but never blocks startup.
package preflight
