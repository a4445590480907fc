// Package logs reads daemon log files for `murmur logs`.
//
// Tail returns the last N lines (optionally only those mentioning a job id)
// together with the byte offset reached, and follow mode polls from that
// offset for lines appended later.
package logs
