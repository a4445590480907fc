// Package notifications delivers job events via ntfy.
//
// NewService publishes to the topic configured under [notifications] and
// degrades to a no-op when no topic is set. Job completion and failure
// pushes can be toggled independently; queue start events are never pushed.
package notifications
