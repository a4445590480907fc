// Package publish delivers finished audio out of the job workspace.
//
// Local moves results into the configured output directory. NATS uploads
// them to a JetStream object store bucket and announces a CompletionEvent
// on a subject so downstream consumers can pick them up.
package publish
