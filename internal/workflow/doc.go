// Package workflow drains the job queue through the synthesis pipeline.
//
// The Manager runs a fixed pool of workers. Each worker reclaims jobs whose
// heartbeat expired, claims the oldest pending job, and runs it through the
// pipeline while refreshing the job heartbeat and persisting every state
// transition as progress. Results and failures (error kind, failed state,
// message) are written back to the queue row, each job gets its own log file,
// and notifications fire when jobs finish and when the queue drains.
package workflow
