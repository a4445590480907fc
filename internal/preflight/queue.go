package preflight

import (
	"context"
	"fmt"

	"murmur/internal/queue"
)

// HealthChecker reports queue database diagnostics.
type HealthChecker interface {
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// CheckQueueDatabase verifies the queue database schema and integrity.
func CheckQueueDatabase(ctx context.Context, store HealthChecker) Result {
	result := Result{Name: "Queue database", Required: true}
	health, err := store.CheckHealth(ctx)
	if err != nil {
		result.Detail = summarizeError(err)
		return result
	}
	if problem := health.Problem(); problem != "" {
		result.Detail = problem
		return result
	}
	result.Passed = true
	result.Detail = fmt.Sprintf("%s (%d jobs)", health.DBPath, health.TotalItems)
	return result
}
