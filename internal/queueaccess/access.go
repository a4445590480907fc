package queueaccess

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"murmur/internal/api"
	"murmur/internal/pipeline"
	"murmur/internal/queue"
	"murmur/internal/services"
)

// Access provides job operations whether the daemon API or the queue
// database backs them.
type Access interface {
	Submit(ctx context.Context, req pipeline.SynthesisRequest) (*api.Job, error)
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.Job, error)
	Describe(ctx context.Context, jobID string) (*api.Job, error)
	Retry(ctx context.Context, jobID string) (*api.Job, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
}

// Validator normalizes a request before it is queued.
type Validator interface {
	Validate(req pipeline.SynthesisRequest) (pipeline.SynthesisRequest, error)
}

// CatalogValidator validates requests against a loaded catalog without a
// running pipeline.
type CatalogValidator struct {
	Lookup pipeline.VoiceLookup
	Limits pipeline.Limits
}

// Validate implements Validator.
func (v CatalogValidator) Validate(req pipeline.SynthesisRequest) (pipeline.SynthesisRequest, error) {
	return pipeline.Validate(req, v.Lookup, v.Limits)
}

// NewAPIAccess returns an Access backed by the daemon HTTP API.
func NewAPIAccess(client *api.Client) Access {
	return &apiAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access. validator may
// be nil when the caller never submits.
func NewStoreAccess(store *queue.Store, validator Validator) Access {
	return &storeAccess{store: store, validator: validator}
}

type apiAccess struct {
	client *api.Client
}

func (a *apiAccess) Submit(ctx context.Context, req pipeline.SynthesisRequest) (*api.Job, error) {
	return a.client.Submit(ctx, req)
}

func (a *apiAccess) Stats(ctx context.Context) (map[string]int, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Workflow.QueueStats, nil
}

func (a *apiAccess) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	return a.client.List(ctx, statuses...)
}

func (a *apiAccess) Describe(ctx context.Context, jobID string) (*api.Job, error) {
	job, err := a.client.Get(ctx, jobID)
	if err != nil {
		if services.KindOf(err) == services.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (a *apiAccess) Retry(ctx context.Context, jobID string) (*api.Job, error) {
	return a.client.Retry(ctx, jobID)
}

func (a *apiAccess) ClearAll(ctx context.Context) (int64, error) {
	return a.client.Clear(ctx, "")
}

func (a *apiAccess) ClearCompleted(ctx context.Context) (int64, error) {
	return a.client.Clear(ctx, string(queue.StatusCompleted))
}

func (a *apiAccess) ClearFailed(ctx context.Context) (int64, error) {
	return a.client.Clear(ctx, string(queue.StatusFailed))
}

type storeAccess struct {
	store     *queue.Store
	validator Validator
}

func (a *storeAccess) Submit(ctx context.Context, req pipeline.SynthesisRequest) (*api.Job, error) {
	if a.validator == nil {
		return nil, services.Wrap(services.ErrConfiguration, "queue", "submit", "no request validator configured", nil)
	}
	normalized, err := a.validator.Validate(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	item, err := a.store.Enqueue(ctx, uuid.NewString(), payload)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "queue", "enqueue", "failed to queue job", err)
	}
	job := api.FromQueueItem(item)
	return &job, nil
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return api.MergeQueueStats(stats), nil
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	filters, err := parseStatuses(statuses)
	if err != nil {
		return nil, err
	}
	items, err := a.store.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	return api.SortJobsNewestFirst(api.FromQueueItems(items)), nil
}

// Describe returns nil without error for an unknown job.
func (a *storeAccess) Describe(ctx context.Context, jobID string) (*api.Job, error) {
	item, err := a.store.GetByJobID(ctx, jobID)
	if err != nil || item == nil {
		return nil, err
	}
	job := api.FromQueueItem(item)
	return &job, nil
}

func (a *storeAccess) Retry(ctx context.Context, jobID string) (*api.Job, error) {
	item, err := a.store.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: job %s", services.ErrNotFound, strings.TrimSpace(jobID))
	}
	if item.Status != queue.StatusFailed {
		return nil, &pipeline.ValidationError{Field: "status", Reason: fmt.Sprintf("job is %s; only failed jobs can be retried", item.Status)}
	}
	if _, err := a.store.RetryFailed(ctx, item.JobID); err != nil {
		return nil, services.Wrap(services.ErrStorage, "queue", "retry", "failed to requeue job", err)
	}
	return a.Describe(ctx, item.JobID)
}

func (a *storeAccess) ClearAll(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}

func (a *storeAccess) ClearCompleted(ctx context.Context) (int64, error) {
	return a.store.ClearCompleted(ctx)
}

func (a *storeAccess) ClearFailed(ctx context.Context) (int64, error) {
	return a.store.ClearFailed(ctx)
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var out []queue.Status
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, &pipeline.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", value)}
		}
		out = append(out, status)
	}
	return out, nil
}
