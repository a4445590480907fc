package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"murmur/internal/queue"
	"murmur/internal/services"
	"murmur/internal/workflow"
)

func TestFromQueueItemCompleted(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	item := &queue.Item{
		ID:              7,
		JobID:           "job-7",
		Status:          queue.StatusCompleted,
		Request:         `{"affirmations":["I am calm"],"voice_id":"aria","volume":0.2,"track_id":"rain"}`,
		PipelineState:   "completed",
		ProgressPercent: 100,
		FinalPath:       "/out/job-7.mp3",
		DurationSeconds: 60,
		FragmentCount:   1,
		CreatedAt:       started,
		StartedAt:       &started,
		FinishedAt:      &finished,
	}

	job := FromQueueItem(item)
	if job.Result == nil || job.Result.Location != "/out/job-7.mp3" || job.Result.FragmentCount != 1 {
		t.Fatalf("unexpected result: %+v", job.Result)
	}
	if job.Error != nil {
		t.Fatalf("completed job should not carry an error: %+v", job.Error)
	}
	if job.Request == nil || job.Request.TrackID != "rain" {
		t.Fatalf("expected decoded request, got %+v", job.Request)
	}
	if job.ElapsedMS != 90000 {
		t.Fatalf("elapsed = %d, want 90000", job.ElapsedMS)
	}
	if job.CreatedAt != "2026-03-01T10:00:00.000Z" {
		t.Fatalf("created_at = %q", job.CreatedAt)
	}
}

func TestFromQueueItemFailed(t *testing.T) {
	item := &queue.Item{
		JobID:         "job-8",
		Status:        queue.StatusFailed,
		Request:       "not json",
		ErrorKind:     "synthesis",
		FailedStage:   "synthesizing",
		ErrorMessage:  "provider returned 422",
		PipelineState: "synthesizing",
	}
	job := FromQueueItem(item)
	if job.Error == nil || job.Error.Kind != "synthesis" || job.Error.Stage != "synthesizing" {
		t.Fatalf("unexpected error view: %+v", job.Error)
	}
	if job.Request != nil {
		t.Fatalf("undecodable request should be omitted")
	}
	if job.Result != nil {
		t.Fatalf("failed job should not carry a result")
	}
}

func TestFromStatusSummaryFillsAllStatuses(t *testing.T) {
	summary := workflow.StatusSummary{
		Running:    true,
		Workers:    2,
		QueueStats: map[queue.Status]int{queue.StatusPending: 3},
		Active:     []workflow.ActiveJob{{Worker: 1, JobID: "a", State: "mixing"}},
	}
	status := FromStatusSummary(summary)
	if status.QueueStats["pending"] != 3 || status.QueueStats["failed"] != 0 {
		t.Fatalf("unexpected stats: %v", status.QueueStats)
	}
	if _, ok := status.QueueStats["completed"]; !ok {
		t.Fatalf("expected zero count for completed")
	}
	if len(status.Active) != 1 || status.Active[0].State != "mixing" {
		t.Fatalf("unexpected active jobs: %+v", status.Active)
	}
}

func TestSortJobsNewestFirst(t *testing.T) {
	jobs := []Job{
		{ID: 1, CreatedAt: "2026-03-01T10:00:00.000Z"},
		{ID: 2, CreatedAt: "2026-03-01T11:00:00.000Z"},
		{ID: 3, CreatedAt: "2026-03-01T11:00:00.000Z"},
	}
	sorted := SortJobsNewestFirst(jobs)
	if sorted[0].ID != 3 || sorted[1].ID != 2 || sorted[2].ID != 1 {
		t.Fatalf("unexpected order: %d %d %d", sorted[0].ID, sorted[1].ID, sorted[2].ID)
	}
}

func TestClientSubmitAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/jobs":
			var req SubmitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode submit body: %v", err)
			}
			if len(req.Affirmations) == 0 {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "invalid affirmations", Kind: "validation", Field: "affirmations"})
				return
			}
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(JobResponse{Job: Job{JobID: "new", Status: "pending"}})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/jobs/"):
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "job not found", Kind: "not_found"})
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "secret", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx := context.Background()

	job, err := client.Submit(ctx, SubmitRequest{Affirmations: []string{"I am calm"}, VoiceID: "aria", TrackID: "rain"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.JobID != "new" || job.Status != "pending" {
		t.Fatalf("unexpected job: %+v", job)
	}

	_, err = client.Submit(ctx, SubmitRequest{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Body.Field != "affirmations" {
		t.Fatalf("expected field in api error, got %v", err)
	}

	_, err = client.Get(ctx, "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClientUnavailable(t *testing.T) {
	client, err := NewClient("127.0.0.1:1", "", 500*time.Millisecond)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Status(context.Background()); !errors.Is(err, ErrDaemonUnavailable) {
		t.Fatalf("expected ErrDaemonUnavailable, got %v", err)
	}
}

func TestNewClientNormalizesWildcardBind(t *testing.T) {
	client, err := NewClient("0.0.0.0:7487", "", 0)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.base != "http://127.0.0.1:7487" {
		t.Fatalf("base = %q", client.base)
	}
}
