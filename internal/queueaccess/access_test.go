package queueaccess_test

import (
	"context"
	"errors"
	"testing"

	"murmur/internal/api"
	"murmur/internal/catalog"
	"murmur/internal/config"
	"murmur/internal/pipeline"
	"murmur/internal/queue"
	"murmur/internal/queueaccess"
	"murmur/internal/services"
	"murmur/internal/testsupport"
)

func newValidator(t *testing.T, cfg *config.Config) queueaccess.CatalogValidator {
	t.Helper()
	testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"rain": 60})
	cat, err := catalog.Load(cfg.Paths.CatalogFile)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return queueaccess.CatalogValidator{
		Lookup: cat,
		Limits: pipeline.Limits{MaxAffirmations: 10, MaxAffirmationChars: 100},
	}
}

func TestStoreAccessSubmitNormalizesRequest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	access := queueaccess.NewStoreAccess(store, newValidator(t, cfg))
	ctx := context.Background()

	job, err := access.Submit(ctx, pipeline.SynthesisRequest{
		Affirmations: []string{"  I am calm  "},
		VoiceID:      "aria",
		TrackID:      "rain",
		Volume:       0.4,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != string(queue.StatusPending) {
		t.Fatalf("expected pending job, got %q", job.Status)
	}
	if job.Request == nil || job.Request.Affirmations[0] != "I am calm" {
		t.Fatalf("expected trimmed affirmation in stored request, got %#v", job.Request)
	}
	if job.Request.Language != "en-US" {
		t.Fatalf("expected voice language default, got %q", job.Request.Language)
	}

	jobs, err := access.List(ctx, []string{"pending"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobID != job.JobID {
		t.Fatalf("expected submitted job in pending list, got %#v", jobs)
	}

	stats, err := access.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["pending"] != 1 || stats["failed"] != 0 {
		t.Fatalf("unexpected stats %#v", stats)
	}
}

func TestStoreAccessSubmitRejectsInvalidRequest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	access := queueaccess.NewStoreAccess(store, newValidator(t, cfg))

	_, err := access.Submit(context.Background(), pipeline.SynthesisRequest{
		Affirmations: []string{"I am calm"},
		VoiceID:      "nobody",
		TrackID:      "rain",
		Volume:       0.4,
	})
	var validation *pipeline.ValidationError
	if !errors.As(err, &validation) || validation.Field != "voice_id" {
		t.Fatalf("expected voice_id validation error, got %v", err)
	}
	jobs, err := access.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("invalid request must not be queued, got %d jobs", len(jobs))
	}
}

func TestStoreAccessRetryAndDescribe(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	access := queueaccess.NewStoreAccess(store, nil)
	ctx := context.Background()

	item := testsupport.MustEnqueue(t, store, `{"affirmations":["a"]}`)
	if _, err := access.Retry(ctx, item.JobID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error retrying pending job, got %v", err)
	}

	item.SetFailed("synthesis", "tts", "provider returned 500")
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	job, err := access.Retry(ctx, item.JobID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if job.Status != string(queue.StatusPending) {
		t.Fatalf("expected retried job to be pending, got %q", job.Status)
	}

	missing, err := access.Describe(ctx, "does-not-exist")
	if err != nil || missing != nil {
		t.Fatalf("expected nil job for unknown id, got %#v, %v", missing, err)
	}
	if _, err := access.Retry(ctx, "does-not-exist"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := access.List(ctx, []string{"bogus"}); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestStoreAccessClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	access := queueaccess.NewStoreAccess(store, nil)
	ctx := context.Background()

	done := testsupport.MustEnqueue(t, store, `{}`)
	done.SetCompleted("/out/a.mp3", 60, 1)
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	testsupport.MustEnqueue(t, store, `{}`)

	removed, err := access.ClearCompleted(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("ClearCompleted = %d, %v", removed, err)
	}
	removed, err = access.ClearAll(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("ClearAll = %d, %v", removed, err)
	}
}

func TestOpenWithFallbackUsesStoreWhenDaemonUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dialed := false
	session, err := queueaccess.OpenWithFallback(context.Background(),
		func(context.Context) (*api.Client, error) {
			dialed = true
			return nil, api.ErrDaemonUnavailable
		},
		func() (*queue.Store, error) { return queue.Open(cfg) },
		nil,
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()

	if !dialed {
		t.Fatal("expected daemon dial attempt")
	}
	if session.Remote {
		t.Fatal("expected local session")
	}
	if _, err := session.Access.Stats(context.Background()); err != nil {
		t.Fatalf("Stats: %v", err)
	}
}

func TestOpenWithFallbackRequiresStoreOpener(t *testing.T) {
	_, err := queueaccess.OpenWithFallback(context.Background(), nil, nil, nil)
	if err == nil {
		t.Fatal("expected error without store opener")
	}
}
