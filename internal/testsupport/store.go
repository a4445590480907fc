package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"murmur/internal/config"
	"murmur/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue submits a job with a fresh id and the given request payload.
func MustEnqueue(t testing.TB, store *queue.Store, request string) *queue.Item {
	t.Helper()

	item, err := store.Enqueue(context.Background(), uuid.NewString(), []byte(request))
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return item
}
