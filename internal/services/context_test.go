package services_test

import (
	"context"
	"testing"

	"murmur/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-42")
	ctx = services.WithStage(ctx, "mixing")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "mixing" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithJobID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id value")
	}
}
