package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "murmur.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("expected offset 6, got %d", result.Offset)
	}
}

func TestTailFiltersByJobAndSkipsPartialLine(t *testing.T) {
	path := writeLog(t, `{"msg":"start","job_id":"j1"}`+"\n"+
		`{"msg":"start","job_id":"j2"}`+"\n"+
		`{"msg":"done","job_id":"j1"}`+"\n"+
		`{"msg":"partial","job_id":"j1"`)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10, JobID: "j1"})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 2 {
		t.Fatalf("expected two complete j1 lines, got %#v", result.Lines)
	}

	missing, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "none.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil || len(missing.Lines) != 0 || missing.Offset != 0 {
		t.Fatalf("expected empty result for missing file, got %#v, %v", missing, err)
	}
}

func TestTailFollowWaitsForAppend(t *testing.T) {
	path := writeLog(t, "start\n")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	first, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}

	type outcome struct {
		result logs.TailResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: first.Offset, Follow: true, Wait: 5 * time.Second})
		done <- outcome{res, err}
	}()

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	select {
	case got := <-done:
		if got.err != nil {
			t.Fatalf("follow: %v", got.err)
		}
		if len(got.result.Lines) != 1 || got.result.Lines[0] != "later" {
			t.Fatalf("unexpected follow lines: %#v", got.result.Lines)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("follow did not return")
	}
}
