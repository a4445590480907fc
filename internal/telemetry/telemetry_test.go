package telemetry_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"murmur/internal/pipeline"
	"murmur/internal/services"
	"murmur/internal/telemetry"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestTransitionsBecomeMetricsAndSpans(t *testing.T) {
	var spans bytes.Buffer
	tel, err := telemetry.Setup(context.Background(), telemetry.Options{ServiceName: "murmur-test", TraceWriter: &spans}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now()
	tel.OnTransition(ctx, "job-1", pipeline.Transition{From: pipeline.StateValidating, To: pipeline.StateSynthesizing, At: now, Elapsed: 10 * time.Millisecond})
	tel.OnTransition(ctx, "job-1", pipeline.Transition{From: pipeline.StateSynthesizing, To: pipeline.StateFailed, At: now, Elapsed: time.Second,
		Err: services.Wrap(services.ErrSynthesis, "tts", "synthesize", "provider down", errors.New("503"))})

	body := scrape(t, tel.Handler())
	require.Contains(t, body, "murmur_stage_duration_seconds_bucket")
	require.Contains(t, body, "murmur_jobs_total")
	require.Contains(t, body, `error_kind="synthesis"`)

	require.NoError(t, tel.Shutdown(ctx))
	require.Contains(t, spans.String(), "pipeline.validating")
	require.Contains(t, spans.String(), "pipeline.synthesizing")
	require.Contains(t, spans.String(), "job-1")
}

func TestObserveQueue(t *testing.T) {
	tel, err := telemetry.Setup(context.Background(), telemetry.Options{}, nil)
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	require.NoError(t, tel.ObserveQueue(func(context.Context) (map[string]int, error) {
		return map[string]int{"pending": 3, "processing": 1}, nil
	}))

	body := scrape(t, tel.Handler())
	require.Contains(t, body, "murmur_queue_jobs")
	require.Contains(t, body, `status="pending"`)
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *telemetry.Telemetry
	tel.OnTransition(context.Background(), "job", pipeline.Transition{From: pipeline.StateMixing, To: pipeline.StateCompleted})
	require.Nil(t, tel.Handler())
	require.NoError(t, tel.ObserveQueue(nil))
	require.NoError(t, tel.Shutdown(context.Background()))
}
