package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/pipeline"
	"murmur/internal/services"
)

const instrumentationName = "murmur/internal/telemetry"

// Options configures Setup.
type Options struct {
	ServiceName string
	// TraceWriter receives one JSON document per finished state span. Nil
	// disables span export.
	TraceWriter io.Writer
}

// Telemetry records pipeline metrics and state spans. A nil *Telemetry is
// valid and records nothing.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	handler        http.Handler

	jobs          metric.Int64Counter
	stageDuration metric.Float64Histogram
	active        metric.Int64UpDownCounter
}

// FromConfig builds telemetry from the [telemetry] section. It returns nil
// when telemetry is disabled.
func FromConfig(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) (*Telemetry, error) {
	if cfg == nil || !cfg.Telemetry.Enabled {
		return nil, nil
	}
	opts := Options{ServiceName: cfg.Telemetry.ServiceName}
	if cfg.Telemetry.TraceStdout {
		opts.TraceWriter = stdout
	}
	return Setup(ctx, opts, logger)
}

// Setup creates a meter provider exporting to a private Prometheus registry
// and, when requested, a tracer provider writing spans to TraceWriter.
func Setup(ctx context.Context, opts Options, logger *slog.Logger) (*Telemetry, error) {
	logger = logging.NewComponentLogger(logger, "telemetry")
	name := strings.TrimSpace(opts.ServiceName)
	if name == "" {
		name = "murmur"
	}
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", name)))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	t := &Telemetry{
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		),
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		tracer:  noop.NewTracerProvider().Tracer(instrumentationName),
	}
	t.meter = t.meterProvider.Meter(instrumentationName)

	if opts.TraceWriter != nil {
		spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.TraceWriter))
		if err != nil {
			_ = t.meterProvider.Shutdown(ctx)
			return nil, fmt.Errorf("stdout span exporter: %w", err)
		}
		t.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spanExporter),
			sdktrace.WithResource(res),
		)
		t.tracer = t.tracerProvider.Tracer(instrumentationName)
	}

	if t.jobs, err = t.meter.Int64Counter("murmur.jobs",
		metric.WithDescription("Jobs that reached a terminal state"),
	); err != nil {
		return nil, err
	}
	if t.stageDuration, err = t.meter.Float64Histogram("murmur.stage.duration",
		metric.WithDescription("Time spent in each pipeline state"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	); err != nil {
		return nil, err
	}
	if t.active, err = t.meter.Int64UpDownCounter("murmur.jobs.active",
		metric.WithDescription("Jobs currently running through the pipeline"),
	); err != nil {
		return nil, err
	}

	logger.Info("telemetry initialized",
		logging.String("service", name),
		logging.Bool("trace_export", opts.TraceWriter != nil),
	)
	return t, nil
}

// Handler serves the Prometheus exposition for /metrics.
func (t *Telemetry) Handler() http.Handler {
	if t == nil {
		return nil
	}
	return t.handler
}

// OnTransition implements pipeline.Observer. Every state a job leaves
// becomes a histogram sample and a span covering its time in that state.
func (t *Telemetry) OnTransition(ctx context.Context, jobID string, tr pipeline.Transition) {
	if t == nil {
		return
	}
	outcome := "ok"
	if tr.To == pipeline.StateFailed {
		outcome = "failed"
	}
	t.stageDuration.Record(ctx, tr.Elapsed.Seconds(), metric.WithAttributes(
		attribute.String("stage", string(tr.From)),
		attribute.String("outcome", outcome),
	))

	_, span := t.tracer.Start(ctx, "pipeline."+string(tr.From),
		trace.WithTimestamp(tr.At.Add(-tr.Elapsed)),
		trace.WithAttributes(
			attribute.String("job_id", jobID),
			attribute.String("next_state", string(tr.To)),
		),
	)
	if tr.Err != nil {
		span.RecordError(tr.Err)
		span.SetStatus(codes.Error, string(services.KindOf(tr.Err)))
	}
	span.End(trace.WithTimestamp(tr.At))

	switch {
	case tr.From == pipeline.StateValidating && tr.To == pipeline.StateSynthesizing:
		t.active.Add(ctx, 1)
	case tr.To == pipeline.StateCompleted:
		t.active.Add(ctx, -1)
		t.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
	case tr.To == pipeline.StateFailed:
		if tr.From != pipeline.StateValidating {
			t.active.Add(ctx, -1)
		}
		t.jobs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", "failed"),
			attribute.String("error_kind", string(services.KindOf(tr.Err))),
			attribute.String("stage", string(tr.From)),
		))
	}
}

// ObserveQueue registers a gauge of queued jobs by status.
func (t *Telemetry) ObserveQueue(stats func(context.Context) (map[string]int, error)) error {
	if t == nil {
		return nil
	}
	gauge, err := t.meter.Int64ObservableGauge("murmur.queue.jobs",
		metric.WithDescription("Jobs in the queue by status"),
	)
	if err != nil {
		return err
	}
	_, err = t.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		counts, err := stats(ctx)
		if err != nil {
			return err
		}
		for status, count := range counts {
			obs.ObserveInt64(gauge, int64(count), metric.WithAttributes(attribute.String("status", status)))
		}
		return nil
	}, gauge)
	return err
}

// Shutdown flushes pending spans and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
