// Package telemetry wires OpenTelemetry tracing and the job span helpers the
// worker uses.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/headline-scraper/internal/config"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

const instrumentationPrefix = "github.com/JakeFAU/headline-scraper/"

// ShutdownFunc flushes buffered spans and releases the provider.
type ShutdownFunc func(context.Context) error

// Setup installs the global tracer provider described by cfg. When tracing is
// disabled it leaves the no-op provider in place and returns a no-op shutdown.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Tracer returns a tracer scoped to one component of the scraper.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + component)
}

// StartJob opens the span covering one claimed job.
func StartJob(ctx context.Context, tracer trace.Tracer, job scrape.Job, workerID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "job."+string(job.Type),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int64("job.id", job.ID),
			attribute.String("job.type", string(job.Type)),
			attribute.String("worker.id", workerID),
		),
	)
}

// EndJob records the job outcome on span and ends it.
func EndJob(span trace.Span, counters scrape.JobCounters, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("job.links_found", counters.LinksFound),
		attribute.Int("job.links_skipped", counters.LinksSkipped),
		attribute.Int("job.articles_saved", counters.ArticlesSaved),
		attribute.Int("job.errors", counters.Errors),
	)
	span.SetStatus(codes.Ok, "")
}
