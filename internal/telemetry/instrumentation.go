package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes stay low-cardinality: content URLs, file names and error
// text go to logs and span status, never to attributes that feed metrics.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation runs fn inside a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentSubmission traces one extraction request. Classification of the
// outcome is left to the caller through RecordSubmission.
func (t *Telemetry) InstrumentSubmission(ctx context.Context, fn InstrumentedFunc) (time.Duration, error) {
	start := time.Now()

	err := t.InstrumentOperation(ctx, "submit", "orchestrator", fn)

	return time.Since(start), err
}

// InstrumentRetrieval traces one file retrieval and records its metrics.
// fn reports the number of bytes written.
func (t *Telemetry) InstrumentRetrieval(ctx context.Context, fn func(ctx context.Context) (int64, error)) error {
	if t == nil {
		_, err := fn(ctx)

		return err
	}

	start := time.Now()

	t.IncrementActiveRetrievals(ctx)
	defer t.DecrementActiveRetrievals(ctx)

	var written int64

	err := t.InstrumentOperation(ctx, "retrieve_file", "downloader", func(ctx context.Context) error {
		var err error

		written, err = fn(ctx)

		return err
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordRetrieval(ctx, status, written, time.Since(start))

	return err
}
