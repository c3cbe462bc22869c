package sequences

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("seqinfer.sequences")
	meter  = otel.Meter("seqinfer.sequences")

	searches, _ = meter.Int64Counter("seqinfer.sequences.searches",
		metric.WithDescription("Number of searches started, by operation"))
	positions, _ = meter.Int64Counter("seqinfer.sequences.positions",
		metric.WithDescription("Real positions handed to searches"))
)

// startSpan opens a span describing the model being decoded and counts the
// search.
func startSpan(ctx context.Context, name string, model SequenceModel) (context.Context, trace.Span) {
	op := metric.WithAttributes(attribute.String("operation", name))
	searches.Add(ctx, 1, op)
	positions.Add(ctx, int64(model.Length()), op)
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("sequence.length", model.Length()),
		attribute.Int("sequence.left_window", model.LeftWindow()),
		attribute.Int("sequence.right_window", model.RightWindow()),
	))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
