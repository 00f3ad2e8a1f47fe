package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "apphub"

// StartReconcileSpan starts a span for one reconciliation of a tenant.
func StartReconcileSpan(ctx context.Context, tenantID string, subscribed int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "reconcile",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("subscriptions.count", subscribed),
		),
	)
}

// StartMutationSpan starts a span for an explicit installed-app mutation.
func StartMutationSpan(ctx context.Context, op, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "installed_app."+op,
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
