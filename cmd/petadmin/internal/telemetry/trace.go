package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span for a service operation.
//
//	ctx, span := telemetry.StartSpan(ctx, TracerIAM, "iam.ResolveEffectivePermissions",
//	    attribute.String(telemetry.AttrUserID, userID),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records err on the span and marks the span as failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Tracer names.
const (
	TracerIAM    = "petadmin/services/iam"
	TracerServer = "petadmin/server"
)

// Attribute keys.
const (
	AttrUserID          = "user.id"
	AttrUserEmail       = "user.email"
	AttrUserRole        = "user.role"
	AttrRuleName        = "provisioning.rule"
	AttrGroupName       = "group.name"
	AttrGroupCreated    = "group.created"
	AttrPermissionCode  = "permission.code"
	AttrPermissionCount = "permission.count"
)
