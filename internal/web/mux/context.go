package mux

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type ctxKey int

const valuesKey ctxKey = 1

// Values are the per-request values shared with middleware.
type Values struct {
	TraceID    string
	Now        time.Time
	Tracer     trace.Tracer
	StatusCode int
}

// GetValues returns the request's Values, or placeholder values outside
// of a Router.
func GetValues(ctx context.Context) *Values {
	v, ok := ctx.Value(valuesKey).(*Values)
	if !ok {
		return &Values{
			TraceID: uuid.Nil.String(),
			Now:     time.Now(),
			Tracer:  noop.NewTracerProvider().Tracer(""),
		}
	}

	return v
}

// TraceID is the request's trace id, the nil uuid outside of a Router.
func TraceID(ctx context.Context) string {
	return GetValues(ctx).TraceID
}

// SetStatusCode records the status for handlers that write through
// another writer.
func SetStatusCode(ctx context.Context, code int) {
	if v, ok := ctx.Value(valuesKey).(*Values); ok {
		v.StatusCode = code
	}
}

// AddSpan starts a child span of the request span.
func AddSpan(ctx context.Context, name string, kv ...attribute.KeyValue) (context.Context, trace.Span) {
	v, ok := ctx.Value(valuesKey).(*Values)
	if !ok || v.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := v.Tracer.Start(ctx, name)
	span.SetAttributes(kv...)

	return ctx, span
}

func setValues(ctx context.Context, v *Values) context.Context {
	return context.WithValue(ctx, valuesKey, v)
}
