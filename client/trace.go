package client

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/adamwoolhether/courier/client"

func (c *Client) startSpan(ctx context.Context, req *Request) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "courier.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.method),
			attribute.String("url.full", req.url.Redacted()),
			attribute.String("server.address", req.url.Hostname()),
		),
	)
}

func endSpan(span trace.Span, status int, hops int, err error) {
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if hops > 0 {
		span.SetAttributes(attribute.Int("http.request.resend_count", hops))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

// inject writes the trace context of ctx into h.
func inject(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}
