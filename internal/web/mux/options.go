package mux

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Router.
type Option func(*options)

type options struct {
	tracer trace.Tracer
	logger *slog.Logger
	mw     []Middleware
}

// WithMiddleware wraps every route in mw, outermost first.
func WithMiddleware(mw ...Middleware) Option {
	return func(opts *options) {
		opts.mw = append(opts.mw, mw...)
	}
}

// WithTracer injects the tracer used for the server span.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) {
		opts.tracer = tracer
	}
}

// WithLogger sets the logger for errors no middleware handled.
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = log
	}
}
