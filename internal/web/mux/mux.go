// Package mux routes requests to error-returning handlers wrapped in
// middleware and a server span.
package mux

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Handler is an http.Handler that returns an error.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Middleware wraps a Handler.
type Middleware func(handler Handler) Handler

// Router dispatches on http.ServeMux patterns such as "GET /status/{code}".
type Router struct {
	mux    *http.ServeMux
	mw     []Middleware
	prefix string
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a Router. A no-op tracer and slog.Default are used unless
// overridden.
func New(optFns ...Option) *Router {
	var opts options
	for _, opt := range optFns {
		opt(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("")
	}

	return &Router{
		mux:    http.NewServeMux(),
		mw:     opts.mw,
		logger: opts.logger,
		tracer: opts.tracer,
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// Use appends middleware applied to routes registered afterwards.
func (rt *Router) Use(mw ...Middleware) {
	rt.mw = append(rt.mw, mw...)
}

// Mount returns a Router sharing rt's routes whose patterns are prefixed
// with prefix. Middleware added to it does not affect rt.
func (rt *Router) Mount(prefix string) *Router {
	return &Router{
		mux:    rt.mux,
		mw:     slices.Clone(rt.mw),
		prefix: rt.prefix + "/" + strings.Trim(prefix, "/"),
		logger: rt.logger,
		tracer: rt.tracer,
	}
}

// Get registers fn for GET, which also answers HEAD.
func (rt *Router) Get(path string, fn Handler, mw ...Middleware) {
	rt.Handle(http.MethodGet, path, fn, mw...)
}

// Post registers fn for POST.
func (rt *Router) Post(path string, fn Handler, mw ...Middleware) {
	rt.Handle(http.MethodPost, path, fn, mw...)
}

// Any registers fn for every method.
func (rt *Router) Any(path string, fn Handler, mw ...Middleware) {
	rt.Handle("", path, fn, mw...)
}

// Handle registers fn for method and path. An empty method matches any.
func (rt *Router) Handle(method, path string, fn Handler, mw ...Middleware) {
	fn = wrap(mw, fn)
	fn = wrap(rt.mw, fn)

	h := func(w http.ResponseWriter, r *http.Request) {
		ctx, span := rt.startSpan(w, r)
		defer span.End()

		traceID := span.SpanContext().TraceID()
		v := Values{
			TraceID: traceID.String(),
			Now:     time.Now().UTC(),
			Tracer:  rt.tracer,
		}
		if !traceID.IsValid() {
			v.TraceID = uuid.NewString()
		}

		rec := &recorder{ResponseWriter: w, values: &v}
		r = r.WithContext(setValues(ctx, &v))

		if err := fn(r.Context(), rec, r); err != nil {
			rt.logger.Error("unhandled handler error", "trace_id", v.TraceID, "path", r.URL.Path, "error", err)
		}

		span.SetAttributes(attribute.Int("http.response.status_code", v.StatusCode))
	}

	pattern := rt.prefix + path
	if method != "" {
		pattern = method + " " + pattern
	}

	rt.mux.HandleFunc(pattern, h)
}

// HandleRaw registers a standard http.Handler.
func (rt *Router) HandleRaw(method, path string, h http.Handler, mw ...Middleware) {
	rt.Handle(method, path, Adapt(h), mw...)
}

func (rt *Router) startSpan(w http.ResponseWriter, r *http.Request) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	ctx, span := rt.tracer.Start(ctx, "mux.handler",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		),
	)

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(w.Header()))

	return ctx, span
}

// Adapt converts a standard http.Handler into a Handler.
func Adapt(h http.Handler) Handler {
	return func(_ context.Context, w http.ResponseWriter, r *http.Request) error {
		h.ServeHTTP(w, r)
		return nil
	}
}

// wrap applies mw so that mw[0] runs first.
func wrap(mw []Middleware, handler Handler) Handler {
	for _, fn := range slices.Backward(mw) {
		if fn != nil {
			handler = fn(handler)
		}
	}

	return handler
}

// recorder captures the status written by a handler.
type recorder struct {
	http.ResponseWriter
	values *Values
}

func (r *recorder) WriteHeader(code int) {
	if r.values.StatusCode == 0 {
		r.values.StatusCode = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.values.StatusCode == 0 {
		r.values.StatusCode = http.StatusOK
	}

	return r.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *recorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
