// Package httpbin is a loopback test server modelled on httpbin.org. It
// serves the endpoints the client is exercised against: XML documents,
// redirects, Basic-Auth gated resources, form echoes, images, delays and
// arbitrary status codes.
package httpbin

import (
	"embed"
	"log/slog"
	"net/http"
	"time"

	"github.com/adamwoolhether/courier/internal/web/middleware"
	"github.com/adamwoolhether/courier/internal/web/mux"
	"go.opentelemetry.io/otel/trace"
)

//go:embed static
var static embed.FS

// DefaultMaxDelay caps /delay/{seconds}.
const DefaultMaxDelay = 10 * time.Second

// maxBytes caps /bytes/{n} and /stream-bytes/{n}.
const maxBytes = 100 * 1024

// Option configures the handler returned by New.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	maxDelay time.Duration
}

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithTracer sets the tracer for server spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithMaxDelay caps how long /delay may stall a response.
func WithMaxDelay(d time.Duration) Option {
	return func(o *options) {
		o.maxDelay = d
	}
}

type bin struct {
	maxDelay time.Duration
}

// New returns the httpbin handler.
func New(optFns ...Option) http.Handler {
	opts := options{
		logger:   slog.Default(),
		maxDelay: DefaultMaxDelay,
	}
	for _, opt := range optFns {
		opt(&opts)
	}

	muxOpts := []mux.Option{
		mux.WithLogger(opts.logger),
		mux.WithMiddleware(
			middleware.Logger(opts.logger),
			middleware.Errors(opts.logger),
			middleware.CORS([]string{"*"}),
			middleware.Panics(),
		),
	}
	if opts.tracer != nil {
		muxOpts = append(muxOpts, mux.WithTracer(opts.tracer))
	}

	rt := mux.New(muxOpts...)
	b := bin{maxDelay: opts.maxDelay}

	rt.Get("/xml", b.xml)
	rt.Get("/get", b.get)
	rt.Get("/headers", b.headers)
	rt.Get("/user-agent", b.userAgent)
	rt.Post("/post", b.post)
	rt.Any("/anything", b.post)
	rt.Any("/anything/{rest...}", b.post)

	rt.Any("/redirect-to", b.redirectTo)
	rt.Get("/redirect/{n}", b.redirect)
	rt.Get("/absolute-redirect/{n}", b.absoluteRedirect)

	rt.Get("/basic-auth/{user}/{passwd}", b.basicAuth)

	rt.Get("/image", b.imageByAccept)
	rt.Get("/image/{kind}", b.image)

	rt.Any("/status/{code}", b.status)
	rt.Any("/delay/{seconds}", b.delay)
	rt.Get("/bytes/{n}", b.bytes)
	rt.Get("/stream/{n}", b.stream)
	rt.Get("/encoding/{charset}", b.encoding)

	return rt
}
