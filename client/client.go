package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/adamwoolhether/courier/client/auth"
	"github.com/adamwoolhether/courier/client/body"
	"github.com/adamwoolhether/courier/client/pool"
	"github.com/adamwoolhether/courier/client/redirect"
	"github.com/adamwoolhether/courier/client/throttle"
	"github.com/adamwoolhether/courier/client/transport"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Client sends requests over its own [transport.Transport]. Its
// configuration is fixed at Build and it is safe for concurrent use.
type Client struct {
	tr           *transport.Transport
	ownTransport bool
	policy       redirect.Policy
	maxRedirects int
	auth         auth.Authenticator
	pool         *pool.Pool
	timeout      time.Duration
	version      transport.Version
	userAgent    string
	limiter      *throttle.Limiter
	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *metrics
	requestID    bool
	stateHook    StateHook
}

// Build creates a Client. Without options it never follows redirects,
// prefers HTTP/2 and runs async requests on [pool.Default].
func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer(tracerName),
	}

	opts := options{
		maxRedirects: redirect.DefaultMaxHops,
		version:      transport.HTTP2,
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}
	if opts.tracer != nil {
		client.tracer = opts.tracer
	}

	client.policy = opts.policy
	client.maxRedirects = opts.maxRedirects
	client.auth = opts.authenticator
	client.pool = opts.pool
	client.timeout = opts.timeout
	client.version = opts.version
	client.userAgent = opts.userAgent
	client.requestID = opts.requestID
	client.stateHook = opts.stateHook

	if opts.transport != nil {
		client.tr = opts.transport
	} else {
		client.tr = transport.New(transport.Config{
			ConnectTimeout:    opts.connectTimeout,
			TLSConfig:         opts.tlsConfig,
			Prefer:            opts.version,
			H2CPriorKnowledge: opts.h2c,
			MaxIdlePerHost:    opts.maxIdlePerHost,
			Logger:            client.logger,
		})
		client.ownTransport = true
	}

	if opts.throttle != nil {
		lim, err := throttle.New(opts.throttle.RPS, opts.throttle.Burst, func() *slog.Logger { return client.logger })
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		client.limiter = lim
	}

	if opts.registerer != nil {
		m, err := newMetrics(opts.registerer, client.workers)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		client.metrics = m
	}

	return client, nil
}

// Close releases the client's idle connections. A shared transport
// passed with WithTransport is left open.
func (c *Client) Close() {
	if c.ownTransport {
		c.tr.CloseIdle()
	}
}

// Transport is the transport the client sends on.
func (c *Client) Transport() *transport.Transport { return c.tr }

// RedirectPolicy is the client's redirect policy.
func (c *Client) RedirectPolicy() redirect.Policy { return c.policy }

// workers is the pool async requests run on.
func (c *Client) workers() *pool.Pool {
	if c.pool != nil {
		return c.pool
	}

	return pool.Default()
}

// Request instantiates a [Request] for reqURL.
// It's just a convenience method that wraps the public NewRequest func.
func (c *Client) Request(reqURL *url.URL, method string, opts ...RequestOption) (*Request, error) {
	return newRequest(method, reqURL, opts...)
}

// URL creates a url.URL for use in Request.
// It's just a convenience method that wraps the public URL func.
func (c *Client) URL(scheme, host, path string, opts ...URLOption) *url.URL {
	return URL(scheme, host, path, opts...)
}

// URL creates a url.URL for use in Request.
func URL(scheme, host, path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.port != nil {
		host = fmt.Sprintf("%s:%d", host, *settings.port)
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
	}

	if settings.queryStrings != nil {
		queryParams := url.Values{}
		for k, v := range settings.queryStrings {
			queryParams.Add(k, v)
		}

		endpoint.RawQuery = queryParams.Encode()
	}

	return &endpoint
}

var defaultClient = sync.OnceValue(func() *Client {
	c, _ := Build(WithRedirectPolicy(redirect.Normal))
	return c
})

// Default returns the shared client used by [Get]. It follows redirects
// with [redirect.Normal].
func Default() *Client {
	return defaultClient()
}

// Get fetches uri with the default client and returns the body as text.
// Non-2xx responses are returned as an [*UnexpectedStatusError].
func Get(ctx context.Context, uri string) (string, error) {
	req, err := NewRequest(http.MethodGet, uri)
	if err != nil {
		return "", err
	}

	resp, err := Send(ctx, Default(), req, expectSuccess(body.String()))
	if err != nil {
		return "", err
	}

	return resp.Body, nil
}
