package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adamwoolhether/courier/client/auth"
	"github.com/adamwoolhether/courier/client/pool"
	"github.com/adamwoolhether/courier/client/redirect"
	"github.com/adamwoolhether/courier/client/throttle"
	"github.com/adamwoolhether/courier/client/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	policy         redirect.Policy
	maxRedirects   int
	authenticator  auth.Authenticator
	pool           *pool.Pool
	transport      *transport.Transport
	connectTimeout time.Duration
	timeout        time.Duration
	version        transport.Version
	h2c            bool
	tlsConfig      *tls.Config
	maxIdlePerHost int
	userAgent      string
	throttle       *throttle.Config
	logger         *slog.Logger
	tracer         trace.Tracer
	registerer     prometheus.Registerer
	requestID      bool
	stateHook      StateHook
}

// WithRedirectPolicy selects which redirects are followed. The default is
// [redirect.Never].
func WithRedirectPolicy(p redirect.Policy) Option {
	return func(c *options) error {
		if p < redirect.Never || p > redirect.Normal {
			return fmt.Errorf("unknown redirect policy %v", p)
		}
		c.policy = p
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects.
func WithNoFollowRedirects() Option {
	return WithRedirectPolicy(redirect.Never)
}

// WithMaxRedirects caps the redirects followed per request, 20 by default.
func WithMaxRedirects(n int) Option {
	return func(c *options) error {
		if n <= 0 {
			return errors.New("max redirects must be greater than zero")
		}
		c.maxRedirects = n
		return nil
	}
}

// WithAuthenticator answers 401 challenges. Each request is retried at
// most once with the credentials it supplies.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *options) error {
		if a == nil {
			return errors.New("authenticator must not be nil")
		}
		c.authenticator = a
		return nil
	}
}

// WithPool runs async requests on p instead of [pool.Default].
func WithPool(p *pool.Pool) Option {
	return func(c *options) error {
		if p == nil {
			return errors.New("pool must not be nil")
		}
		c.pool = p
		return nil
	}
}

// WithTransport shares an existing transport, and its connection cache,
// between clients. Transport-level options are then ignored.
func WithTransport(t *transport.Transport) Option {
	return func(c *options) error {
		if t == nil {
			return errors.New("transport must not be nil")
		}
		c.transport = t
		return nil
	}
}

// WithConnectTimeout bounds DNS resolution plus the TCP connect.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d <= 0 {
			return errors.New("connect timeout must be greater than zero")
		}
		c.connectTimeout = d
		return nil
	}
}

// WithTimeout sets the default overall timeout of each request.
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = d
		return nil
	}
}

// WithVersion sets the preferred protocol version, HTTP/2 by default.
// Servers that do not negotiate it are spoken to in HTTP/1.1.
func WithVersion(v transport.Version) Option {
	return func(c *options) error {
		if v != transport.HTTP11 && v != transport.HTTP2 {
			return fmt.Errorf("unsupported version %v", v)
		}
		c.version = v
		return nil
	}
}

// WithH2CPriorKnowledge speaks cleartext HTTP/2 to http targets when
// HTTP/2 is preferred.
func WithH2CPriorKnowledge() Option {
	return func(c *options) error {
		c.h2c = true
		return nil
	}
}

// WithTLSConfig sets the TLS configuration for https targets.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *options) error {
		if cfg == nil {
			return errors.New("tls config must not be nil")
		}
		c.tlsConfig = cfg.Clone()
		return nil
	}
}

// WithMaxIdlePerHost caps the idle connections kept per target.
func WithMaxIdlePerHost(n int) Option {
	return func(c *options) error {
		if n <= 0 {
			return errors.New("max idle per host must be greater than zero")
		}
		c.maxIdlePerHost = n
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// WithTracer records a span per logical request and propagates its
// context in the outgoing headers.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// WithMetrics registers the client's collectors on reg. Clients sharing a
// registerer share their collectors.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *options) error {
		if reg == nil {
			return errors.New("registerer must not be nil")
		}
		c.registerer = reg
		return nil
	}
}

// WithRequestID sets an X-Request-ID header on requests that lack one.
// Every hop of one logical request carries the same id.
func WithRequestID() Option {
	return func(c *options) error {
		c.requestID = true
		return nil
	}
}

// WithStateHook observes the state transitions of every request.
func WithStateHook(hook StateHook) Option {
	return func(c *options) error {
		c.stateHook = hook
		return nil
	}
}

// /////////////////////////////////////////////////////////////////

// DoOption is a functional option for [Client.Do].
type DoOption func(options *doOpts) error

type doOpts struct {
	responseBody any
	useJSONNum   bool
}

// WithDestination decodes the HTTP response body into bodyTemplate.
// bodyTemplate must be a pointer.
func WithDestination[T any](bodyTemplate *T) DoOption {
	return func(opts *doOpts) error {
		if bodyTemplate == nil {
			return errors.New("destination must not be nil")
		}
		opts.responseBody = bodyTemplate

		return nil
	}
}

// WithJSONNumb tells the JSON decoder to use [json.Decoder.UseNumber],
// preserving number precision as [json.Number] instead of float64.
func WithJSONNumb() DoOption {
	return func(opts *doOpts) error {
		opts.useJSONNum = true

		return nil
	}
}

// URLOption is a functional option for [URL].
type URLOption func(options *urlOpts)

type urlOpts struct {
	queryStrings map[string]string
	port         *int
}

// WithQueryStrings appends query parameters to the URL.
func WithQueryStrings(queryKV map[string]string) URLOption {
	return func(opts *urlOpts) {
		opts.queryStrings = queryKV
	}
}

// WithPort sets the port number on the URL's host.
func WithPort(port int) URLOption {
	return func(opts *urlOpts) {
		opts.port = &port
	}
}
