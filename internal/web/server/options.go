package server

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	host            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	shutdownFuncs   []shutdownFunc
	tlsCertFile     string
	tlsKeyFile      string
	h2c             bool
}

type shutdownFunc func(ctx context.Context) error

// WithHost sets the listen address used by Run. Default is ":8080".
func WithHost(host string) Option {
	return func(opts *options) {
		opts.host = host
	}
}

// WithReadTimeout bounds reading a whole request. Unset by default so
// slow uploads are not cut off.
func WithReadTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.readTimeout = d
	}
}

// WithWriteTimeout bounds writing a response. Unset by default since
// delayed and streamed responses may legitimately take long.
func WithWriteTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.writeTimeout = d
	}
}

// WithIdleTimeout bounds how long a keep-alive connection waits for its
// next request. Default is 120s.
func WithIdleTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.idleTimeout = d
	}
}

// WithShutdownTimeout bounds draining once the serving context ends.
// Default is 20s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.shutdownTimeout = d
	}
}

// WithLogger sets the logger for lifecycle events and server errors.
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = log
	}
}

// WithShutdownFunc registers fn to run before in-flight requests are
// drained. Funcs run in registration order.
func WithShutdownFunc(fn func(ctx context.Context) error) Option {
	return func(opts *options) {
		opts.shutdownFuncs = append(opts.shutdownFuncs, fn)
	}
}

// WithTLS serves TLS with the given certificate and key files. HTTP/2 is
// negotiated through ALPN.
func WithTLS(certFile, keyFile string) Option {
	return func(opts *options) {
		opts.tlsCertFile = certFile
		opts.tlsKeyFile = keyFile
	}
}

// WithH2C accepts cleartext HTTP/2 with prior knowledge alongside
// HTTP/1.1.
func WithH2C() Option {
	return func(opts *options) {
		opts.h2c = true
	}
}
