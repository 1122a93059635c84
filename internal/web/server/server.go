package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server wraps an http.Server with graceful shutdown.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	shutdownFuncs   []shutdownFunc
	tlsCertFile     string
	tlsKeyFile      string
}

// New creates a Server for handler listening on ":8080" unless
// overridden.
func New(handler http.Handler, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.h2c {
		handler = h2c.NewHandler(handler, &http2.Server{IdleTimeout: o.idleTimeout})
	}

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      o.writeTimeout,
		IdleTimeout:       120 * time.Second,
	}
	if o.host != "" {
		srv.Addr = o.host
	}
	if o.readTimeout != 0 {
		srv.ReadTimeout = o.readTimeout
	}
	if o.idleTimeout != 0 {
		srv.IdleTimeout = o.idleTimeout
	}

	s := Server{
		srv:             srv,
		shutdownTimeout: 20 * time.Second,
		logger:          slog.Default(),
		shutdownFuncs:   o.shutdownFuncs,
		tlsCertFile:     o.tlsCertFile,
		tlsKeyFile:      o.tlsKeyFile,
	}
	if o.shutdownTimeout != 0 {
		s.shutdownTimeout = o.shutdownTimeout
	}
	if o.logger != nil {
		s.logger = o.logger
		srv.ErrorLog = slog.NewLogLogger(o.logger.Handler(), slog.LevelWarn)
	}

	return &s
}

// Run listens on the configured address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down within the
// shutdown timeout. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serverErrs := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", ln.Addr().String(), "tls", s.tlsCertFile != "")

		if s.tlsCertFile != "" {
			serverErrs <- s.srv.ServeTLS(ln, s.tlsCertFile, s.tlsKeyFile)
		} else {
			serverErrs <- s.srv.Serve(ln)
		}
	}()

	select {
	case err := <-serverErrs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown started", "cause", context.Cause(ctx))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}

		s.logger.Info("shutdown complete")

		return nil
	}
}

// Shutdown runs the registered shutdown funcs in order, then drains
// in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, fn := range s.shutdownFuncs {
		if err := fn(ctx); err != nil {
			s.logger.Error("shutdown func", "error", err)
		}
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		s.srv.Close()
		return fmt.Errorf("server didn't stop gracefully: %w", err)
	}

	return nil
}
