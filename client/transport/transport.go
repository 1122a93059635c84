package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

const (
	// DefaultConnectTimeout bounds DNS resolution plus the TCP connect.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultMaxIdlePerHost caps the idle HTTP/1.1 connections kept per target.
	DefaultMaxIdlePerHost = 4
	// DefaultIdleTimeout is how long an idle connection stays reusable.
	DefaultIdleTimeout = 90 * time.Second
)

// Config tunes a Transport. Zero values select the defaults.
type Config struct {
	ConnectTimeout    time.Duration
	TLSConfig         *tls.Config
	Prefer            Version
	H2CPriorKnowledge bool
	MaxIdlePerHost    int
	IdleTimeout       time.Duration
	Logger            *slog.Logger
}

// Transport dials, negotiates and reuses connections. It is safe for
// concurrent use.
type Transport struct {
	dialer *net.Dialer
	tls    *tls.Config
	prefer Version
	h2c    bool
	h2     *http2.Transport
	cache  *cache
	logger *slog.Logger
}

// New builds a Transport from cfg.
func New(cfg Config) *Transport {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxIdlePerHost <= 0 {
		cfg.MaxIdlePerHost = DefaultMaxIdlePerHost
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Prefer == 0 {
		cfg.Prefer = HTTP2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Transport{
		dialer: &net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		},
		tls:    cfg.TLSConfig,
		prefer: cfg.Prefer,
		h2c:    cfg.H2CPriorKnowledge,
		h2: &http2.Transport{
			AllowHTTP:       true,
			ReadIdleTimeout: 30 * time.Second,
		},
		cache:  newCache(cfg.MaxIdlePerHost, cfg.IdleTimeout),
		logger: cfg.Logger,
	}
}

// Dial opens a new connection to tg. For https targets the TLS handshake
// runs before Dial returns and its ALPN result selects the version.
func (t *Transport) Dial(ctx context.Context, tg Target) (*Conn, error) {
	return t.dial(ctx, tg, t.prefer)
}

func (t *Transport) dial(ctx context.Context, tg Target, prefer Version) (*Conn, error) {
	raw, err := t.dialer.DialContext(ctx, "tcp", tg.Addr())
	if err != nil {
		kind := ErrConnect
		if ne, ok := errors.AsType[net.Error](err); ok && ne.Timeout() && ctx.Err() == nil {
			kind = ErrTimeout
		}
		return nil, &Error{Op: "dial", Addr: tg.Addr(), Kind: kind, Err: err}
	}

	conn := &Conn{
		target:   tg,
		raw:      raw,
		version:  HTTP11,
		release:  t.release,
		lastUsed: time.Now(),
	}

	switch {
	case tg.TLS():
		tc := tls.Client(raw, t.tlsConfig(tg, prefer))
		if err := tc.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, &Error{Op: "handshake", Addr: tg.Addr(), Kind: ErrTLS, Err: err}
		}

		conn.raw = tc
		if tc.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
			conn.version = HTTP2
		}

	case prefer == HTTP2 && t.h2c:
		conn.version = HTTP2
	}

	conn.br = bufio.NewReader(conn.raw)

	t.logger.Debug("connection established", "addr", tg.Addr(), "version", conn.version.String())

	return conn, nil
}

// RoundTrip sends out on a cached or freshly dialed connection and
// returns the response head with its body stream.
func (t *Transport) RoundTrip(ctx context.Context, out *Outbound) (*Exchange, error) {
	tg, err := TargetOf(out.URL)
	if err != nil {
		return nil, &Error{Op: "dial", Addr: out.URL.Host, Kind: ErrConnect, Err: err}
	}

	prefer := out.Prefer
	if prefer == 0 {
		prefer = t.prefer
	}

	if prefer == HTTP2 {
		if cc := t.cache.getH2(tg.Key()); cc != nil {
			out.conn(HTTP2, true)
			return t.roundTripH2(ctx, tg, cc, out)
		}
	}

	for attempt := 0; ; attempt++ {
		var conn *Conn
		if attempt == 0 {
			conn = t.cache.get(tg.Key())
		}

		reused := conn != nil
		if !reused {
			if conn, err = t.dial(ctx, tg, prefer); err != nil {
				return nil, err
			}
		}

		if conn.version == HTTP2 {
			cc, err := t.h2.NewClientConn(conn.raw)
			if err != nil {
				conn.Close()
				return nil, &Error{Op: "handshake", Addr: tg.Addr(), Kind: ErrProtocol, Err: err}
			}
			t.cache.putH2(tg.Key(), cc)

			out.conn(HTTP2, false)
			return t.roundTripH2(ctx, tg, cc, out)
		}

		out.conn(HTTP11, reused)

		ex, err := conn.exchange(ctx, out)
		if err != nil {
			if reused && errors.Is(err, errServerClosed) && ctx.Err() == nil && replayable(out.Method, err) {
				t.logger.Debug("retrying on fresh connection", "addr", tg.Addr(), "error", err)
				continue
			}
			return nil, err
		}

		ex.Reused = reused
		return ex, nil
	}
}

// replayable reports whether a request that failed on a stale connection
// may be sent again. Once the request was fully written the peer may have
// acted on it, so only idempotent methods are replayed.
func replayable(method string, err error) bool {
	var te *Error
	if errors.As(err, &te) && te.Op == "write" {
		return true
	}

	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete:
		return true
	}

	return false
}

func (t *Transport) roundTripH2(ctx context.Context, tg Target, cc *http2.ClientConn, out *Outbound) (*Exchange, error) {
	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL.String(), bytes.NewReader(out.Body))
	if err != nil {
		return nil, fmt.Errorf("building h2 request: %w", err)
	}
	req.ContentLength = int64(len(out.Body))
	if len(out.Body) == 0 {
		req.Body = http.NoBody
	}

	for _, f := range out.fields() {
		req.Header.Add(f[0], f[1])
	}

	out.wrote()
	resp, err := cc.RoundTrip(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &Error{Op: "roundtrip", Addr: tg.Addr(), Kind: ErrProtocol, Err: err}
	}

	return &Exchange{
		Head: Head{
			StatusCode:    resp.StatusCode,
			Status:        resp.Status,
			Version:       HTTP2,
			Header:        resp.Header,
			ContentLength: resp.ContentLength,
		},
		Body: resp.Body,
	}, nil
}

// CloseIdle closes every cached connection.
func (t *Transport) CloseIdle() {
	t.cache.closeAll()
}

// IdleConns reports how many HTTP/1.1 connections are parked for tg.
func (t *Transport) IdleConns(tg Target) int {
	return t.cache.idleCount(tg.Key())
}

func (t *Transport) release(c *Conn, reusable bool) {
	if !reusable {
		c.Close()
		return
	}

	t.cache.put(c)
}

func (t *Transport) tlsConfig(tg Target, prefer Version) *tls.Config {
	var cfg *tls.Config
	if t.tls != nil {
		cfg = t.tls.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if cfg.ServerName == "" {
		cfg.ServerName = tg.Host
	}

	if prefer == HTTP2 {
		cfg.NextProtos = []string{http2.NextProtoTLS, "http/1.1"}
	} else {
		cfg.NextProtos = []string{"http/1.1"}
	}

	return cfg
}
