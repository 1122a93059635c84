package config

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"

	"github.com/adamwoolhether/courier/client"
	"github.com/adamwoolhether/courier/client/auth"
	"github.com/adamwoolhether/courier/client/pool"
)

// Options translates the client section into client options. The
// logger is passed through since it is built from the log section.
func (c Client) Options(logger *slog.Logger) []client.Option {
	opts := []client.Option{
		client.WithRedirectPolicy(c.Redirect),
		client.WithMaxRedirects(c.MaxRedirects),
		client.WithConnectTimeout(c.ConnectTimeout),
		client.WithTimeout(c.Timeout),
		client.WithVersion(c.Version),
	}

	if logger != nil {
		opts = append(opts, client.WithLogger(logger))
	}
	if c.H2C {
		opts = append(opts, client.WithH2CPriorKnowledge())
	}
	if c.Insecure {
		opts = append(opts, client.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	if c.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(c.UserAgent))
	}
	if c.RequestID {
		opts = append(opts, client.WithRequestID())
	}
	if c.Workers > 0 {
		opts = append(opts, client.WithPool(pool.New(c.Workers)))
	}
	if c.Throttle != nil {
		opts = append(opts, client.WithThrottle(c.Throttle.RPS, c.Throttle.Burst))
	}
	if c.Auth != nil {
		opts = append(opts, client.WithAuthenticator(auth.Static(c.Auth.Username, c.Auth.Password)))
	}

	return opts
}

// Logger builds the slog logger described by l, writing to w.
func (l Log) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	hopts := &slog.HandlerOptions{Level: level}

	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", l.Format)
	}
}
