package transport

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Target identifies the origin a connection is opened to.
type Target struct {
	Scheme string
	Host   string
	Port   string
}

// TargetOf derives the Target for an absolute http or https URL,
// filling in the default port for the scheme.
func TargetOf(u *url.URL) (Target, error) {
	if u == nil {
		return Target{}, fmt.Errorf("nil url")
	}

	scheme := strings.ToLower(u.Scheme)
	port := u.Port()

	switch scheme {
	case "http":
		if port == "" {
			port = "80"
		}
	case "https":
		if port == "" {
			port = "443"
		}
	default:
		return Target{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Target{}, fmt.Errorf("url %q has no host", u.String())
	}

	return Target{Scheme: scheme, Host: host, Port: port}, nil
}

// Addr is the host:port dial address.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, t.Port)
}

// Key identifies the target in the connection cache.
func (t Target) Key() string {
	return t.Scheme + "://" + t.Addr()
}

// TLS reports whether connections to the target are upgraded to TLS.
func (t Target) TLS() bool {
	return t.Scheme == "https"
}
