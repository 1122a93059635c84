// Package redirect decides whether a 3xx response is followed and how the
// follow-up request is derived from the one that produced it.
package redirect

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// DefaultMaxHops caps how many redirects one logical request may follow.
const DefaultMaxHops = 20

// ErrTooManyRedirects is wrapped by [Error] when the hop limit is exceeded.
var ErrTooManyRedirects = errors.New("too many redirects")

// Policy selects which redirects are followed.
type Policy int

const (
	// Never returns every 3xx response to the caller unchanged.
	Never Policy = iota
	// Always follows every redirect, including https to http.
	Always
	// Normal follows redirects except scheme downgrades from https to http.
	Normal
)

func (p Policy) String() string {
	switch p {
	case Never:
		return "never"
	case Always:
		return "always"
	case Normal:
		return "normal"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "never", "always" and "normal" in any case.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never":
		return Never, nil
	case "always":
		return Always, nil
	case "normal":
		return Normal, nil
	}

	return 0, fmt.Errorf("unknown redirect policy %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	parsed, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}

	*p = parsed
	return nil
}

// Step is the part of a request the engine rewrites between hops.
type Step struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// bodyHeaders describe a payload and are dropped together with it.
var bodyHeaders = []string{"Content-Type", "Content-Length", "Content-Encoding", "Transfer-Encoding"}

// Follow derives the next Step for a response with status and the given
// Location header value. It reports false when the response should be
// returned to the caller as-is: the policy forbids it, status is not a
// followable redirect, or location is missing or unusable.
func (p Policy) Follow(prev Step, status int, location string) (Step, bool) {
	if p == Never || !IsRedirect(status) || location == "" {
		return Step{}, false
	}

	loc, err := url.Parse(location)
	if err != nil {
		return Step{}, false
	}
	next := prev.URL.ResolveReference(loc)

	scheme := strings.ToLower(next.Scheme)
	if (scheme != "http" && scheme != "https") || next.Host == "" {
		return Step{}, false
	}
	if p == Normal && strings.EqualFold(prev.URL.Scheme, "https") && scheme == "http" {
		return Step{}, false
	}

	step := Step{
		Method: prev.Method,
		URL:    next,
		Header: prev.Header.Clone(),
		Body:   prev.Body,
	}
	if step.Header == nil {
		step.Header = make(http.Header)
	}

	if status != http.StatusTemporaryRedirect && status != http.StatusPermanentRedirect {
		if step.Method != http.MethodHead {
			step.Method = http.MethodGet
		}
		step.Body = nil
		for _, h := range bodyHeaders {
			step.Header.Del(h)
		}
	}

	if origin(prev.URL) != origin(next) {
		step.Header.Del("Authorization")
	}

	return step, true
}

// IsRedirect reports whether status is a redirect the engine can follow.
func IsRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}

	return false
}

func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}

	return scheme + "://" + net.JoinHostPort(strings.ToLower(u.Hostname()), port)
}
