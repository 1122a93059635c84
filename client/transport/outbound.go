package transport

import (
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Outbound is the wire form of a request. Order lists canonical header
// names in the order they should be written; names missing from Order are
// written afterwards in sorted order.
//
// Prefer overrides the transport's version preference for this request.
// OnConn runs once a connection is ready and OnWrote once the request was
// handed to it; both may be nil.
type Outbound struct {
	Method string
	URL    *url.URL
	Header http.Header
	Order  []string
	Body   []byte
	Prefer Version

	OnConn  func(v Version, reused bool)
	OnWrote func()
}

// Head is the parsed status line and header block of a response.
type Head struct {
	StatusCode    int
	Status        string
	Version       Version
	Header        http.Header
	ContentLength int64
}

// Exchange is a response head together with its unread body stream.
// Body must be read to EOF or closed to release the connection.
type Exchange struct {
	Head
	Body   io.ReadCloser
	Reused bool
}

// hop-by-hop and framing headers the transport writes itself.
var managedHeaders = map[string]bool{
	"Host":              true,
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
	"Keep-Alive":        true,
	"Upgrade":           true,
	"Te":                true,
}

// fields returns header fields in write order.
func (o *Outbound) fields() [][2]string {
	seen := make(map[string]bool, len(o.Header))
	var out [][2]string

	emit := func(name string) {
		if seen[name] || managedHeaders[name] {
			return
		}
		seen[name] = true
		for _, v := range o.Header[name] {
			out = append(out, [2]string{name, v})
		}
	}

	for _, name := range o.Order {
		emit(http.CanonicalHeaderKey(name))
	}

	rest := make([]string, 0, len(o.Header))
	for name := range o.Header {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	for _, name := range rest {
		emit(name)
	}

	return out
}

func (o *Outbound) conn(v Version, reused bool) {
	if o.OnConn != nil {
		o.OnConn(v, reused)
	}
}

func (o *Outbound) wrote() {
	if o.OnWrote != nil {
		o.OnWrote()
	}
}

// closeRequested reports whether the request asked for the connection
// to be closed after the exchange.
func (o *Outbound) closeRequested() bool {
	return headerHasToken(o.Header, "Connection", "close")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for part := range strings.SplitSeq(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}

	return false
}

// hostHeader renders the Host header, omitting the scheme's default port.
func hostHeader(u *url.URL) string {
	host := u.Host
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	return host
}
