package client

import (
	"net/http"
	"net/url"

	"github.com/adamwoolhether/courier/client/transport"
)

// Response is a completed exchange whose body was consumed into a T.
// Previous links the redirect and authentication responses that led to
// it, most recent first; their bodies were discarded.
type Response[T any] struct {
	StatusCode int
	Status     string
	Version    transport.Version
	Header     http.Header
	URL        *url.URL
	Request    *Request
	Body       T
	Previous   *Response[struct{}]
}

// Hops counts the responses preceding r.
func (r *Response[T]) Hops() int {
	n := 0
	for p := r.Previous; p != nil; p = p.Previous {
		n++
	}

	return n
}

// OK reports whether the status is 2xx.
func (r *Response[T]) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
