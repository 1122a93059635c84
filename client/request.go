package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/adamwoolhether/courier/client/transport"
	"golang.org/x/net/http/httpguts"
)

// Request is an immutable HTTP request. Build one with [NewRequest] and
// derive variants with [Request.With]; accessors return copies, so a
// Request is safe to share between goroutines and retries.
type Request struct {
	method  string
	url     *url.URL
	header  http.Header
	order   []string
	body    []byte
	timeout time.Duration
	version transport.Version
}

// NewRequest validates method and uri and applies opts. uri must be an
// absolute http or https URL.
func NewRequest(method, uri string, opts ...RequestOption) (*Request, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing uri: %w", err)
	}

	return newRequest(method, u, opts...)
}

func newRequest(method string, u *url.URL, opts ...RequestOption) (*Request, error) {
	if method == "" {
		method = http.MethodGet
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("invalid method %q", method)
	}
	if u == nil {
		return nil, errors.New("url must not be nil")
	}
	if _, err := transport.TargetOf(u); err != nil {
		return nil, fmt.Errorf("invalid uri: %w", err)
	}

	uc := *u
	req := &Request{
		method: method,
		url:    &uc,
		header: make(http.Header),
	}

	return req.apply(opts)
}

// With returns a copy of r with opts applied on top. r is unchanged.
func (r *Request) With(opts ...RequestOption) (*Request, error) {
	cpy := r.clone()

	return cpy.apply(opts)
}

func (r *Request) apply(opts []RequestOption) (*Request, error) {
	settings := requestOpts{req: r}
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}

	if settings.body != nil {
		b, contentType, err := settings.body()
		if err != nil {
			return nil, err
		}
		r.body = b
		if contentType != "" && r.header.Get("Content-Type") == "" {
			r.setHeader("Content-Type", contentType)
		}
	}
	if settings.contentType != "" {
		r.setHeader("Content-Type", settings.contentType)
	}

	return r, nil
}

func (r *Request) clone() *Request {
	uc := *r.url

	return &Request{
		method:  r.method,
		url:     &uc,
		header:  r.header.Clone(),
		order:   slices.Clone(r.order),
		body:    r.body,
		timeout: r.timeout,
		version: r.version,
	}
}

// Method is the request method.
func (r *Request) Method() string { return r.method }

// URL returns a copy of the target URL.
func (r *Request) URL() *url.URL {
	uc := *r.url
	return &uc
}

// Header returns a copy of the request headers.
func (r *Request) Header() http.Header { return r.header.Clone() }

// Body returns a copy of the request body.
func (r *Request) Body() []byte { return bytes.Clone(r.body) }

// Timeout is the per-request timeout; zero defers to the client.
func (r *Request) Timeout() time.Duration { return r.timeout }

// Version is the per-request version preference; zero defers to the client.
func (r *Request) Version() transport.Version { return r.version }

func (r *Request) addHeader(name, value string) {
	name = http.CanonicalHeaderKey(name)
	if _, ok := r.header[name]; !ok {
		r.order = append(r.order, name)
	}
	r.header.Add(name, value)
}

func (r *Request) setHeader(name, value string) {
	r.delHeader(name)
	r.addHeader(name, value)
}

func (r *Request) delHeader(name string) {
	name = http.CanonicalHeaderKey(name)
	r.header.Del(name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
}

func validMethod(m string) bool {
	return len(m) > 0 && strings.IndexFunc(m, func(c rune) bool {
		return !httpguts.IsTokenRune(c)
	}) == -1
}

// /////////////////////////////////////////////////////////////////

// RequestOption is a functional option for [NewRequest] and [Request.With].
type RequestOption func(options *requestOpts) error

type requestOpts struct {
	req         *Request
	body        func() ([]byte, string, error)
	contentType string
}

func (o *requestOpts) setBody(fn func() ([]byte, string, error)) error {
	if o.body != nil {
		return errors.New("request body already set")
	}

	o.body = fn
	return nil
}

// WithHeader appends a header value. Headers are written in the order
// their names were first added.
func WithHeader(name, value string) RequestOption {
	return func(opts *requestOpts) error {
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("invalid header name %q", name)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return fmt.Errorf("invalid value for header %q", name)
		}

		opts.req.addHeader(name, value)
		return nil
	}
}

// WithHeaders adds custom headers to the outgoing request.
func WithHeaders(headers map[string][]string) RequestOption {
	return func(opts *requestOpts) error {
		names := make([]string, 0, len(headers))
		for name := range headers {
			names = append(names, name)
		}
		slices.Sort(names)

		for _, name := range names {
			for _, v := range headers[name] {
				if err := WithHeader(name, v)(opts); err != nil {
					return err
				}
			}
		}

		return nil
	}
}

// WithoutHeader removes every value of name.
func WithoutHeader(name string) RequestOption {
	return func(opts *requestOpts) error {
		opts.req.delHeader(name)
		return nil
	}
}

// WithContentType overrides the Content-Type implied by the body option.
func WithContentType(contentType string) RequestOption {
	return func(opts *requestOpts) error {
		if contentType == "" {
			return errors.New("cannot use empty content type")
		}

		opts.contentType = contentType

		return nil
	}
}

// WithCookies attaches the given cookies to the outgoing request.
func WithCookies(cookies ...*http.Cookie) RequestOption {
	return func(opts *requestOpts) error {
		for _, c := range cookies {
			if err := c.Valid(); err != nil {
				return fmt.Errorf("invalid cookie: %w", err)
			}
			opts.req.addHeader("Cookie", (&http.Cookie{Name: c.Name, Value: c.Value, Quoted: c.Quoted}).String())
		}

		return nil
	}
}

// WithPayload sets the JSON-encoded request body.
func WithPayload(body any) RequestOption {
	return func(opts *requestOpts) error {
		return opts.setBody(func() ([]byte, string, error) {
			var payload bytes.Buffer
			if err := json.NewEncoder(&payload).Encode(body); err != nil {
				return nil, "", fmt.Errorf("encoding request payload: %w", err)
			}

			return payload.Bytes(), "application/json", nil
		})
	}
}

// WithBody sets a raw request body.
func WithBody(b []byte) RequestOption {
	return func(opts *requestOpts) error {
		b := bytes.Clone(b)
		return opts.setBody(func() ([]byte, string, error) {
			return b, "", nil
		})
	}
}

// WithStringBody sets a text request body.
func WithStringBody(s string) RequestOption {
	return func(opts *requestOpts) error {
		return opts.setBody(func() ([]byte, string, error) {
			return []byte(s), "text/plain; charset=utf-8", nil
		})
	}
}

// WithForm sets a url-encoded form body. An empty form sends an empty
// body with the form Content-Type.
func WithForm(form url.Values) RequestOption {
	return func(opts *requestOpts) error {
		return opts.setBody(func() ([]byte, string, error) {
			return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
		})
	}
}

// Part is one field of a multipart/form-data body. Parts with a Filename
// are sent as file uploads.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
}

// FormField returns a plain multipart field.
func FormField(name, value string) Part {
	return Part{Name: name, Data: []byte(value)}
}

// FormFile returns a multipart file part.
func FormFile(name, filename string, data []byte) Part {
	return Part{Name: name, Filename: filename, Data: data}
}

// WithMultipart sets a multipart/form-data body built from parts.
func WithMultipart(parts ...Part) RequestOption {
	return func(opts *requestOpts) error {
		return opts.setBody(func() ([]byte, string, error) {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)

			for _, p := range parts {
				if p.Name == "" {
					return nil, "", errors.New("multipart part needs a name")
				}

				h := make(textproto.MIMEHeader)
				disposition := fmt.Sprintf(`form-data; name="%s"`, escapeQuotes(p.Name))
				if p.Filename != "" {
					disposition += fmt.Sprintf(`; filename="%s"`, escapeQuotes(p.Filename))
				}
				h.Set("Content-Disposition", disposition)

				switch {
				case p.ContentType != "":
					h.Set("Content-Type", p.ContentType)
				case p.Filename != "":
					h.Set("Content-Type", "application/octet-stream")
				}

				w, err := mw.CreatePart(h)
				if err != nil {
					return nil, "", fmt.Errorf("creating part %q: %w", p.Name, err)
				}
				if _, err := w.Write(p.Data); err != nil {
					return nil, "", fmt.Errorf("writing part %q: %w", p.Name, err)
				}
			}

			if err := mw.Close(); err != nil {
				return nil, "", fmt.Errorf("closing multipart body: %w", err)
			}

			return buf.Bytes(), mw.FormDataContentType(), nil
		})
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// WithRequestTimeout bounds the whole logical request, including
// redirects, the auth retry and reading the body.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(opts *requestOpts) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}

		opts.req.timeout = d
		return nil
	}
}

// WithExpectVersion overrides the client's version preference.
func WithExpectVersion(v transport.Version) RequestOption {
	return func(opts *requestOpts) error {
		if v != transport.HTTP11 && v != transport.HTTP2 {
			return fmt.Errorf("unsupported version %v", v)
		}

		opts.req.version = v
		return nil
	}
}
