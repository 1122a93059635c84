package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// errServerClosed marks a connection that was closed by the peer before
// any byte of a response arrived. Reused connections failing this way
// are retried once on a fresh connection when the request is replayable.
var errServerClosed = errors.New("server closed connection before response")

var errBodyClosed = errors.New("read on closed response body")

// Conn is a single HTTP/1.1 connection to a Target.
type Conn struct {
	target   Target
	raw      net.Conn
	br       *bufio.Reader
	version  Version
	release  func(c *Conn, reusable bool)
	lastUsed time.Time
}

// Version is the protocol negotiated for the connection.
func (c *Conn) Version() Version { return c.version }

// Target is the origin the connection was opened to.
func (c *Conn) Target() Target { return c.target }

// Close closes the underlying network connection.
func (c *Conn) Close() error { return c.raw.Close() }

// Write sends the request line, header block and body.
//
//	GET /xml HTTP/1.1\r\n
//	Host: localhost:8080\r\n
//	Accept: application/xml\r\n
//	\r\n
func (c *Conn) Write(out *Outbound) error {
	bw := bufio.NewWriter(c.raw)

	bw.WriteString(out.Method)
	bw.WriteByte(' ')
	bw.WriteString(out.URL.RequestURI())
	bw.WriteString(" HTTP/1.1\r\n")

	bw.WriteString("Host: ")
	bw.WriteString(hostHeader(out.URL))
	bw.WriteString("\r\n")

	if len(out.Body) > 0 || bodyAllowed(out.Method) {
		bw.WriteString("Content-Length: ")
		bw.WriteString(strconv.Itoa(len(out.Body)))
		bw.WriteString("\r\n")
	}
	if out.closeRequested() {
		bw.WriteString("Connection: close\r\n")
	}

	for _, f := range out.fields() {
		bw.WriteString(f[0])
		bw.WriteString(": ")
		bw.WriteString(f[1])
		bw.WriteString("\r\n")
	}
	bw.WriteString("\r\n")
	bw.Write(out.Body)

	if err := bw.Flush(); err != nil {
		return &Error{Op: "write", Addr: c.target.Addr(), Kind: ErrConnect, Err: fmt.Errorf("%w: %w", errServerClosed, err)}
	}

	return nil
}

// ReadResponseHead reads the status line and header block. Interim 1xx
// responses other than 101 are consumed and skipped.
func (c *Conn) ReadResponseHead() (*Head, error) {
	tp := textproto.NewReader(c.br)
	addr := c.target.Addr()

	for first := true; ; first = false {
		line, err := tp.ReadLine()
		if err != nil {
			if first && (errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET)) {
				return nil, &Error{Op: "read", Addr: addr, Kind: ErrConnect, Err: errServerClosed}
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, &Error{Op: "read", Addr: addr, Kind: ErrProtocol, Err: err}
		}

		head, http10, err := parseStatusLine(line)
		if err != nil {
			return nil, &Error{Op: "read", Addr: addr, Kind: ErrProtocol, Err: err}
		}

		mime, err := tp.ReadMIMEHeader()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, &Error{Op: "read", Addr: addr, Kind: ErrProtocol, Err: err}
		}

		if head.StatusCode < 200 && head.StatusCode != http.StatusSwitchingProtocols {
			continue
		}

		head.Header = http.Header(mime)
		head.Version = HTTP11

		cl, err := contentLength(head.Header)
		if err != nil {
			return nil, &Error{Op: "read", Addr: addr, Kind: ErrProtocol, Err: err}
		}
		head.ContentLength = cl

		if http10 && !headerHasToken(head.Header, "Connection", "keep-alive") {
			head.Header.Set("Connection", "close")
		}

		return head, nil
	}
}

// Body frames the response body that follows head. finish is invoked once
// the body reached EOF (clean) or was abandoned.
func (c *Conn) Body(method string, head *Head, finish func(clean bool)) (io.ReadCloser, error) {
	addr := c.target.Addr()

	if !responseHasBody(method, head.StatusCode) {
		finish(true)
		return http.NoBody, nil
	}

	if te := head.Header.Values("Transfer-Encoding"); len(te) > 0 {
		head.ContentLength = -1
		head.Header.Del("Content-Length")

		if !isChunked(te) {
			return newBodyReader(c.br, addr, nil, closeDelimited(finish)), nil
		}

		trailer := func() error {
			mime, err := textproto.NewReader(c.br).ReadMIMEHeader()
			if err != nil {
				return err
			}
			for k, v := range mime {
				head.Header[k] = append(head.Header[k], v...)
			}
			return nil
		}

		return newBodyReader(httputil.NewChunkedReader(c.br), addr, trailer, finish), nil
	}

	switch {
	case head.ContentLength == 0:
		finish(true)
		return http.NoBody, nil
	case head.ContentLength > 0:
		return newBodyReader(&lengthReader{r: c.br, remaining: head.ContentLength}, addr, nil, finish), nil
	default:
		return newBodyReader(c.br, addr, nil, closeDelimited(finish)), nil
	}
}

// exchange writes out and reads the response head, binding the
// connection's lifetime to ctx until the body is released.
func (c *Conn) exchange(ctx context.Context, out *Outbound) (*Exchange, error) {
	stop := context.AfterFunc(ctx, func() { c.raw.Close() })

	fail := func(err error) (*Exchange, error) {
		stop()
		c.raw.Close()
		return nil, err
	}

	if err := c.Write(out); err != nil {
		return fail(err)
	}
	out.wrote()

	head, err := c.ReadResponseHead()
	if err != nil {
		return fail(err)
	}

	keep := !out.closeRequested() && !headerHasToken(head.Header, "Connection", "close")

	body, err := c.Body(out.Method, head, func(clean bool) {
		detached := stop()
		c.lastUsed = time.Now()
		c.release(c, detached && clean && keep)
	})
	if err != nil {
		return fail(err)
	}

	return &Exchange{Head: *head, Body: body}, nil
}

// /////////////////////////////////////////////////////////////////

func parseStatusLine(line string) (*Head, bool, error) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, false, fmt.Errorf("malformed status line %q", line)
	}

	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok || major != 1 {
		return nil, false, fmt.Errorf("unsupported protocol %q", proto)
	}

	rest = strings.TrimLeft(rest, " ")
	code, _, _ := strings.Cut(rest, " ")
	if len(code) != 3 {
		return nil, false, fmt.Errorf("malformed status code %q", code)
	}

	status, err := strconv.Atoi(code)
	if err != nil || status < 100 || status > 599 {
		return nil, false, fmt.Errorf("status code %q out of range", code)
	}

	return &Head{StatusCode: status, Status: rest}, minor == 0, nil
}

// contentLength validates and deduplicates Content-Length, returning -1
// when absent. Conflicting values are rejected as in net/http.
func contentLength(h http.Header) (int64, error) {
	values := h["Content-Length"]
	if len(values) == 0 {
		return -1, nil
	}

	first := textproto.TrimString(values[0])
	for _, v := range values[1:] {
		if textproto.TrimString(v) != first {
			return 0, fmt.Errorf("conflicting Content-Length headers %q", values)
		}
	}

	n, err := strconv.ParseInt(first, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid Content-Length %q", first)
	}
	h["Content-Length"] = []string{first}

	return n, nil
}

func isChunked(te []string) bool {
	last := te[len(te)-1]
	if i := strings.LastIndexByte(last, ','); i >= 0 {
		last = last[i+1:]
	}

	return strings.EqualFold(strings.TrimSpace(last), "chunked")
}

func responseHasBody(method string, status int) bool {
	switch {
	case method == http.MethodHead:
		return false
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}

	return true
}

func bodyAllowed(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}

	return false
}

// closeDelimited bodies end with the connection, which is never reused.
func closeDelimited(finish func(bool)) func(bool) {
	return func(bool) { finish(false) }
}

// /////////////////////////////////////////////////////////////////

// lengthReader reads exactly remaining bytes, reporting a short body as
// io.ErrUnexpectedEOF.
type lengthReader struct {
	r         io.Reader
	remaining int64
}

func (l *lengthReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}

	n, err := l.r.Read(p)
	l.remaining -= int64(n)

	switch {
	case l.remaining == 0:
		return n, io.EOF
	case errors.Is(err, io.EOF):
		return n, io.ErrUnexpectedEOF
	}

	return n, err
}

// bodyReader guards a framed body: it can be consumed once, runs the
// trailer reader at EOF and releases the connection exactly once.
type bodyReader struct {
	r       io.Reader
	addr    string
	trailer func() error

	once   sync.Once
	finish func(clean bool)

	mu     sync.Mutex
	done   bool
	closed bool
}

func newBodyReader(r io.Reader, addr string, trailer func() error, finish func(bool)) *bodyReader {
	return &bodyReader{r: r, addr: addr, trailer: trailer, finish: finish}
}

func (b *bodyReader) Read(p []byte) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, errBodyClosed
	}
	if b.done {
		b.mu.Unlock()
		return 0, io.EOF
	}
	b.mu.Unlock()

	n, err := b.r.Read(p)

	switch {
	case err == nil:
		return n, nil

	case errors.Is(err, io.EOF):
		clean := true
		if b.trailer != nil {
			if terr := b.trailer(); terr != nil {
				clean = false
			}
		}
		b.end(clean)
		return n, io.EOF

	default:
		b.end(false)
		if errors.Is(err, io.ErrUnexpectedEOF) || isFramingErr(err) {
			return n, protocolErr(b.addr, "reading body: %w", err)
		}
		return n, err
	}
}

// Close releases the body. Closing before EOF discards the connection.
func (b *bodyReader) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.end(false)
	return nil
}

func (b *bodyReader) end(clean bool) {
	b.mu.Lock()
	b.done = true
	b.mu.Unlock()

	b.once.Do(func() { b.finish(clean) })
}

func isFramingErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "chunk") || strings.Contains(msg, "malformed")
}
