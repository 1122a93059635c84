// Package body turns a response body stream into a typed value.
//
// Every handler except [Lines] reads the stream to EOF and closes it
// before returning, which lets the connection be reused. [Lines] hands
// the open stream to the caller through a [LineSeq].
package body

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/adamwoolhether/courier/client/transport"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnsupportedCharset is returned for a Content-Type charset that has
// no known decoder.
var ErrUnsupportedCharset = errors.New("unsupported charset")

// Info describes the response a body belongs to.
type Info struct {
	StatusCode    int
	Version       transport.Version
	Header        http.Header
	ContentLength int64
	URL           *url.URL
	Logger        *slog.Logger
}

// Handler consumes a response body into a T.
type Handler[T any] interface {
	Handle(ctx context.Context, info Info, body io.ReadCloser) (T, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc[T any] func(ctx context.Context, info Info, body io.ReadCloser) (T, error)

func (f HandlerFunc[T]) Handle(ctx context.Context, info Info, body io.ReadCloser) (T, error) {
	return f(ctx, info, body)
}

// String decodes the body to text using the charset named in
// Content-Type, defaulting to UTF-8.
func String() Handler[string] {
	return HandlerFunc[string](func(ctx context.Context, info Info, body io.ReadCloser) (string, error) {
		defer release(info, body)

		r, err := decoded(info.Header, body)
		if err != nil {
			return "", err
		}

		b, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("reading body: %w", err)
		}

		return string(b), nil
	})
}

// Bytes returns the raw body.
func Bytes() Handler[[]byte] {
	return HandlerFunc[[]byte](func(ctx context.Context, info Info, body io.ReadCloser) ([]byte, error) {
		defer release(info, body)

		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}

		return b, nil
	})
}

// Discarding reads and drops the body.
func Discarding() Handler[struct{}] {
	return HandlerFunc[struct{}](func(ctx context.Context, info Info, body io.ReadCloser) (struct{}, error) {
		defer release(info, body)

		if _, err := io.Copy(io.Discard, body); err != nil {
			return struct{}{}, fmt.Errorf("discarding body: %w", err)
		}

		return struct{}{}, nil
	})
}

// maxDrainSize bounds how much of an unread body release discards before
// closing it.
const maxDrainSize = 64 << 10

// release drains at most maxDrainSize of what is left of body and closes
// it, logging failures the way the caller cannot observe them.
func release(info Info, body io.ReadCloser) {
	logger := info.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := io.Copy(io.Discard, io.LimitReader(body, maxDrainSize)); err != nil {
		logger.Debug("failed to discard unused body", "error", err)
	}
	if err := body.Close(); err != nil {
		logger.Error("failed to close response body", "error", err)
	}
}

// decoded wraps r with a decoder for the Content-Type charset of h.
func decoded(h http.Header, r io.Reader) (io.Reader, error) {
	enc, err := charsetOf(h)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 {
		return r, nil
	}

	return enc.NewDecoder().Reader(r), nil
}

func charsetOf(h http.Header) (encoding.Encoding, error) {
	ct := h.Get("Content-Type")
	if ct == "" {
		return unicode.UTF8, nil
	}

	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return unicode.UTF8, nil
	}

	name := strings.TrimSpace(params["charset"])
	if name == "" {
		return unicode.UTF8, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedCharset, name)
	}
	if n, _ := htmlindex.Name(enc); n == "utf-8" {
		return unicode.UTF8, nil
	}

	return enc, nil
}
