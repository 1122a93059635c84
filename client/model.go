package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/adamwoolhether/courier/client/pool"
	"github.com/adamwoolhether/courier/client/redirect"
	"github.com/adamwoolhether/courier/client/transport"
)

// maxErrBodySize caps the amount of response body read when
// building an error for an unexpected status code. This prevents
// unbounded memory usage when a large response arrives with a
// wrong status.
const maxErrBodySize = 4 << 10 // 4KB

// maxDrainSize caps how much of an intermediate redirect or auth
// response is read to keep its connection reusable.
const maxDrainSize = 64 << 10

var (
	// ErrConnect reports a DNS or TCP failure.
	ErrConnect = transport.ErrConnect
	// ErrTLS reports a failed TLS handshake or certificate verification.
	ErrTLS = transport.ErrTLS
	// ErrProtocol reports malformed response framing.
	ErrProtocol = transport.ErrProtocol
	// ErrTimeout reports an exceeded connect or request deadline.
	ErrTimeout = transport.ErrTimeout
	// ErrTooManyRedirects reports a redirect chain longer than the limit.
	ErrTooManyRedirects = redirect.ErrTooManyRedirects
	// ErrCancelled reports a request cancelled by its caller.
	ErrCancelled = pool.ErrCancelled
	// ErrPoolShutdown reports an async request submitted to a shut down pool.
	ErrPoolShutdown = pool.ErrPoolShutdown

	// ErrUnexpectedStatusCode is the sentinel error wrapped by [UnexpectedStatusError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	// ErrAuthFailure is joined with [ErrUnexpectedStatusCode] when the server
	// responds with 401 Unauthorized or 403 Forbidden.
	ErrAuthFailure = errors.New("auth failure")
)

type (
	// TransportError carries the operation and address of a transport failure.
	TransportError = transport.Error
	// RedirectError carries the last response of an overlong redirect chain.
	RedirectError = redirect.Error
)

// UnexpectedStatusError is returned when the HTTP response status code
// does not match the expected value.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Err
}

func unexpectedStatus(code int, body string) *UnexpectedStatusError {
	err := ErrUnexpectedStatusCode
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		err = errors.Join(ErrUnexpectedStatusCode, ErrAuthFailure)
	}

	return &UnexpectedStatusError{StatusCode: code, Body: body, Err: err}
}

// classify maps a failure observed while ctx may have ended onto the
// timeout and cancellation sentinels.
func classify(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrCancelled) {
		return err
	}

	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrTimeout), errors.Is(cause, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(cause, ErrCancelled):
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	default:
		return fmt.Errorf("%w: %w: %w", ErrCancelled, cause, err)
	}
}
