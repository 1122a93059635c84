package transport

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrConnect indicates DNS resolution or the TCP connect failed.
	ErrConnect = errors.New("connect failed")
	// ErrTLS indicates the TLS handshake or certificate verification failed.
	ErrTLS = errors.New("tls handshake failed")
	// ErrProtocol indicates malformed response framing.
	ErrProtocol = errors.New("protocol error")
	// ErrTimeout indicates a connect or overall deadline was exceeded.
	ErrTimeout = errors.New("timeout")
)

// Error describes a failed transport operation. Kind is one of the
// package sentinels, Err is the underlying cause.
type Error struct {
	Op   string
	Addr string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Kind)
	}

	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Addr, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// Timeout reports whether the cause was a network timeout.
func (e *Error) Timeout() bool {
	if errors.Is(e.Kind, ErrTimeout) {
		return true
	}

	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func protocolErr(addr string, format string, args ...any) error {
	return &Error{Op: "read", Addr: addr, Kind: ErrProtocol, Err: fmt.Errorf(format, args...)}
}
