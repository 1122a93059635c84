package cli

import (
	"errors"
	"fmt"

	"github.com/adamwoolhether/courier/client"
)

// Exit codes for the courier CLI
const (
	// ExitSuccess indicates the command completed
	ExitSuccess = 0

	// ExitFailure indicates a request completed with an unwanted status
	// or failed in some other way
	ExitFailure = 1

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a connect, TLS, protocol or timeout failure
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case isType[*usageError](err):
		return ExitUsageError
	case isType[*configError](err):
		return ExitConfigError
	case errors.Is(err, client.ErrConnect),
		errors.Is(err, client.ErrTLS),
		errors.Is(err, client.ErrProtocol),
		errors.Is(err, client.ErrTimeout):
		return ExitNetworkError
	default:
		return ExitFailure
	}
}

func isType[E error](err error) bool {
	_, ok := errors.AsType[E](err)
	return ok
}
