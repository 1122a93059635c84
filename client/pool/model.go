package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled completes a Future cancelled before it finished.
	ErrCancelled = errors.New("cancelled")
	// ErrPoolShutdown completes a Future submitted to a shut down pool.
	ErrPoolShutdown = errors.New("pool shut down")
)

// PanicError reports a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panic: %v", e.Value)
}

// Stats is a snapshot of a pool's load.
type Stats struct {
	Size    int
	Running int64
	Queued  int64
}
