package download

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	ErrContentLengthMismatch = errors.New("content length mismatch")
	ErrChecksumMismatch      = errors.New("checksum mismatch")
	ErrDownloadCancelled     = errors.New("download cancelled")
)

// Error reports a failed post-download check on Path.
type Error struct {
	Path   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Detail)
	}

	return fmt.Sprintf("%s: %v: %s", e.Path, e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ctxReader fails the next read once ctx is done, so a copy stalled
// between reads notices cancellation.
type ctxReader struct {
	ctx context.Context
	io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	return r.Reader.Read(p)
}
