package body

import (
	"context"
	"errors"
	"io"

	"github.com/adamwoolhether/courier/client/download"
)

// File streams the body to path through [download.Handle] and returns
// path on success. The file appears only once the body was fully written.
func File(path string, opts ...download.Option) Handler[string] {
	return HandlerFunc[string](func(ctx context.Context, info Info, body io.ReadCloser) (string, error) {
		defer release(info, body)

		if path == "" {
			return "", errors.New("destination path must not be empty")
		}

		if err := download.Handle(ctx, body, info.ContentLength, path, info.Logger, opts...); err != nil {
			return "", err
		}

		return path, nil
	})
}
