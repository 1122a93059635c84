package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/adamwoolhether/courier/client/body"
	"github.com/adamwoolhether/courier/client/pool"
)

// Do will fire the request, and write response to the given dest object if any.
func (c *Client) Do(ctx context.Context, req *Request, expCode int, opts ...DoOption) error {
	var settings doOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return err
		}
	}

	doFunc := func(_ context.Context, _ body.Info, rc io.ReadCloser) (struct{}, error) {
		if settings.responseBody != nil {
			d := json.NewDecoder(rc)

			if settings.useJSONNum {
				d.UseNumber()
			}

			if err := d.Decode(settings.responseBody); err != nil {
				return struct{}{}, fmt.Errorf("decoding body: %w", err)
			}
		}

		return struct{}{}, nil
	}

	_, err := Send(ctx, c, req, expectStatus(expCode, drained(body.HandlerFunc[struct{}](doFunc))))
	return err
}

// Download executes a request that's intended to stream the response body it to destPath.
// Data streams to a temp file in the same directory, then the temp file is renamed to
// destPath on success or cleared on failure
func (c *Client) Download(ctx context.Context, req *Request, expCode int, destPath string, opts ...DownloadOption) error {
	if destPath == "" {
		return errors.New("destPath must not be empty")
	}

	if _, err := Send(ctx, c, req, expectStatus(expCode, body.File(destPath, opts...))); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	return nil
}

// DownloadAsync runs Download on the client's pool. The future resolves
// to destPath.
func (c *Client) DownloadAsync(ctx context.Context, req *Request, expCode int, destPath string, opts ...DownloadOption) *pool.Future[string] {
	if destPath == "" {
		return pool.Completed("", errors.New("destPath must not be empty"))
	}

	return pool.Submit(ctx, c.workers(), func(ctx context.Context) (string, error) {
		if err := c.Download(ctx, req, expCode, destPath, opts...); err != nil {
			return "", err
		}

		return destPath, nil
	})
}

// expectStatus fails with an [*UnexpectedStatusError] unless the final
// status is expCode, reading at most maxErrBodySize of the body into it.
func expectStatus[T any](expCode int, h body.Handler[T]) body.Handler[T] {
	return body.HandlerFunc[T](func(ctx context.Context, info body.Info, rc io.ReadCloser) (T, error) {
		if info.StatusCode != expCode {
			return failStatus[T](info, rc)
		}

		return h.Handle(ctx, info, rc)
	})
}

// expectSuccess is expectStatus for any 2xx status.
func expectSuccess[T any](h body.Handler[T]) body.Handler[T] {
	return body.HandlerFunc[T](func(ctx context.Context, info body.Info, rc io.ReadCloser) (T, error) {
		if info.StatusCode < 200 || info.StatusCode > 299 {
			return failStatus[T](info, rc)
		}

		return h.Handle(ctx, info, rc)
	})
}

func failStatus[T any](info body.Info, rc io.ReadCloser) (T, error) {
	var zero T

	b, err := io.ReadAll(io.LimitReader(rc, maxErrBodySize))
	if err != nil {
		b = []byte("unable to read body")
	}
	if err := rc.Close(); err != nil {
		info.Logger.Error("failed to close response body", "error", err)
	}

	return zero, unexpectedStatus(info.StatusCode, string(b))
}

// drained runs h and then discards what it left of the body.
func drained[T any](h body.Handler[T]) body.Handler[T] {
	return body.HandlerFunc[T](func(ctx context.Context, info body.Info, rc io.ReadCloser) (T, error) {
		defer func() {
			if _, err := io.Copy(io.Discard, rc); err != nil {
				info.Logger.Error("failed to discard unused body", "error", err)
			}
			if err := rc.Close(); err != nil {
				info.Logger.Error("failed to close response body", "error", err)
			}
		}()

		return h.Handle(ctx, info, rc)
	})
}
