package body

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// JSON decodes the body into a T.
func JSON[T any]() Handler[T] {
	return HandlerFunc[T](func(ctx context.Context, info Info, body io.ReadCloser) (T, error) {
		defer release(info, body)

		var v T
		if err := json.NewDecoder(body).Decode(&v); err != nil {
			return v, fmt.Errorf("decoding body: %w", err)
		}

		return v, nil
	})
}
