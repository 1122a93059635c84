package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/adamwoolhether/courier/internal/web/mux"
)

// Panics recovers a panicking handler into an error. It belongs innermost
// so Errors can answer it.
func Panics() mux.Middleware {
	return func(handler mux.Handler) mux.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					err = fmt.Errorf("PANIC [%v] TRACE[%s]", rec, debug.Stack())
				}
			}()

			return handler(ctx, w, r)
		}
	}
}
