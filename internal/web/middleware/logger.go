package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/adamwoolhether/courier/internal/web/mux"
)

// Logger logs the start and completion of every request.
func Logger(log *slog.Logger) mux.Middleware {
	return func(handler mux.Handler) mux.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v := mux.GetValues(ctx)

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path += "?" + r.URL.RawQuery
			}

			log.Info("request started", "trace_id", v.TraceID, "method", r.Method, "path", path, "proto", r.Proto, "remoteaddr", r.RemoteAddr)

			err := handler(ctx, w, r)

			log.Info("request completed", "trace_id", v.TraceID, "method", r.Method, "path", path, "status", v.StatusCode, "since", time.Since(v.Now).String())

			return err
		}
	}
}
