// Package middleware provides the logging, error and panic middleware
// every route is wrapped in.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/adamwoolhether/courier/internal/web"
	"github.com/adamwoolhether/courier/internal/web/errs"
	"github.com/adamwoolhether/courier/internal/web/mux"
)

// Errors turns handler errors into JSON responses. FieldErrors answer 422,
// *errs.Error answers its code and anything else a 500 whose message is
// hidden from the client.
func Errors(log *slog.Logger) mux.Middleware {
	return func(handler mux.Handler) mux.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			if fieldErrs, ok := errs.AsFieldErrors(err); ok {
				return web.RespondJSON(ctx, w, http.StatusUnprocessableEntity, struct {
					Error  string           `json:"error"`
					Fields errs.FieldErrors `json:"fields"`
				}{Error: "validation failed", Fields: fieldErrs})
			}

			appErr, ok := errors.AsType[*errs.Error](err)
			if !ok {
				appErr = errs.NewInternal(err)
			}

			log.Error("handler failed",
				"trace_id", mux.TraceID(ctx),
				"status", appErr.Code,
				"source", appErr.Source,
				"error", err,
			)

			resp := *appErr
			if resp.IsInternal() {
				resp.Message = http.StatusText(resp.Code)
			}

			return web.RespondJSON(ctx, w, resp.Code, resp)
		}
	}
}
