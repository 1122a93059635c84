package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/adamwoolhether/courier/internal/web/mux"
)

// RespondJSON writes data as JSON with statusCode.
func RespondJSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) error {
	mux.SetStatusCode(ctx, statusCode)

	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return nil
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(append(jsonData, '\n')); err != nil {
		return err
	}

	return nil
}

// Respond writes body with contentType and statusCode.
func Respond(ctx context.Context, w http.ResponseWriter, statusCode int, contentType string, body io.Reader) error {
	mux.SetStatusCode(ctx, statusCode)

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(statusCode)

	if body == nil {
		return nil
	}
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("writing body: %w", err)
	}

	return nil
}

// Redirect issues a redirect to url. code must be a 3xx status.
func Redirect(w http.ResponseWriter, r *http.Request, url string, code int) error {
	if code < 300 || code > 399 {
		return fmt.Errorf("invalid redirect code: %d", code)
	}

	mux.SetStatusCode(r.Context(), code)
	http.Redirect(w, r, url, code)

	return nil
}
