package middleware

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/adamwoolhether/courier/internal/web/errs"
	"github.com/adamwoolhether/courier/internal/web/mux"
)

var defaultAllowHeaders = []string{
	"Authorization",
	"Content-Type",
	"Accept",
	"X-Requested-With",
	"X-Request-ID",
	"Traceparent",
}

// CORS answers cross-origin requests from allowedOrigins, which may hold
// "*" or path.Match patterns such as "https://*.example.com". Requests
// without an Origin header pass through untouched. Preflight OPTIONS
// requests end here with 204.
func CORS(allowedOrigins []string, allowedHeaders ...string) mux.Middleware {
	if len(allowedHeaders) == 0 {
		allowedHeaders = defaultAllowHeaders
	}

	allowed := OriginMatcher(allowedOrigins)
	headers := strings.Join(allowedHeaders, ", ")

	return func(handler mux.Handler) mux.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return handler(ctx, w, r)
			}

			if !allowed(origin) {
				return errs.New(http.StatusForbidden, fmt.Errorf("origin %s not allowed", origin))
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return nil
			}

			return handler(ctx, w, r)
		}
	}
}

// OriginMatcher reports whether an origin is in origins. Entries may be
// comma separated lists.
func OriginMatcher(origins []string) func(origin string) bool {
	var (
		exact    = make(map[string]bool)
		patterns []string
		allowAll bool
	)

	for _, entry := range origins {
		for o := range strings.SplitSeq(entry, ",") {
			switch o = strings.TrimSpace(o); {
			case o == "":
			case o == "*":
				allowAll = true
			case strings.Contains(o, "*"):
				patterns = append(patterns, o)
			default:
				exact[o] = true
			}
		}
	}

	return func(origin string) bool {
		if allowAll || exact[origin] {
			return true
		}
		for _, p := range patterns {
			if ok, err := path.Match(p, origin); ok && err == nil {
				return true
			}
		}

		return false
	}
}
