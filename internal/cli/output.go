package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"

	"github.com/adamwoolhether/courier/client"
)

var errNotJSON = errors.New("response body is not JSON")

func statusColor(code int) *color.Color {
	switch {
	case code >= 500:
		return color.New(color.FgRed, color.Bold)
	case code >= 400:
		return color.New(color.FgRed)
	case code >= 300:
		return color.New(color.FgYellow)
	case code >= 200:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgCyan)
	}
}

// printHead writes the status line and the headers in name order.
func printHead[T any](w io.Writer, resp *client.Response[T]) {
	fmt.Fprintf(w, "%s %s\n", resp.Version, statusColor(resp.StatusCode).Sprint(resp.Status))
	printHeader(w, resp.Header)
	fmt.Fprintln(w)
}

func printHeader(w io.Writer, h http.Header) {
	bold := color.New(color.Bold).SprintFunc()

	for _, name := range slices.Sorted(maps.Keys(h)) {
		for _, v := range h[name] {
			fmt.Fprintf(w, "%s: %s\n", bold(name), v)
		}
	}
}

// printHops writes the responses that led to resp, oldest first.
func printHops[T any](w io.Writer, resp *client.Response[T]) {
	var hops []*client.Response[struct{}]
	for p := resp.Previous; p != nil; p = p.Previous {
		hops = append(hops, p)
	}

	dim := color.New(color.Faint).SprintFunc()
	for _, h := range slices.Backward(hops) {
		to := h.Header.Get("Location")
		if to == "" {
			to = "(retry)"
		}
		fmt.Fprintf(w, "%s %s %s %s\n", dim("*"), statusColor(h.StatusCode).Sprint(h.StatusCode), h.URL.Redacted(), dim("-> "+to))
	}
	fmt.Fprintf(w, "%s %s %s\n", dim("*"), statusColor(resp.StatusCode).Sprint(resp.StatusCode), resp.URL.Redacted())
}

// printBody writes body, or the gjson query result over it when query is
// set.
func printBody(w io.Writer, body, query string) error {
	if query == "" {
		_, err := io.WriteString(w, body)
		if err == nil && body != "" && !strings.HasSuffix(body, "\n") {
			_, err = io.WriteString(w, "\n")
		}
		return err
	}

	if !gjson.Valid(body) {
		return errNotJSON
	}

	res := gjson.Get(body, query)
	if !res.Exists() {
		return fmt.Errorf("query %q matched nothing", query)
	}

	_, err := fmt.Fprintln(w, res.String())
	return err
}

// failOn returns an error wrapping [client.ErrUnexpectedStatusCode] for
// statuses of 400 and above.
func failOn(code int, status string) error {
	if code < http.StatusBadRequest {
		return nil
	}

	return fmt.Errorf("%s: %w", status, client.ErrUnexpectedStatusCode)
}
