package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/courier/client"
	"github.com/adamwoolhether/courier/client/body"
)

type getFlags struct {
	headers []string
	include bool
	verbose bool
	query   string
	stream  bool
	fail    bool
	head    bool
}

func (a *app) getCmd() *cobra.Command {
	var f getFlags

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Send a GET request and print the response body",
		Long: `Send a GET request and print the response body.

Examples:
  courier get https://go.dev/VERSION?m=text
  courier get -i --redirect normal http://127.0.0.1:8080/redirect/3
  courier get -q headers.User-Agent http://127.0.0.1:8080/headers
  courier get --stream http://127.0.0.1:8080/stream/5`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGet(cmd, args[0], f)
		},
	}

	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "Request header as 'Name: value', repeatable")
	cmd.Flags().BoolVarP(&f.include, "include", "i", false, "Print the status line and headers")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Print the redirect and retry hops to stderr")
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "gjson path applied to a JSON body")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "Print the body line by line as it arrives")
	cmd.Flags().BoolVarP(&f.fail, "fail", "f", false, "Exit non-zero on a 4xx or 5xx status")
	cmd.Flags().BoolVarP(&f.head, "head", "I", false, "Send HEAD instead of GET")
	cmd.MarkFlagsMutuallyExclusive("query", "stream")

	return cmd
}

func (a *app) runGet(cmd *cobra.Command, uri string, f getFlags) error {
	ctx := cmd.Context()

	opts, err := requestOptions(f.headers)
	if err != nil {
		return err
	}

	method := http.MethodGet
	if f.head {
		method = http.MethodHead
		f.include = true
	}

	req, err := client.NewRequest(method, uri, opts...)
	if err != nil {
		return usageErrorf("%w", err)
	}

	c, err := a.newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if f.stream {
		resp, err := client.Send(ctx, c, req, body.Lines())
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		report(a, resp, f.include, f.verbose)
		for line := range resp.Body.All() {
			fmt.Fprintln(a.out, line)
		}
		if err := resp.Body.Err(); err != nil {
			return err
		}

		return a.fail(f.fail, resp.StatusCode, resp.Status)
	}

	resp, err := client.Send(ctx, c, req, body.String())
	if err != nil {
		return err
	}

	report(a, resp, f.include, f.verbose)
	if err := printBody(a.out, resp.Body, f.query); err != nil {
		return err
	}

	return a.fail(f.fail, resp.StatusCode, resp.Status)
}

func (a *app) fail(enabled bool, code int, status string) error {
	if !enabled {
		return nil
	}

	return failOn(code, status)
}

// report writes the hops and head of resp when asked to.
func report[T any](a *app, resp *client.Response[T], include, verbose bool) {
	if verbose {
		printHops(a.errOut, resp)
	}
	if include {
		printHead(a.out, resp)
	}
}
