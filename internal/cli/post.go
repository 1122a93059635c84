package cli

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/adamwoolhether/courier/client"
	"github.com/adamwoolhether/courier/client/body"
)

type postFlags struct {
	headers     []string
	data        string
	json        string
	form        []string
	fields      []string
	contentType string
	include     bool
	verbose     bool
	query       string
	fail        bool
}

func (a *app) postCmd() *cobra.Command {
	var f postFlags

	cmd := &cobra.Command{
		Use:   "post <url>",
		Short: "Send a POST request and print the response body",
		Long: `Send a POST request and print the response body. Without a body flag an
empty url-encoded form is sent.

Examples:
  courier post http://127.0.0.1:8080/post --form name=gopher --form lang=go
  courier post http://127.0.0.1:8080/post --json '{"name":"gopher"}' -q json.name
  courier post http://127.0.0.1:8080/post -F note=hello -F upload=@./report.csv
  courier post http://127.0.0.1:8080/post -d @./payload.txt --content-type text/csv`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPost(cmd, args[0], f)
		},
	}

	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "Request header as 'Name: value', repeatable")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "Raw body, or @path to read it from a file")
	cmd.Flags().StringVar(&f.json, "json", "", "JSON body")
	cmd.Flags().StringArrayVar(&f.form, "form", nil, "url-encoded form field as name=value, repeatable")
	cmd.Flags().StringArrayVarP(&f.fields, "field", "F", nil, "multipart field as name=value or name=@path, repeatable")
	cmd.Flags().StringVar(&f.contentType, "content-type", "", "Override the body Content-Type")
	cmd.Flags().BoolVarP(&f.include, "include", "i", false, "Print the status line and headers")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Print the redirect and retry hops to stderr")
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "gjson path applied to a JSON body")
	cmd.Flags().BoolVarP(&f.fail, "fail", "f", false, "Exit non-zero on a 4xx or 5xx status")
	cmd.MarkFlagsMutuallyExclusive("data", "json", "form", "field")

	return cmd
}

func (a *app) runPost(cmd *cobra.Command, uri string, f postFlags) error {
	opts, err := requestOptions(f.headers)
	if err != nil {
		return err
	}

	bodyOpts, err := postBody(f)
	if err != nil {
		return err
	}
	opts = append(opts, bodyOpts...)
	if f.contentType != "" {
		opts = append(opts, client.WithContentType(f.contentType))
	}

	req, err := client.NewRequest(http.MethodPost, uri, opts...)
	if err != nil {
		return usageErrorf("%w", err)
	}

	c, err := a.newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := client.Send(cmd.Context(), c, req, body.String())
	if err != nil {
		return err
	}

	report(a, resp, f.include, f.verbose)
	if err := printBody(a.out, resp.Body, f.query); err != nil {
		return err
	}

	return a.fail(f.fail, resp.StatusCode, resp.Status)
}

func postBody(f postFlags) ([]client.RequestOption, error) {
	switch {
	case f.data != "":
		data, err := readArg(f.data)
		if err != nil {
			return nil, err
		}
		if f.contentType == "" {
			return []client.RequestOption{client.WithStringBody(string(data))}, nil
		}
		return []client.RequestOption{client.WithBody(data)}, nil

	case f.json != "":
		if !gjson.Valid(f.json) {
			return nil, usageErrorf("--json is not valid JSON")
		}
		opts := []client.RequestOption{client.WithBody([]byte(f.json))}
		if f.contentType == "" {
			opts = append(opts, client.WithContentType("application/json"))
		}
		return opts, nil

	case len(f.fields) > 0:
		parts := make([]client.Part, 0, len(f.fields))
		for _, field := range f.fields {
			name, value, ok := strings.Cut(field, "=")
			if !ok || name == "" {
				return nil, usageErrorf("field %q must be name=value", field)
			}
			if path, isFile := strings.CutPrefix(value, "@"); isFile {
				data, err := os.ReadFile(path)
				if err != nil {
					return nil, usageErrorf("reading field %q: %w", name, err)
				}
				parts = append(parts, client.FormFile(name, filepath.Base(path), data))
				continue
			}
			parts = append(parts, client.FormField(name, value))
		}
		return []client.RequestOption{client.WithMultipart(parts...)}, nil

	default:
		form := url.Values{}
		for _, field := range f.form {
			name, value, ok := strings.Cut(field, "=")
			if !ok || name == "" {
				return nil, usageErrorf("form field %q must be name=value", field)
			}
			form.Add(name, value)
		}
		return []client.RequestOption{client.WithForm(form)}, nil
	}
}

// readArg returns s, or the contents of the file it names when it starts
// with '@'.
func readArg(s string) ([]byte, error) {
	path, isFile := strings.CutPrefix(s, "@")
	if !isFile {
		return []byte(s), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, usageErrorf("reading %s: %w", path, err)
	}

	return data, nil
}
