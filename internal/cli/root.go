// Package cli implements the courier command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/adamwoolhether/courier/client"
	"github.com/adamwoolhether/courier/client/redirect"
	"github.com/adamwoolhether/courier/client/transport"
	"github.com/adamwoolhether/courier/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// SetVersion sets the version reported by --version.
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
}

// Execute runs the root command and exits with the code matching the
// failure.
func Execute(ctx context.Context) {
	cmd := New(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(exitCode(err))
	}
}

// app carries state shared by every subcommand.
type app struct {
	out    io.Writer
	errOut io.Writer

	cfgPath        string
	logLevel       string
	logFormat      string
	policy         string
	maxRedirects   int
	timeout        time.Duration
	connectTimeout time.Duration
	httpVersion    string
	h2c            bool
	insecure       bool
	user           string
	noColor        bool

	cfg    *config.Config
	logger *slog.Logger
}

// New builds the root command writing results to out and diagnostics
// to errOut.
func New(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "courier",
		Short: "A small HTTP client",
		Long: `courier sends HTTP/1.1 and HTTP/2 requests with configurable redirect
handling, Basic authentication and concurrent downloads.

Examples:
  courier get https://go.dev/VERSION?m=text
  courier post https://httpbin.org/post --form name=gopher
  courier download -o ./images https://httpbin.org/image/png https://httpbin.org/image/jpeg
  courier bench -n 200 -c 8 http://127.0.0.1:8080/get
  courier serve --addr 127.0.0.1:8080 --h2c`,
		Version:           fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	f := root.PersistentFlags()
	f.StringVarP(&a.cfgPath, "config", "c", "", "Path to a YAML configuration file")
	f.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&a.logFormat, "log-format", "", "Log format (text, json)")
	f.StringVar(&a.policy, "redirect", "", "Redirect policy (never, always, normal)")
	f.IntVar(&a.maxRedirects, "max-redirects", 0, "Maximum redirect hops")
	f.DurationVar(&a.timeout, "timeout", 0, "Per request timeout")
	f.DurationVar(&a.connectTimeout, "connect-timeout", 0, "TCP and TLS connect timeout")
	f.StringVar(&a.httpVersion, "http", "", "Preferred HTTP version (1.1, 2)")
	f.BoolVar(&a.h2c, "h2c", false, "Speak HTTP/2 over cleartext with prior knowledge")
	f.BoolVarP(&a.insecure, "insecure", "k", false, "Skip TLS certificate verification")
	f.StringVarP(&a.user, "user", "u", "", "Basic credentials as user:password, offered on a 401")
	f.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		a.getCmd(),
		a.postCmd(),
		a.downloadCmd(),
		a.benchCmd(),
		a.serveCmd(),
	)

	return root
}

// setup loads the configuration and layers the persistent flags over it.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.noColor {
		color.NoColor = true
	}

	cfg := config.Default()
	if a.cfgPath != "" {
		var err error
		if cfg, err = config.Load(a.cfgPath); err != nil {
			return &configError{err: err}
		}
	}

	if err := a.override(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return &configError{err: err}
	}

	logger, err := cfg.Log.Logger(a.errOut)
	if err != nil {
		return &configError{err: err}
	}

	a.cfg = cfg
	a.logger = logger

	return nil
}

func (a *app) override(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if changed("redirect") {
		p, err := redirect.ParsePolicy(a.policy)
		if err != nil {
			return usageErrorf("--redirect: %w", err)
		}
		cfg.Client.Redirect = p
	}
	if changed("max-redirects") {
		cfg.Client.MaxRedirects = a.maxRedirects
	}
	if changed("timeout") {
		cfg.Client.Timeout = a.timeout
	}
	if changed("connect-timeout") {
		cfg.Client.ConnectTimeout = a.connectTimeout
	}
	if changed("http") {
		v, err := transport.ParseVersion(a.httpVersion)
		if err != nil {
			return usageErrorf("--http: %w", err)
		}
		cfg.Client.Version = v
	}
	if changed("h2c") {
		cfg.Client.H2C = a.h2c
	}
	if changed("insecure") {
		cfg.Client.Insecure = a.insecure
	}
	if changed("user") {
		name, pass, ok := strings.Cut(a.user, ":")
		if !ok || name == "" {
			return usageErrorf("--user must be user:password")
		}
		cfg.Client.Auth = &config.Auth{Username: name, Password: pass}
	}

	return nil
}

// newClient builds a client from the loaded configuration. extra options
// are applied last.
func (a *app) newClient(extra ...client.Option) (*client.Client, error) {
	opts := append(a.cfg.Client.Options(a.logger), extra...)

	c, err := client.Build(opts...)
	if err != nil {
		return nil, &configError{err: fmt.Errorf("building client: %w", err)}
	}

	return c, nil
}

// usageArgs marks positional argument failures as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err: err}
		}

		return nil
	}
}

// requestOptions parses repeated "Name: value" header flags.
func requestOptions(headers []string) ([]client.RequestOption, error) {
	opts := make([]client.RequestOption, 0, len(headers))
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, usageErrorf("header %q must be Name: value", h)
		}
		opts = append(opts, client.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value)))
	}

	return opts, nil
}
