package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/courier/internal/httpbin"
	"github.com/adamwoolhether/courier/internal/web/server"
)

type serveFlags struct {
	addr     string
	h2c      bool
	maxDelay time.Duration
}

func (a *app) serveCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local httpbin test server",
		Long: `Run a local httpbin compatible server for trying the client against.
It answers /get, /post, /redirect/{n}, /basic-auth/{user}/{passwd}, /image,
/delay/{seconds}, /stream/{n} and more.

Examples:
  courier serve
  courier serve --addr 127.0.0.1:9090 --h2c`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.addr, "addr", "", "Listen address, the configured one by default")
	cmd.Flags().BoolVar(&f.h2c, "h2c", false, "Also accept cleartext HTTP/2")
	cmd.Flags().DurationVar(&f.maxDelay, "max-delay", 0, "Cap for /delay/{seconds}")

	return cmd
}

func (a *app) runServe(cmd *cobra.Command, f serveFlags) error {
	cfg := a.cfg.Server
	if cmd.Flags().Changed("addr") {
		cfg.Addr = f.addr
	}
	if cmd.Flags().Changed("h2c") {
		cfg.H2C = f.h2c
	}
	if cmd.Flags().Changed("max-delay") {
		cfg.MaxDelay = f.maxDelay
	}

	handler := httpbin.New(
		httpbin.WithLogger(a.logger),
		httpbin.WithMaxDelay(cfg.MaxDelay),
	)

	opts := []server.Option{
		server.WithHost(cfg.Addr),
		server.WithLogger(a.logger),
		server.WithShutdownTimeout(cfg.ShutdownTimeout),
	}
	if cfg.H2C {
		opts = append(opts, server.WithH2C())
	}
	if cfg.TLSCert != "" {
		opts = append(opts, server.WithTLS(cfg.TLSCert, cfg.TLSKey))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(handler, opts...).Run(ctx)
}
