package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/adamwoolhether/courier/client"
	"github.com/adamwoolhether/courier/client/download"
	"github.com/adamwoolhether/courier/client/pool"
)

type downloadFlags struct {
	dir          string
	workers      int
	sha256       string
	digest       string
	skipExisting bool
	progress     bool
	status       int
}

func (a *app) downloadCmd() *cobra.Command {
	var f downloadFlags

	cmd := &cobra.Command{
		Use:   "download <url>...",
		Short: "Download one or more URLs concurrently",
		Long: `Download one or more URLs concurrently. Each body is streamed to a temp
file in the output directory and renamed once complete.

Examples:
  courier download -o ./images http://127.0.0.1:8080/image/png http://127.0.0.1:8080/image/jpeg
  courier download --sha256 2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae https://example.com/file`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDownload(cmd, args, f)
		},
	}

	cmd.Flags().StringVarP(&f.dir, "output", "o", ".", "Directory the files are written to")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Concurrent downloads, the configured worker count by default")
	cmd.Flags().StringVar(&f.sha256, "sha256", "", "Expected hex SHA-256, only with a single URL")
	cmd.Flags().StringVar(&f.digest, "digest", "", "Expected digest as algorithm:hex ("+strings.Join(download.Algorithms(), ", ")+"), only with a single URL")
	cmd.MarkFlagsMutuallyExclusive("sha256", "digest")
	cmd.Flags().BoolVar(&f.skipExisting, "skip-existing", false, "Leave files that already exist untouched")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "Log download progress")
	cmd.Flags().IntVar(&f.status, "status", http.StatusOK, "Expected final status code")

	return cmd
}

func (a *app) runDownload(cmd *cobra.Command, uris []string, f downloadFlags) error {
	if f.sha256 != "" {
		f.digest = "sha256:" + f.sha256
	}
	if f.digest != "" && len(uris) > 1 {
		return usageErrorf("a digest needs exactly one URL")
	}
	if f.workers < 0 {
		return usageErrorf("--workers must not be negative")
	}

	reqs := make([]*client.Request, len(uris))
	for i, uri := range uris {
		req, err := client.NewRequest(http.MethodGet, uri)
		if err != nil {
			return usageErrorf("%w", err)
		}
		reqs[i] = req
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	workers := f.workers
	if workers == 0 {
		workers = a.cfg.Client.Workers
	}
	if workers == 0 {
		workers = 4
	}
	p := pool.New(workers)

	c, err := a.newClient(client.WithPool(p))
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	names := destNames(reqs)
	futures := make([]*pool.Future[string], len(reqs))

	for i, req := range reqs {
		var opts []client.DownloadOption
		if f.digest != "" {
			opts = append(opts, client.WithDigest(f.digest))
		}
		if f.skipExisting {
			opts = append(opts, client.WithSkipExisting())
		}
		if f.progress {
			opts = append(opts, client.WithProgress())
		}

		futures[i] = c.DownloadAsync(ctx, req, f.status, filepath.Join(f.dir, names[i]), opts...)
	}

	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	var errs []error
	for i, fut := range futures {
		dest, err := fut.Get(ctx)
		if err != nil {
			fmt.Fprintf(a.errOut, "%s %s: %v\n", bad("failed"), uris[i], err)
			errs = append(errs, fmt.Errorf("%s: %w", uris[i], err))
			continue
		}
		fmt.Fprintf(a.out, "%s %s -> %s\n", ok("saved"), uris[i], dest)
	}

	return errors.Join(errs...)
}

// destNames picks a file name per request from the last path segment,
// numbering repeats so concurrent downloads never share a destination.
func destNames(reqs []*client.Request) []string {
	names := make([]string, len(reqs))
	seen := make(map[string]int, len(reqs))

	for i, req := range reqs {
		name := path.Base(req.URL().Path)
		if name == "/" || name == "." || name == "" {
			name = "index"
		}

		seen[name]++
		if n := seen[name]; n > 1 {
			ext := path.Ext(name)
			name = strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n) + ext
		}
		names[i] = name
	}

	return names
}
