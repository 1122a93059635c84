package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/adamwoolhether/courier/client"
	"github.com/adamwoolhether/courier/client/body"
	"github.com/adamwoolhether/courier/client/pool"
)

// Latencies are recorded in microseconds between 1µs and 60s.
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

type benchFlags struct {
	requests    int
	concurrency int
	rate        int
	method      string
	headers     []string
	metrics     bool
}

// benchStats aggregates the outcome of a bench run.
type benchStats struct {
	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
	statuses  map[int]int64

	ok      atomic.Int64
	failed  atomic.Int64
	clamped atomic.Int64
	dropped atomic.Int64
}

func newBenchStats() *benchStats {
	return &benchStats{
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		statuses:  make(map[int]int64),
	}
}

func (s *benchStats) record(status int, elapsed time.Duration, err error) {
	if err != nil {
		s.failed.Add(1)
		return
	}
	s.ok.Add(1)

	us := elapsed.Microseconds()
	if us > maxLatencyUs {
		s.clamped.Add(1)
	}
	us = min(max(us, minLatencyUs), maxLatencyUs)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[status]++
	if err := s.histogram.RecordValue(us); err != nil {
		s.dropped.Add(1)
	}
}

func (s *benchStats) quantile(q float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return time.Duration(s.histogram.ValueAtQuantile(q)) * time.Microsecond
}

func (s *benchStats) write(w io.Writer, elapsed time.Duration) {
	bold := color.New(color.Bold).SprintFunc()
	total := s.ok.Load() + s.failed.Load()

	fmt.Fprintf(w, "%s  %d (ok %d, failed %d)\n", bold("requests"), total, s.ok.Load(), s.failed.Load())
	fmt.Fprintf(w, "%s  %s (%.1f req/s)\n", bold("duration"), elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())

	s.mu.Lock()
	hmin := time.Duration(s.histogram.Min()) * time.Microsecond
	hmax := time.Duration(s.histogram.Max()) * time.Microsecond
	count := s.histogram.TotalCount()
	statuses := maps.Clone(s.statuses)
	s.mu.Unlock()

	if count > 0 {
		fmt.Fprintf(w, "%s   min %s  p50 %s  p95 %s  p99 %s  max %s\n", bold("latency"),
			hmin, s.quantile(50), s.quantile(95), s.quantile(99), hmax)
	}

	if n := s.clamped.Load(); n > 0 {
		limit := time.Duration(maxLatencyUs) * time.Microsecond
		fmt.Fprintf(w, "%s   %d latencies above %s recorded as %s\n", bold("clamped"), n, limit, limit)
	}
	if n := s.dropped.Load(); n > 0 {
		fmt.Fprintf(w, "%s   %d latencies not recorded\n", bold("dropped"), n)
	}

	codes := slices.Sorted(maps.Keys(statuses))
	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = statusColor(code).Sprintf("%d", code) + fmt.Sprintf(": %d", statuses[code])
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "%s    %s\n", bold("status"), strings.Join(parts, "  "))
	}
}

func (a *app) benchCmd() *cobra.Command {
	var f benchFlags

	cmd := &cobra.Command{
		Use:   "bench <url>",
		Short: "Send a request repeatedly and report latency percentiles",
		Long: `Send a request repeatedly from a fixed number of workers and report
latency percentiles and the status code distribution.

Examples:
  courier bench -n 500 -c 16 http://127.0.0.1:8080/get
  courier bench -n 100 --rate 20 --metrics http://127.0.0.1:8080/bytes/1024`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBench(cmd, args[0], f)
		},
	}

	cmd.Flags().IntVarP(&f.requests, "requests", "n", 100, "Total requests to send")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "c", 10, "Requests in flight at once")
	cmd.Flags().IntVar(&f.rate, "rate", 0, "Requests per second cap, 0 for none")
	cmd.Flags().StringVarP(&f.method, "method", "X", http.MethodGet, "Request method")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "Request header as 'Name: value', repeatable")
	cmd.Flags().BoolVar(&f.metrics, "metrics", false, "Print the client's Prometheus metrics afterwards")

	return cmd
}

func (a *app) runBench(cmd *cobra.Command, uri string, f benchFlags) error {
	if f.requests <= 0 || f.concurrency <= 0 {
		return usageErrorf("--requests and --concurrency must be greater than zero")
	}
	if f.rate < 0 {
		return usageErrorf("--rate must not be negative")
	}

	opts, err := requestOptions(f.headers)
	if err != nil {
		return err
	}

	req, err := client.NewRequest(strings.ToUpper(f.method), uri, opts...)
	if err != nil {
		return usageErrorf("%w", err)
	}

	reg := prometheus.NewRegistry()
	p := pool.New(f.concurrency)

	extra := []client.Option{client.WithPool(p), client.WithMetrics(reg)}
	if f.rate > 0 {
		extra = append(extra, client.WithThrottle(f.rate, f.concurrency))
	}

	c, err := a.newClient(extra...)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	stats := newBenchStats()
	futures := make([]*pool.Future[struct{}], f.requests)

	start := time.Now()
	for i := range futures {
		futures[i] = pool.Submit(ctx, p, func(ctx context.Context) (struct{}, error) {
			began := time.Now()
			resp, err := client.Send(ctx, c, req, body.Discarding())

			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			stats.record(status, time.Since(began), err)
			if err != nil {
				a.logger.Debug("bench request failed", "error", err)
			}

			return struct{}{}, nil
		})
	}

	// Tasks never fail; Join only reports a cancelled run.
	if err := pool.Join(ctx, futures...); err != nil {
		return err
	}
	elapsed := time.Since(start)

	stats.write(a.out, elapsed)

	if f.metrics {
		fmt.Fprintln(a.out)
		if err := writeMetrics(a.out, reg); err != nil {
			return err
		}
	}

	if stats.failed.Load() == int64(f.requests) {
		return fmt.Errorf("all %d requests failed", f.requests)
	}

	return nil
}

// writeMetrics dumps reg in the Prometheus text exposition format.
func writeMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding metrics: %w", err)
		}
	}

	return nil
}
