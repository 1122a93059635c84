package download

import (
	"io"
	"log/slog"
	"time"
)

// progressEvery is the minimum gap between two progress reports.
const progressEvery = time.Second

// Progress is a snapshot of a running download. Total is -1 when the
// server sent no Content-Length.
type Progress struct {
	Path    string
	Written int64
	Total   int64
	Elapsed time.Duration
	Done    bool
}

// Percent is the share written so far, or -1 when Total is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}

	return float64(p.Written) / float64(p.Total) * 100
}

// Rate is the mean throughput in bytes per second.
func (p Progress) Rate() float64 {
	if p.Elapsed <= 0 {
		return 0
	}

	return float64(p.Written) / p.Elapsed.Seconds()
}

// meter counts the bytes passing through it and reports at most once per
// progressEvery, plus once at the end.
type meter struct {
	w      io.Writer
	report func(Progress)
	snap   Progress
	start  time.Time
	last   time.Time
}

func newMeter(w io.Writer, path string, total int64, report func(Progress)) *meter {
	now := time.Now()

	return &meter{
		w:      w,
		report: report,
		snap:   Progress{Path: path, Total: total},
		start:  now,
		last:   now,
	}
}

func (m *meter) Write(p []byte) (int, error) {
	n, err := m.w.Write(p)
	m.snap.Written += int64(n)

	if now := time.Now(); now.Sub(m.last) >= progressEvery {
		m.last = now
		m.emit(false)
	}

	return n, err
}

func (m *meter) finish() {
	m.emit(true)
}

func (m *meter) emit(done bool) {
	m.snap.Elapsed = time.Since(m.start)
	m.snap.Done = done
	m.report(m.snap)
}

// logProgress reports p through logger.
func logProgress(logger *slog.Logger) func(Progress) {
	return func(p Progress) {
		msg := "downloading"
		if p.Done {
			msg = "download complete"
		}

		attrs := []any{
			"path", p.Path,
			"written", p.Written,
			"total", p.Total,
			"elapsed", p.Elapsed.Round(time.Millisecond),
			"mbps", float64(int(p.Rate()/(1<<20)*100)) / 100,
		}
		if pct := p.Percent(); pct >= 0 {
			attrs = append(attrs, "percent", float64(int(pct*10))/10)
		}

		logger.Info(msg, attrs...)
	}
}
