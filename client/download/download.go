package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Handle streams body to destPath. size is the announced Content-Length,
// or -1 when unknown. Nothing appears at destPath unless the copy and
// every check succeed.
func Handle(ctx context.Context, body io.Reader, size int64, destPath string, logger *slog.Logger, optFns ...Option) error {
	if logger == nil {
		logger = slog.Default()
	}

	opts := options{perm: defaultPerm}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return fmt.Errorf("applying option: %w", err)
		}
	}

	if opts.skipExisting {
		if _, err := os.Stat(destPath); err == nil {
			logger.Info("skipping existing file", "path", destPath)
			return nil
		}
	}

	st, err := stage(destPath, logger)
	if err != nil {
		return err
	}
	defer st.discard()

	w := io.Writer(st.f)
	for _, d := range opts.digests {
		w = io.MultiWriter(w, d)
	}

	reporters := opts.reporters
	if opts.logProgress {
		reporters = append(reporters, logProgress(logger))
	}
	var m *meter
	if len(reporters) > 0 {
		m = newMeter(w, destPath, size, func(p Progress) {
			for _, report := range reporters {
				report(p)
			}
		})
		w = m
	}

	n, err := io.Copy(w, ctxReader{ctx: ctx, Reader: body})
	if err != nil {
		// A cancelled request surfaces as a closed connection rather
		// than as the context error.
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrDownloadCancelled, context.Cause(ctx))
		}

		return fmt.Errorf("copying body: %w", err)
	}
	if m != nil {
		m.finish()
	}

	if size >= 0 && n != size {
		return &Error{
			Path:   destPath,
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", size, n),
		}
	}

	for _, d := range opts.digests {
		if err := d.verify(destPath); err != nil {
			return err
		}
	}

	return st.commit(opts.perm)
}

// staged is a hidden temp file beside dest.
type staged struct {
	f         *os.File
	dest      string
	logger    *slog.Logger
	committed bool
}

func stage(dest string, logger *slog.Logger) (*staged, error) {
	f, err := os.CreateTemp(filepath.Dir(dest), ".courier-dl-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}

	return &staged{f: f, dest: dest, logger: logger}, nil
}

// commit moves the temp file into place with mode perm.
func (s *staged) commit(perm os.FileMode) error {
	if err := s.f.Chmod(perm); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(s.f.Name(), s.dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	s.committed = true

	return nil
}

// discard removes the temp file unless it was committed.
func (s *staged) discard() {
	if s.committed {
		return
	}

	if err := s.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.logger.Error("closing temp file", "error", err)
	}
	if err := os.Remove(s.f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("removing temp file", "error", err)
	}
}
