package body

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"sync"
)

// ErrConsumed is reported by a LineSeq iterated more than once.
var ErrConsumed = errors.New("line sequence already consumed")

const maxLineSize = 1 << 20

// LineSeq lazily yields the lines of a body. It owns the stream: it is
// released when iteration reaches the end, stops early or Close is called.
// A LineSeq can be iterated once.
type LineSeq struct {
	mu     sync.Mutex
	body   io.ReadCloser
	r      io.Reader
	info   Info
	used   bool
	closed bool
	err    error
}

// Lines returns the body as a lazy sequence of lines without their line
// terminators. A line ends at "\n", "\r" or "\r\n". The caller must iterate or Close the sequence.
func Lines() Handler[*LineSeq] {
	return HandlerFunc[*LineSeq](func(ctx context.Context, info Info, body io.ReadCloser) (*LineSeq, error) {
		r, err := decoded(info.Header, body)
		if err != nil {
			release(info, body)
			return nil, err
		}

		return &LineSeq{body: body, r: r, info: info}, nil
	})
}

// All yields each line in order. Breaking out of the loop releases the
// stream.
func (s *LineSeq) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		s.mu.Lock()
		if s.used || s.closed {
			if s.err == nil {
				s.err = ErrConsumed
			}
			s.mu.Unlock()
			return
		}
		s.used = true
		s.mu.Unlock()

		defer s.Close()

		sc := bufio.NewScanner(s.r)
		sc.Buffer(make([]byte, 0, 4096), maxLineSize)
		sc.Split(scanLines)

		for sc.Scan() {
			if !yield(sc.Text()) {
				return
			}
		}

		if err := sc.Err(); err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}
}

// scanLines is bufio.ScanLines extended to bare carriage returns.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	i := bytes.IndexAny(data, "\r\n")
	switch {
	case i < 0:
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	case data[i] == '\n':
		return i + 1, data[:i], nil
	case i+1 < len(data):
		if data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	case atEOF:
		return i + 1, data[:i], nil
	}

	// A trailing '\r' may be the first half of "\r\n".
	return 0, nil, nil
}

// Collect reads every remaining line.
func (s *LineSeq) Collect() ([]string, error) {
	var out []string
	for line := range s.All() {
		out = append(out, line)
	}

	return out, s.Err()
}

// Err reports the error that ended iteration, if any.
func (s *LineSeq) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Close releases the stream. It is safe to call more than once.
func (s *LineSeq) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	release(s.info, s.body)
	return nil
}
