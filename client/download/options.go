package download

import (
	"errors"
	"hash"
	"os"
)

const defaultPerm os.FileMode = 0o644

// Option configures [Handle].
type Option func(*options) error

type options struct {
	digests      []*digest
	reporters    []func(Progress)
	logProgress  bool
	skipExisting bool
	perm         os.FileMode
}

// WithChecksum verifies the file against expected, the hex sum produced
// by h. h must be fresh and is owned by the download from then on.
func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		d, err := newDigest("checksum", h, expected)
		if err != nil {
			return err
		}
		opts.digests = append(opts.digests, d)

		return nil
	}
}

// WithDigest verifies the file against an "algorithm:hex" spec such as
// "sha256:e3b0c4...". See [Algorithms] for the accepted names.
func WithDigest(spec string) Option {
	return func(opts *options) error {
		d, err := parseDigest(spec)
		if err != nil {
			return err
		}
		opts.digests = append(opts.digests, d)

		return nil
	}
}

// WithProgress logs progress through the logger given to Handle.
func WithProgress() Option {
	return func(opts *options) error {
		opts.logProgress = true
		return nil
	}
}

// WithProgressFunc calls fn with progress snapshots, at most once a
// second and once when the body ends. fn runs on the downloading
// goroutine.
func WithProgressFunc(fn func(Progress)) Option {
	return func(opts *options) error {
		if fn == nil {
			return errors.New("progress func must not be nil")
		}
		opts.reporters = append(opts.reporters, fn)

		return nil
	}
}

// WithSkipExisting leaves an existing destination untouched. The body is
// not read.
func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}

// WithPerm sets the mode of the finished file, 0644 by default.
func WithPerm(perm os.FileMode) Option {
	return func(opts *options) error {
		if perm&0o400 == 0 {
			return errors.New("file must be readable by its owner")
		}

		opts.perm = perm
		return nil
	}
}
