package client

import (
	"hash"
	"os"

	"github.com/adamwoolhether/courier/client/download"
)

type (
	// DownloadOption configures [Client.Download], [Client.DownloadAsync]
	// and the [body.File] handler.
	DownloadOption = download.Option

	// DownloadError carries the destination path and a sentinel cause.
	DownloadError = download.Error

	// DownloadProgress is a snapshot passed to [WithProgressFunc].
	DownloadProgress = download.Progress
)

var (
	ErrContentLengthMismatch = download.ErrContentLengthMismatch
	ErrChecksumMismatch      = download.ErrChecksumMismatch
	ErrDownloadCancelled     = download.ErrDownloadCancelled
)

// WithChecksum verifies the file against the hex sum expected, computed
// with h (for example sha256.New()).
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithDigest verifies the file against an "algorithm:hex" spec.
func WithDigest(spec string) DownloadOption { return download.WithDigest(spec) }

// WithProgress logs download progress through the client logger.
func WithProgress() DownloadOption { return download.WithProgress() }

// WithProgressFunc reports download progress to fn.
func WithProgressFunc(fn func(DownloadProgress)) DownloadOption {
	return download.WithProgressFunc(fn)
}

// WithSkipExisting leaves an existing destination file alone.
func WithSkipExisting() DownloadOption { return download.WithSkipExisting() }

// WithPerm sets the mode of the downloaded file.
func WithPerm(perm os.FileMode) DownloadOption { return download.WithPerm(perm) }
