// Package courier exposes the client builder.
package courier

import (
	"github.com/adamwoolhether/courier/client"
	"github.com/adamwoolhether/courier/client/pool"
)

// NewClient instantiates a new *Client with the provided options.
// Without options it never follows redirects, prefers HTTP/2 and runs
// async requests on the process-wide pool.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}

// NewPool returns a worker pool for [client.WithPool] running at most
// size requests at once.
func NewPool(size int) *pool.Pool {
	return pool.New(size)
}
