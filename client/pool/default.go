package pool

import (
	"context"
	"sync"
)

var (
	defaultMu   sync.Mutex
	defaultPool *Pool
)

// Default returns the process-wide pool, creating it on first use.
func Default() *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultPool == nil || defaultPool.IsShutdown() {
		defaultPool = New(0)
	}

	return defaultPool
}

// SetDefault replaces the process-wide pool and returns the previous one,
// which may be nil. The previous pool is not shut down.
func SetDefault(p *Pool) *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	prev := defaultPool
	defaultPool = p

	return prev
}

// ShutdownDefault shuts the process-wide pool down. The next call to
// Default creates a fresh one.
func ShutdownDefault(ctx context.Context) error {
	defaultMu.Lock()
	p := defaultPool
	defaultPool = nil
	defaultMu.Unlock()

	if p == nil {
		return nil
	}

	return p.Shutdown(ctx)
}
