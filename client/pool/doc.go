// Package pool runs tasks on a bounded set of workers and hands back a
// [Future] for each.
//
// # Submitting Work
//
// [Submit] never blocks the caller. Each task waits for a worker slot in
// its own goroutine and the returned Future completes with the task's
// result:
//
//	p := pool.New(4)
//	f := pool.Submit(ctx, p, func(ctx context.Context) (string, error) {
//		return fetch(ctx)
//	})
//	v, err := f.Get(ctx)
//
// # Chaining
//
// [Then] and [Map] derive a Future from another one. Cancelling a derived
// Future cancels its source as well.
//
// # Default Pool
//
// [Default] lazily creates a process-wide pool sized to GOMAXPROCS.
// Tests can substitute it with [SetDefault] and release it with
// [ShutdownDefault].
package pool
