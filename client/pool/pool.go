package pool

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Pool bounds how many tasks run at once.
type Pool struct {
	wg       sync.WaitGroup
	sem      chan struct{}
	shutdown atomic.Bool
	running  atomic.Int64
	queued   atomic.Int64
}

// New creates a Pool running at most size tasks concurrently. If
// size <= 0 the pool is sized to runtime.GOMAXPROCS(0).
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}

	return &Pool{sem: make(chan struct{}, size)}
}

// Size is the number of worker slots.
func (p *Pool) Size() int { return cap(p.sem) }

// Stats reports the pool's current load.
func (p *Pool) Stats() Stats {
	return Stats{Size: p.Size(), Running: p.running.Load(), Queued: p.queued.Load()}
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown stops new work from starting and waits for submitted tasks to
// finish or ctx to end. Tasks still waiting for a slot complete with
// ErrPoolShutdown.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.shutdown.Store(true)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdown reports whether Shutdown was called.
func (p *Pool) IsShutdown() bool { return p.shutdown.Load() }

// Submit schedules fn on p and returns immediately. The task's context is
// derived from ctx, is cancelled by [Future.Cancel] and ends when fn
// returns unless fn called [Retain].
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	parent := ctx
	ctx, t := startTask(ctx)
	cancel := t.cancel
	f := newFuture[T](parent, cancel)

	if p.shutdown.Load() {
		var zero T
		f.complete(zero, ErrPoolShutdown)
		cancel(ErrPoolShutdown)
		return f
	}

	p.wg.Add(1)
	p.queued.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			p.queued.Add(-1)
			defer func() {
				<-p.sem
			}()
		case <-ctx.Done():
			p.queued.Add(-1)
			var zero T
			f.complete(zero, cause(ctx))
			return
		}

		var zero T
		if p.shutdown.Load() {
			f.complete(zero, ErrPoolShutdown)
			cancel(ErrPoolShutdown)
			return
		}
		if f.isDone() {
			return
		}
		if ctx.Err() != nil {
			f.complete(zero, cause(ctx))
			return
		}

		p.running.Add(1)
		defer p.running.Add(-1)

		v, err := run(ctx, fn)
		t.finish(err)
		f.complete(v, err)
	}()

	return f
}

func run[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()

	return fn(ctx)
}

// cause prefers the cancellation cause over the bare context error.
func cause(ctx context.Context) error {
	if c := context.Cause(ctx); c != nil && !errors.Is(c, ctx.Err()) {
		return c
	}

	return ctx.Err()
}
