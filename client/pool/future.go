package pool

import (
	"context"
	"errors"
	"sync"
)

// Future is the pending result of a submitted task. All methods are safe
// for concurrent use.
type Future[T any] struct {
	parent context.Context
	cancel context.CancelCauseFunc

	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any](parent context.Context, cancel context.CancelCauseFunc) *Future[T] {
	return &Future[T]{
		parent: parent,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Completed returns a Future already resolved to v and err.
func Completed[T any](v T, err error) *Future[T] {
	f := newFuture[T](context.Background(), func(error) {})
	f.complete(v, err)

	return f
}

// complete resolves the future; the first call wins.
func (f *Future[T]) complete(v T, err error) bool {
	won := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		won = true
	})

	return won
}

func (f *Future[T]) isDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Get waits for the result or for ctx to end. Ending ctx does not cancel
// the task.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the future completes and returns its result.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Err blocks until the future completes and returns its error.
func (f *Future[T]) Err() error {
	<-f.done
	return f.err
}

// Cancel completes the future with ErrCancelled and cancels the task's
// context, closing any connection it holds. It reports false, doing
// nothing, when the future had already completed.
func (f *Future[T]) Cancel() bool {
	var zero T
	if !f.complete(zero, ErrCancelled) {
		return false
	}

	f.cancel(ErrCancelled)
	return true
}

// Cancelled reports whether the future completed through Cancel.
func (f *Future[T]) Cancelled() bool {
	return f.isDone() && errors.Is(f.err, ErrCancelled)
}

// Then derives a Future that runs fn with the source's value once it
// succeeds. fn's context derives from the context the source was
// submitted with. A failed source fails the derived future with the same error.
// fn runs on its own goroutine, outside any pool slot.
func Then[T, U any](f *Future[T], fn func(ctx context.Context, v T) (U, error)) *Future[U] {
	ctx, t := startTask(f.parent)
	next := newFuture[U](f.parent, func(err error) {
		t.cancel(err)
		f.Cancel()
	})

	go func() {
		select {
		case <-f.done:
		case <-next.done:
			return
		}

		var zero U
		if f.err != nil {
			t.cancel(f.err)
			next.complete(zero, f.err)
			return
		}

		u, err := run(ctx, func(ctx context.Context) (U, error) { return fn(ctx, f.val) })
		t.finish(err)
		next.complete(u, err)
	}()

	return next
}

// Map derives a Future holding fn applied to the source's value.
func Map[T, U any](f *Future[T], fn func(v T) U) *Future[U] {
	return Then(f, func(_ context.Context, v T) (U, error) {
		return fn(v), nil
	})
}

// Join waits for every future and returns their errors joined.
func Join[T any](ctx context.Context, futures ...*Future[T]) error {
	var errs []error
	for _, f := range futures {
		if _, err := f.Get(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
