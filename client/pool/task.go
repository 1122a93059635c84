package pool

import (
	"context"
	"sync/atomic"
)

type taskKey struct{}

// task is the context owner of one submitted function.
type task struct {
	cancel   context.CancelCauseFunc
	retained atomic.Bool
}

func startTask(parent context.Context) (context.Context, *task) {
	ctx, cancel := context.WithCancelCause(parent)
	t := &task{cancel: cancel}

	return context.WithValue(ctx, taskKey{}, t), t
}

// finish ends the task context unless a successful task retained it.
func (t *task) finish(err error) {
	if err != nil || !t.retained.Load() {
		t.cancel(err)
	}
}

// Retain keeps the context of the task running on ctx alive after the
// task returns successfully, until release is called. Tasks whose result
// keeps reading through the context, such as a streamed response body,
// retain it. Outside a task Retain returns nil.
func Retain(ctx context.Context) (release func()) {
	t, ok := ctx.Value(taskKey{}).(*task)
	if !ok {
		return nil
	}

	t.retained.Store(true)
	return func() { t.cancel(nil) }
}
