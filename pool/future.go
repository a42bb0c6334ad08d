package pool

import (
	"context"

	"github.com/google/uuid"
)

// Future is the pending outcome of a submitted task. It resolves exactly once.
type Future[O any] struct {
	id    uuid.UUID
	done  chan struct{}
	value O
	err   error
}

func newFuture[O any](id uuid.UUID) *Future[O] {
	return &Future[O]{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID correlates the future with its task in logs.
func (f *Future[O]) ID() uuid.UUID {
	return f.id
}

// Done is closed once the outcome is available.
func (f *Future[O]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the task completes or ctx is done. Giving up on the wait does not cancel
// the task.
func (f *Future[O]) Await(ctx context.Context) (O, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero O
		return zero, ctx.Err()
	}
}

func (f *Future[O]) resolve(value O, err error) {
	f.value = value
	f.err = err
	close(f.done)
}
