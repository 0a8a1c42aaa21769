package bus

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned by TrySend when the queue has no free slot.
	ErrQueueFull = errors.New("bus: queue full")
	// ErrQueueClosed is returned once the queue has been closed.
	ErrQueueClosed = errors.New("bus: queue closed")
)

// Queue is a bounded FIFO safe for many producers and one consumer.
//
// The underlying channel is never closed, so a producer racing with Close
// cannot panic; closing is signalled through done and receivers drain
// whatever is still buffered before reporting ErrQueueClosed.
type Queue[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// TrySend enqueues v without blocking.
func (q *Queue[T]) TrySend(v T) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- v:
		return nil
	default:
		return ErrQueueFull
	}
}

// Send enqueues v, blocking while the queue is full.
func (q *Queue[T]) Send(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks until an item is available, the queue is closed and drained,
// or ctx is done.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		select {
		case v := <-q.ch:
			return v, nil
		default:
			return zero, ErrQueueClosed
		}
	}
}

// C exposes the receive side for callers that select over several queues.
// C is never closed; watch Done and drain what is still buffered.
func (q *Queue[T]) C() <-chan T { return q.ch }

// Done is closed once Close has been called.
func (q *Queue[T]) Done() <-chan struct{} { return q.done }

// Close stops the queue accepting new items. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }
