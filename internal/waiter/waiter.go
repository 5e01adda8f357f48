// Package waiter holds callers blocked on a value that another goroutine
// will eventually produce, such as a token or a connection id.
package waiter

import (
	"context"
	"sync"
	"time"

	errs "github.com/alexjbarnes/chat-sync/internal/errors"
)

// Completion receives the awaited value or the reason it never arrived.
type Completion[T any] func(T, error)

type entry[T any] struct {
	fn    Completion[T]
	timer *time.Timer
}

// Queue is a set of pending completions. Every completion added is
// invoked exactly once: by Complete, by Cancel, or by its own timeout,
// whichever happens first. Completions run outside the queue's lock.
type Queue[T any] struct {
	mu      sync.Mutex
	next    uint64
	waiters map[uint64]*entry[T]
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{waiters: make(map[uint64]*entry[T])}
}

// Add registers fn. A non-positive timeout waits until Complete or Cancel.
func (q *Queue[T]) Add(timeout time.Duration, fn Completion[T]) {
	q.mu.Lock()
	id := q.next
	q.next++

	e := &entry[T]{fn: fn}
	q.waiters[id] = e

	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() {
			if w := q.take(id); w != nil {
				var zero T
				w.fn(zero, errs.ErrWaiterTimeout)
			}
		})
	}
	q.mu.Unlock()
}

func (q *Queue[T]) take(id uint64) *entry[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.waiters[id]
	if !ok {
		return nil
	}

	delete(q.waiters, id)

	return e
}

// drain removes every pending entry and stops their timers.
func (q *Queue[T]) drain() []*entry[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*entry[T], 0, len(q.waiters))
	for id, e := range q.waiters {
		if e.timer != nil {
			e.timer.Stop()
		}

		out = append(out, e)
		delete(q.waiters, id)
	}

	return out
}

// Complete resolves every pending completion with v and err.
func (q *Queue[T]) Complete(v T, err error) {
	for _, e := range q.drain() {
		e.fn(v, err)
	}
}

// Cancel resolves every pending completion with err and the zero value.
func (q *Queue[T]) Cancel(err error) {
	var zero T
	q.Complete(zero, err)
}

// Len returns the number of pending completions.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.waiters)
}

// Await adapts a callback-style provide function to a blocking call that
// also honours ctx. The provide function must invoke its completion
// exactly once.
func Await[T any](ctx context.Context, provide func(Completion[T])) (T, error) {
	type result struct {
		v   T
		err error
	}

	ch := make(chan result, 1)
	provide(func(v T, err error) {
		ch <- result{v: v, err: err}
	})

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
