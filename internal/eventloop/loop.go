// Package eventloop runs callbacks one at a time on a single goroutine, the
// way a UI thread does. Producers on other goroutines hand results back with
// Post.
package eventloop

import (
	"context"
	"sync"
)

// Poster schedules fn to run on the loop goroutine.
type Poster interface {
	Post(fn func()) bool
}

// Loop is an unbounded FIFO of callbacks. Post never blocks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues fn. It returns false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops accepting callbacks. Run returns after the callback in progress.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}

// Run executes callbacks until ctx is done or Close is called. Callbacks
// already queued when the loop stops are dropped.
func (l *Loop) Run(ctx context.Context) error {
	for {
		fn, ok := l.next()
		if ok {
			fn()
			continue
		}
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Inline runs posted callbacks immediately on the caller's goroutine.
// Useful in tests that drive a component synchronously.
type Inline struct{}

func (Inline) Post(fn func()) bool {
	fn()
	return true
}
