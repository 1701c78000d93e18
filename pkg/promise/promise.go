// Package promise provides a one-shot promise/future pair used to hand a
// deferred result from the reactor goroutine to a waiting caller.
package promise

import "sync"

// Promise is the write side. It is settled exactly once; the first call to
// Complete or Fail wins and every later settle attempt is a no-op.
type Promise[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// New returns an unsettled promise.
func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Complete settles the promise with a value.
func (p *Promise[T]) Complete(v T) {
	p.once.Do(func() {
		p.val = v
		close(p.done)
	})
}

// Fail settles the promise with an error.
func (p *Promise[T]) Fail(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Future returns the read side.
func (p *Promise[T]) Future() *Future[T] { return &Future[T]{p: p} }

// Completed returns an already-settled future carrying v.
func Completed[T any](v T) *Future[T] {
	p := New[T]()
	p.Complete(v)
	return p.Future()
}

// Failed returns an already-settled future carrying err.
func Failed[T any](err error) *Future[T] {
	p := New[T]()
	p.Fail(err)
	return p.Future()
}

// Future is the read side of a Promise.
type Future[T any] struct {
	p *Promise[T]
}

// Wait blocks until the promise is settled. There is deliberately no
// timeout variant: once connected, callers of the transport block until the
// peer answers or the connection dies.
func (f *Future[T]) Wait() (T, error) {
	<-f.p.done
	return f.p.val, f.p.err
}

// Done returns a channel closed when the promise settles, for select-based
// consumers.
func (f *Future[T]) Done() <-chan struct{} { return f.p.done }

// TryGet reports whether the future is settled, returning the result when it
// is. It never blocks.
func (f *Future[T]) TryGet() (v T, settled bool, err error) {
	select {
	case <-f.p.done:
		return f.p.val, true, f.p.err
	default:
		return v, false, nil
	}
}
