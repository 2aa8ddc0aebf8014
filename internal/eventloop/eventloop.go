// Package eventloop implements the single serializing goroutine that
// the engine uses in place of per-object locking. Every mutation of
// MenuModel, ActionGroup, or WindowBinding state is posted to the loop
// and runs strictly in submission order, so D-Bus signal handlers and
// async call completions never race each other.
package eventloop

import "sync"

// Loop is a FIFO work queue drained by a single goroutine.
type Loop struct {
	jobs chan func()

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a Loop with the given job buffer size. A buffer of 0 is
// valid; it just means Post blocks until the loop goroutine is ready
// to accept the next job.
func New(buffer int) *Loop {
	l := &Loop{
		jobs: make(chan func(), buffer),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	for job := range l.jobs {
		job()
	}
	close(l.done)
}

// Post enqueues fn to run on the loop goroutine. It returns
// immediately; fn runs asynchronously. Posting after Close panics, the
// same as sending on a closed channel, by design: a live component
// must never outlive the loop it depends on.
func (l *Loop) Post(fn func()) {
	l.jobs <- fn
}

// PostWait enqueues fn and blocks until it has run. Useful in tests
// and for the occasional synchronous teardown path.
func (l *Loop) PostWait(fn func()) {
	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	<-done
}

// Close stops accepting new jobs once the currently queued ones have
// drained, and blocks until the loop goroutine exits.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.jobs)
	})
	<-l.done
}
