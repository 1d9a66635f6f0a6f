package device

import (
	"sync"

	"github.com/cjeanneret/camsrv/internal/debug"
)

// Loop is a single-worker task queue. Tasks run one at a time, in posting
// order, on one goroutine. Post never blocks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewLoop starts the worker goroutine.
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post enqueues fn. It fails with ErrClosed after Close.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
	return nil
}

// Close stops accepting tasks, runs the ones already queued and waits for the
// worker to exit. It must not be called from inside a task.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
	<-l.done
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(fn)
	}
}

// exec keeps the worker alive if a task panics.
func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log := debug.With("device")
			log.Error().Interface("panic", r).Msg("loop task panicked")
		}
	}()
	fn()
}
