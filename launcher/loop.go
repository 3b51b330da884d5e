package launcher

import (
	"sync"
	"time"
)

// Loop is the shared scheduler every Launcher holds a reference to. It
// offers periodic callbacks (process polling) and delayed callbacks
// (interrupt-then-kill, shutdown grace) without requiring callers to manage
// raw timers themselves. Cancelling a callback that already fired is a no-op.
//
// Unlike the engine kernel's dispatch loop (kernel.Kernel), this scheduler
// does not need single-threaded message ordering guarantees, so it is backed
// by ordinary goroutines and stdlib timers rather than a single select loop.
type Loop struct {
	mu        sync.Mutex
	cancelled map[int]bool
	nextID    int
}

// NewLoop constructs an empty Loop.
func NewLoop() *Loop {
	return &Loop{cancelled: make(map[int]bool)}
}

// CancelFunc stops a scheduled callback from firing if it has not already.
type CancelFunc func()

func (l *Loop) register() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.cancelled[id] = false
	return id
}

func (l *Loop) isCancelled(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelled[id]
}

func (l *Loop) cancel(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelled[id] = true
}

func (l *Loop) forget(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cancelled, id)
}

// RunAfter schedules fn to run once after delay. The source never cancels a
// scheduled kill when the process exits cleanly first (see Design Notes,
// "interrupt_then_kill... no cancellation"); RunAfter still exposes a
// CancelFunc because other callers (such as the kernel's shutdown grace)
// have no such restriction.
func (l *Loop) RunAfter(delay time.Duration, fn func()) CancelFunc {
	id := l.register()
	timer := time.AfterFunc(delay, func() {
		defer l.forget(id)
		if l.isCancelled(id) {
			return
		}
		fn()
	})
	return func() {
		l.cancel(id)
		timer.Stop()
	}
}

// RunPeriodic schedules fn to run repeatedly every interval until cancelled.
func (l *Loop) RunPeriodic(interval time.Duration, fn func()) CancelFunc {
	id := l.register()
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer l.forget(id)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if l.isCancelled(id) {
					return
				}
				fn()
			}
		}
	}()
	return func() {
		l.cancel(id)
		ticker.Stop()
		close(done)
	}
}
