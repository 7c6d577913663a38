// Package looper runs closures one at a time on a single goroutine that is
// locked to its OS thread. Anything that must only be touched from one
// thread (a camera handle, its callbacks, its buffers) lives on a Looper and
// is reached through Post or Call.
package looper

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

var ErrClosed = errors.New("looper closed")

type Looper struct {
	name string

	mu    sync.Mutex
	cond  *sync.Cond
	queue []func()
	quit  bool

	done chan struct{}
}

// New starts a looper goroutine. It runs until Quit.
func New(name string) *Looper {
	l := &Looper{
		name: name,
		done: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.loop()

	return l
}

func (l *Looper) Name() string {
	return l.name
}

// Post queues task behind every task accepted before it. It never blocks.
func (l *Looper) Post(task func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quit {
		return ErrClosed
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()

	return nil
}

// PostDelayed posts task after d. The returned func cancels it if it has not
// been queued yet; a task already queued still runs, so tasks should check
// whatever state made them obsolete.
func (l *Looper) PostDelayed(task func(), d time.Duration) (cancel func()) {
	t := time.AfterFunc(d, func() {
		_ = l.Post(task)
	})

	return func() { t.Stop() }
}

// Quit stops accepting tasks. Tasks accepted before Quit still run, so no
// caller waiting on a Call is left hanging. Quit does not wait; use Done.
func (l *Looper) Quit() {
	l.mu.Lock()
	l.quit = true
	l.cond.Signal()
	l.mu.Unlock()
}

func (l *Looper) Done() <-chan struct{} {
	return l.done
}

func (l *Looper) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quit
}

func (l *Looper) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.quit {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}
