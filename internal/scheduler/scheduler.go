// Package scheduler runs callbacks at a point in time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Scheduler accepts callbacks to run at or after a given time. Callbacks
// are responsible for their own locking; the scheduler gives no ordering
// guarantee between callbacks due at the same instant.
type Scheduler interface {
	Schedule(at time.Time, fn func())
}

// Timer is the production Scheduler, backed by one time.AfterFunc per task.
type Timer struct {
	logger *log.Logger

	mu     sync.Mutex
	timers map[uint64]*time.Timer
	nextID uint64
	closed bool

	// wg counts tasks that are scheduled or running
	wg sync.WaitGroup
}

var _ Scheduler = (*Timer)(nil)

// NewTimer returns a ready Timer.
func NewTimer(logger *log.Logger) *Timer {
	if logger == nil {
		logger = log.Default()
	}
	return &Timer{
		logger: logger.WithPrefix("scheduler"),
		timers: map[uint64]*time.Timer{},
	}
}

// Schedule runs fn once at. A time in the past fires immediately. Tasks
// scheduled after Shutdown are dropped.
func (t *Timer) Schedule(at time.Time, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.logger.Warn("dropping task scheduled after shutdown", "at", at)
		return
	}

	id := t.nextID
	t.nextID++
	t.wg.Add(1)
	t.timers[id] = time.AfterFunc(time.Until(at), func() {
		defer t.wg.Done()

		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()

		t.run(fn)
	})
}

// Pending returns the number of tasks waiting to fire.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Shutdown cancels every task that has not fired yet and waits for running
// ones to return, or for ctx to end.
func (t *Timer) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	for id, tm := range t.timers {
		// Stop reports false when the callback already started; that
		// callback releases its own wg slot
		if tm.Stop() {
			t.wg.Done()
		}
		delete(t.timers, id)
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Timer) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("scheduled task panicked", "panic", r)
		}
	}()
	fn()
}
