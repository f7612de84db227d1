package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by an explicit clock. Nothing fires until
// Advance or RunAll is called, which makes deferred work deterministic in
// tests.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []manualTask
}

type manualTask struct {
	at  time.Time
	seq int
	fn  func()
}

var _ Scheduler = (*Manual)(nil)

// NewManual returns a Manual whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now reads the manual clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(at time.Time, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, manualTask{at: at, seq: m.seq, fn: fn})
	m.seq++
}

// Len returns the number of tasks not yet fired.
func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d and fires every task now due, in
// time order. Tasks scheduled by a firing task run too if they are due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()

	for {
		fn, ok := m.popDue(false)
		if !ok {
			return
		}
		fn()
	}
}

// RunAll fires every task regardless of its time, moving the clock to each
// task's time as it goes.
func (m *Manual) RunAll() {
	for {
		fn, ok := m.popDue(true)
		if !ok {
			return
		}
		fn()
	}
}

// popDue removes and returns the earliest task. Callbacks run without the
// lock held since they usually schedule more work.
func (m *Manual) popDue(force bool) (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tasks) == 0 {
		return nil, false
	}
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].at.Equal(m.tasks[j].at) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].at.Before(m.tasks[j].at)
	})

	next := m.tasks[0]
	if !force && next.at.After(m.now) {
		return nil, false
	}
	m.tasks = m.tasks[1:]
	if next.at.After(m.now) {
		m.now = next.at
	}
	return next.fn, true
}
