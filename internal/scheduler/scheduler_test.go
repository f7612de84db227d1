package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFires(t *testing.T) {
	s := NewTimer(nil)
	done := make(chan struct{})
	s.Schedule(time.Now().Add(10*time.Millisecond), func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never fired")
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestTimerPastFiresImmediately(t *testing.T) {
	s := NewTimer(nil)
	done := make(chan struct{})
	s.Schedule(time.Now().Add(-time.Hour), func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("past task never fired")
	}
}

func TestTimerShutdownCancelsPending(t *testing.T) {
	s := NewTimer(nil)
	var fired atomic.Int32
	s.Schedule(time.Now().Add(time.Hour), func() { fired.Add(1) })
	if s.Pending() != 1 {
		t.Fatalf("expected 1 pending task, got %d", s.Pending())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if s.Pending() != 0 {
		t.Fatal("pending tasks survived shutdown")
	}

	// scheduling after shutdown is a no-op
	s.Schedule(time.Now(), func() { fired.Add(1) })
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("cancelled task fired")
	}
}

func TestTimerShutdownWaitsForRunning(t *testing.T) {
	s := NewTimer(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	s.Schedule(time.Now(), func() {
		close(started)
		<-release
		finished.Store(true)
	})
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !finished.Load() {
		t.Fatal("Shutdown returned before the running task finished")
	}
}

func TestTimerRecoversPanic(t *testing.T) {
	s := NewTimer(nil)
	s.Schedule(time.Now(), func() { panic("boom") })
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestManualAdvance(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewManual(start)
	var order []int
	m.Schedule(start.Add(20*time.Second), func() { order = append(order, 2) })
	m.Schedule(start.Add(10*time.Second), func() {
		order = append(order, 1)
		// chained task due within the same advance
		m.Schedule(start.Add(15*time.Second), func() { order = append(order, 3) })
	})

	m.Advance(5 * time.Second)
	if len(order) != 0 {
		t.Fatalf("nothing should fire yet, got %v", order)
	}

	m.Advance(15 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 3 || order[2] != 2 {
		t.Fatalf("unexpected firing order %v", order)
	}
	if !m.Now().Equal(start.Add(20 * time.Second)) {
		t.Fatalf("clock at %v", m.Now())
	}
}

func TestManualRunAll(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewManual(start)
	n := 0
	m.Schedule(start.Add(time.Hour), func() { n++ })
	m.Schedule(start.Add(time.Minute), func() { n++ })
	m.RunAll()
	if n != 2 || m.Len() != 0 {
		t.Fatalf("RunAll fired %d, left %d", n, m.Len())
	}
	if !m.Now().Equal(start.Add(time.Hour)) {
		t.Fatalf("clock not moved to last task: %v", m.Now())
	}
}
