package log

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle keeps a rate limiter per key so a warning that repeats for the
// same key (a deleted dm, a channel) is logged a few times and then only
// occasionally. Keys unseen for idleTTL are forgotten.
type Throttle struct {
	mu              sync.Mutex
	limit           rate.Limit
	burst           int
	keys            map[string]*throttleEntry
	idleTTL         time.Duration
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle allows burst events per key at once and one more every
// interval after that.
func NewThrottle(every time.Duration, burst int, cleanupInterval time.Duration) *Throttle {
	if every <= 0 {
		every = time.Minute
	}
	if burst <= 0 {
		burst = 1
	}
	t := &Throttle{
		limit:           rate.Every(every),
		burst:           burst,
		keys:            map[string]*throttleEntry{},
		idleTTL:         10 * every,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go t.cleanupLoop()
	}
	return t
}

func (t *Throttle) cleanupLoop() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep(time.Now())
		case <-t.stopCh:
			return
		}
	}
}

// sweep drops keys idle since before now minus idleTTL.
func (t *Throttle) sweep(now time.Time) {
	cutoff := now.Add(-t.idleTTL)
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range t.keys {
		if v.lastSeen.Before(cutoff) {
			delete(t.keys, k)
		}
	}
}

// Stop ends the cleanup goroutine.
func (t *Throttle) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Allow reports whether an event under key should be logged now.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.keys[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.keys[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Len returns the number of keys currently tracked.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}
