package clock

import (
	"sync"
	"time"
)

// Clock abstracts the source of "now" so the query pipeline can be driven by
// wall-clock time in production and by a pinned instant in tests. Requests
// that omit a timestamp are stamped from the coordinator's clock.
type Clock interface {
	// Now returns the current time in UTC.
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns a Clock backed by the wall clock.
func System() Clock { return systemClock{} }

// FixedClock reports a pinned instant until it is advanced. Safe for
// concurrent use.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

// Fixed returns a clock pinned to the given instant.
func Fixed(at time.Time) *FixedClock {
	return &FixedClock{now: at.UTC()}
}

// Now returns the pinned instant.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the pinned instant.
func (c *FixedClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at.UTC()
}

// Advance moves the pinned instant forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
