package clock

import (
	"sync"
	"time"
)

// Clock abstracts the current time so services can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a Clock backed by time.Now in UTC.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a Clock that only moves when told to.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

func (c *Fixed) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Fixed) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *Fixed) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
