package sim

import (
	"sync"
	"time"
)

// Clock is a virtual hal.Clock.  Time only moves when someone sleeps.
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) {
	c.Advance(d)
}

func (c *Clock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
