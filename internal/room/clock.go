package room

import (
	"sync"
	"time"
)

// Clock is a room's logical time in milliseconds. It starts at the wall
// clock and then moves in whole seconds, so peers that agree on a starting
// point stay in step regardless of local drift.
type Clock struct {
	mu  sync.Mutex
	now int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewClock starts a clock at the current wall-clock time.
func NewClock() *Clock {
	c := newClock(time.Now().UnixMilli())
	go c.run(time.Second)
	return c
}

func newClock(start int64) *Clock {
	return &Clock{now: start, stop: make(chan struct{})}
}

func (c *Clock) run(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.advance()
		case <-c.stop:
			return
		}
	}
}

func (c *Clock) advance() {
	c.mu.Lock()
	c.now += 1000
	c.mu.Unlock()
}

// Now returns the logical time.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set overwrites the logical time. Ticking continues from the new value.
func (c *Clock) Set(ts int64) {
	c.mu.Lock()
	c.now = ts
	c.mu.Unlock()
}

// Stop halts ticking. The clock keeps its last value.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
