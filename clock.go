package gsat

import "time"

// Clock is the timer service used to measure command timeouts. Millis may
// wrap around.
type Clock interface {
	Millis() uint32
	Delay(ms uint32)
}

type sysClock struct {
	start time.Time
}

// SystemClock returns a Clock based on the monotonic time of the time
// package.
func SystemClock() Clock {
	return &sysClock{time.Now()}
}

func (c *sysClock) Millis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

func (c *sysClock) Delay(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}
