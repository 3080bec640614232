package timers

import (
	"fmt"
	"math"
	"time"
)

// Clock returns the current time in seconds.
type Clock interface {
	Now() (float64, error)
}

// ClockFunc adapts an ordinary function to the Clock interface.
type ClockFunc func() (float64, error)

// Now calls f.
func (f ClockFunc) Now() (float64, error) {
	return f()
}

// monotonicClock reads Go's monotonic clock and offsets it by the Unix wall
// time captured at construction, so readings never go backwards within a
// process while staying roughly comparable across processes.
type monotonicClock struct {
	base   time.Time
	offset float64
}

func newMonotonicClock() *monotonicClock {
	now := time.Now()
	return &monotonicClock{
		base:   now,
		offset: float64(now.UnixNano()) / float64(time.Second),
	}
}

func (c *monotonicClock) Now() (float64, error) {
	return c.offset + time.Since(c.base).Seconds(), nil
}

var defaultClock Clock = newMonotonicClock()

// DefaultClock returns the clock used when no WithClock option is given.
func DefaultClock() Clock {
	return defaultClock
}

func (t *Timers) now() (float64, error) {
	clock := t.clock
	if clock == nil {
		clock = defaultClock
	}
	v, err := clock.Now()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrClockUnavailable, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: clock returned %v", ErrClockUnavailable, v)
	}
	return v, nil
}
