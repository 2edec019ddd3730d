// Package timing provides the clocks that drive debounce timers: a virtual
// time SerialEngine for deterministic runs and a WallClock for interactive
// use. Both satisfy Scheduler.
package timing

import "time"

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	// Now returns the time elapsed since the origin of the clock.
	Now() time.Duration
}

// Timer is a pending callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from running. It returns true if the call
	// stops the timer, false if the timer has already fired or been stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	TimeTeller

	// AfterFunc calls f once d has elapsed. A non-positive d means "as soon
	// as possible", never synchronously inside AfterFunc.
	AfterFunc(d time.Duration, f func()) Timer
}

// WallClock is a Scheduler backed by the runtime timers. Callbacks run on
// their own goroutine.
type WallClock struct {
	origin time.Time
}

// NewWallClock creates a WallClock whose origin is the current instant.
func NewWallClock() *WallClock {
	return &WallClock{origin: time.Now()}
}

// Now returns the time elapsed since the clock was created.
func (c *WallClock) Now() time.Duration {
	return time.Since(c.origin)
}

// AfterFunc wraps time.AfterFunc.
func (c *WallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
