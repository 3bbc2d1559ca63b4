// Package clock lets long-lived components take time as a dependency.
// Production code uses Real(); tests use Fake() and move time forward
// with Advance.
package clock

import "time"

type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine (real) or synchronously
	// during Advance (fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the call. It returns false if f already ran or the
// timer was stopped before.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers ticks on C. C has capacity 1; ticks are dropped when
// the reader falls behind.
type Ticker struct {
	C    <-chan time.Time
	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }
