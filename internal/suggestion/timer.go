// Package suggestion withholds the backend's suggested reply until the user
// has been quiet for a while.
//
// [Timer] is polled: a periodic driver calls [Timer.Tick] and gets the text
// back exactly once after the reveal delay. Arming again, or cancelling,
// supersedes any pending reveal, so a stale suggestion cannot surface after a
// newer turn has started.
package suggestion

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period before a suggestion is revealed.
const DefaultDelay = 20 * time.Second

// Option configures a [Timer].
type Option func(*Timer)

// WithDelay sets the reveal delay. Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.delay = d
		}
	}
}

// WithClock overrides the time source used by [Timer.Arm].
func WithClock(now func() time.Time) Option {
	return func(t *Timer) {
		t.now = now
	}
}

// Timer is safe for concurrent use. Arm, Cancel and Tick are serialized, so a
// Tick racing an Arm either sees the old arm or the new one, never a mix.
type Timer struct {
	now func() time.Time

	mu       sync.Mutex
	delay    time.Duration
	pending  string
	armed    bool
	armedAt  time.Time
	revealed bool
}

// New returns an unarmed [Timer].
func New(opts ...Option) *Timer {
	t := &Timer{now: time.Now, delay: DefaultDelay}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Arm withholds text and restarts the quiet period. An empty text clears any
// pending reveal.
func (t *Timer) Arm(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revealed = false
	if text == "" {
		t.armed = false
		t.pending = ""
		return
	}
	t.pending = text
	t.armed = true
	t.armedAt = t.now()
}

// Cancel clears any pending reveal.
func (t *Timer) Cancel() {
	t.Arm("")
}

// Tick returns the pending text if the quiet period has elapsed at now and
// the text has not been returned yet. Later ticks return "", false until the
// next Arm.
func (t *Timer) Tick(now time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed || t.revealed || now.Sub(t.armedAt) < t.delay {
		return "", false
	}
	t.revealed = true
	return t.pending, true
}

// Pending reports the withheld text and whether a reveal is still due.
func (t *Timer) Pending() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed || t.revealed {
		return "", false
	}
	return t.pending, true
}

// SetDelay changes the reveal delay. It applies to the current arm as well.
func (t *Timer) SetDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = d
}

// Delay returns the reveal delay.
func (t *Timer) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}
