package session

import (
	"sync"
	"time"
)

// TimeoutHolder is anything with a settable communication timeout.
type TimeoutHolder interface {
	Timeout() time.Duration
	SetTimeout(d time.Duration) error
}

// TimeoutStack is a LIFO stack of timeout overrides.
//
// Store pushes the current timeout of the holder and installs a new one; Restore pops and
// re-installs the previous value. Calls must be strictly paired; use Bracket to guarantee the
// pairing on every exit path.
type TimeoutStack struct {
	mu     sync.Mutex
	holder TimeoutHolder
	prev   []time.Duration
}

// NewTimeoutStack creates an empty stack for holder.
func NewTimeoutStack(holder TimeoutHolder) *TimeoutStack {
	return &TimeoutStack{holder: holder}
}

// Store pushes the current timeout and installs d.
// Nothing is pushed when d is rejected by the holder.
func (ts *TimeoutStack) Store(d time.Duration) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	current := ts.holder.Timeout()
	if err := ts.holder.SetTimeout(d); err != nil {
		return err
	}
	ts.prev = append(ts.prev, current)

	return nil
}

// Restore pops the most recent stored timeout and re-installs it.
// It returns ErrTimeoutStackEmpty, and changes nothing, when the stack is empty.
func (ts *TimeoutStack) Restore() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	n := len(ts.prev)
	if n == 0 {
		return ErrTimeoutStackEmpty
	}
	prev := ts.prev[n-1]
	ts.prev = ts.prev[:n-1]

	return ts.holder.SetTimeout(prev)
}

// Depth returns the number of stored timeouts.
func (ts *TimeoutStack) Depth() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	return len(ts.prev)
}

// Bracket runs fn with timeout d installed and restores the previous timeout when fn returns
// or panics. A restore failure is returned only when fn itself succeeded.
func (ts *TimeoutStack) Bracket(d time.Duration, fn func() error) (err error) {
	if err := ts.Store(d); err != nil {
		return err
	}
	defer func() {
		if rerr := ts.Restore(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn()
}
