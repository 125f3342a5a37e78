package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ivi/ivierr"
)

type fakeHolder struct {
	timeout time.Duration
	reject  time.Duration
}

func (h *fakeHolder) Timeout() time.Duration { return h.timeout }

func (h *fakeHolder) SetTimeout(d time.Duration) error {
	if d == h.reject {
		return ErrInvalidTimeout
	}
	h.timeout = d

	return nil
}

func TestTimeoutStack_NestedStoreRestore(t *testing.T) {
	for _, depth := range []int{1, 2, 5, 32} {
		t.Run(fmt.Sprintf("depth_%d", depth), func(t *testing.T) {
			require := require.New(t)

			h := &fakeHolder{timeout: 2 * time.Second}
			ts := NewTimeoutStack(h)

			for i := 1; i <= depth; i++ {
				require.NoError(ts.Store(time.Duration(i) * time.Millisecond))
				require.Equal(time.Duration(i)*time.Millisecond, h.timeout)
			}
			require.Equal(depth, ts.Depth())

			for i := depth; i >= 1; i-- {
				require.Equal(time.Duration(i)*time.Millisecond, h.timeout)
				require.NoError(ts.Restore())
			}
			require.Equal(2*time.Second, h.timeout)
			require.Equal(0, ts.Depth())
		})
	}
}

func TestTimeoutStack_UnmatchedRestore(t *testing.T) {
	require := require.New(t)

	h := &fakeHolder{timeout: time.Second}
	ts := NewTimeoutStack(h)

	err := ts.Restore()
	require.ErrorIs(err, ErrTimeoutStackEmpty)
	require.ErrorIs(err, ivierr.ErrProtocolViolation)
	require.Equal(time.Second, h.timeout)

	// the failure is deterministic
	require.ErrorIs(ts.Restore(), ErrTimeoutStackEmpty)
}

func TestTimeoutStack_RejectedStore(t *testing.T) {
	require := require.New(t)

	h := &fakeHolder{timeout: time.Second, reject: 5 * time.Second}
	ts := NewTimeoutStack(h)

	require.ErrorIs(ts.Store(5*time.Second), ErrInvalidTimeout)
	require.Equal(0, ts.Depth())
	require.Equal(time.Second, h.timeout)

	called := false
	err := ts.Bracket(5*time.Second, func() error {
		called = true
		return nil
	})
	require.ErrorIs(err, ErrInvalidTimeout)
	require.False(called)
}

func TestTimeoutStack_BracketRestoresOnEveryExit(t *testing.T) {
	require := require.New(t)

	h := &fakeHolder{timeout: time.Second}
	ts := NewTimeoutStack(h)

	errBoom := errors.New("boom")
	err := ts.Bracket(10*time.Second, func() error {
		require.Equal(10*time.Second, h.timeout)
		return errBoom
	})
	require.ErrorIs(err, errBoom)
	require.Equal(time.Second, h.timeout)

	// nested brackets with a panic in the innermost one
	var bracket func(level int) error
	bracket = func(level int) error {
		return ts.Bracket(time.Duration(level)*time.Minute, func() error {
			if level == 4 {
				panic("instrument went away")
			}
			return bracket(level + 1)
		})
	}

	require.PanicsWithValue("instrument went away", func() { _ = bracket(1) })
	require.Equal(time.Second, h.timeout)
	require.Equal(0, ts.Depth())
}
