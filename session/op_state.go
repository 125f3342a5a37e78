package session

import "sync/atomic"

// State is the lifecycle state of a Session.
type State uint32

const (
	// ClosedState means no transport is held.
	ClosedState State = iota
	// OpeningState means Open is dialing the transport.
	OpeningState
	// OpenState means the transport is connected and I/O is allowed.
	OpenState
	// ClosingState means Close is releasing the transport.
	ClosingState
)

func (s State) String() string {
	switch s {
	case ClosedState:
		return "Closed"
	case OpeningState:
		return "Opening"
	case OpenState:
		return "Open"
	case ClosingState:
		return "Closing"
	default:
		return "Unknown"
	}
}

// atomicState holds a State. Transitions follow Closed→Opening→Open→Closing→Closed;
// a failed or canceled Open returns to Closed.
type atomicState struct {
	state atomic.Uint32
}

func (st *atomicState) Get() State {
	return State(st.state.Load())
}

func (st *atomicState) IsOpen() bool {
	return st.Get() == OpenState
}

func (st *atomicState) IsClosed() bool {
	return st.Get() == ClosedState
}

func (st *atomicState) toOpening() bool {
	return st.state.CompareAndSwap(uint32(ClosedState), uint32(OpeningState))
}

func (st *atomicState) toOpen() bool {
	return st.state.CompareAndSwap(uint32(OpeningState), uint32(OpenState))
}

func (st *atomicState) cancelOpening() bool {
	return st.state.CompareAndSwap(uint32(OpeningState), uint32(ClosingState))
}

func (st *atomicState) set(state State) {
	st.state.Store(uint32(state))
}

func (st *atomicState) toClosing() bool {
	return st.state.CompareAndSwap(uint32(OpenState), uint32(ClosingState))
}

func (st *atomicState) toClosed() bool {
	if st.IsClosed() {
		return true
	}

	return st.state.CompareAndSwap(uint32(ClosingState), uint32(ClosedState))
}

// IOState is the I/O sub-state of an open Session.
type IOState uint32

const (
	IOIdle IOState = iota
	IOWriting
	IOReading
	IOPolling
)

func (s IOState) String() string {
	switch s {
	case IOIdle:
		return "Idle"
	case IOWriting:
		return "Writing"
	case IOReading:
		return "Reading"
	case IOPolling:
		return "Polling"
	default:
		return "Unknown"
	}
}
