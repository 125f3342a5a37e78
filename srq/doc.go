// Package srq decides when the status byte of a session is read, and turns each read into
// an Event.
//
// Two delivery modes exist and only one may be active at a time:
//
//   - Interrupt: the transport calls back on a hardware service request.
//   - Poll: a timer fires at a fixed interval.
//
// Neither the transport callback nor the timer touches the session. Both only post a request
// to a bounded channel; a single consumer goroutine reads the status byte, decodes it,
// reads the pending reply when a message is available (auto-read), drains the error queue
// when an error is available, and publishes the Event to the handlers. A request that finds
// the channel full is coalesced with the pending one, since that one reads the latest status.
//
// Handlers run on the consumer goroutine and must not call Close.
package srq
