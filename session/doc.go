// Package session owns one message-based instrument connection and provides synchronous
// IEEE-488.2/SCPI line I/O on top of it.
//
// A Session moves through the states Closed, Opening, Open and Closing. While open, at most
// one transport operation (write, read, status-byte read) is in flight; the I/O sub-state is
// exposed through IOState for observability.
//
// The transport itself is supplied by a Dialer, so the same session logic drives raw TCP sockets,
// serial lines and the in-memory simulator.
//
// Example:
//
//	s, err := session.New(session.WithDialer(transport.NewDialer()))
//	if err != nil {
//	    return err
//	}
//	if err := s.Open(ctx, "TCPIP0::192.168.0.10::5025::SOCKET", 2*time.Second); err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	idn, err := s.Query("*IDN?")
//
// Long operations can bracket a temporary timeout; the previous timeout is restored on every
// exit path, panics included:
//
//	err = s.WithTimeout(30*time.Second, func() error {
//	    _, err := s.Query("*OPC?")
//	    return err
//	})
package session
