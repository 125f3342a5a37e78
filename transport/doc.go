// Package transport implements session transports for raw TCP sockets and serial ports.
//
// Neither link carries a hardware serial poll, so ReadStatusByte sends *STB? and parses the
// reply. That requires the output queue to be empty; a session reads every reply before
// polling. Neither link delivers service requests either: use polling with these transports.
//
// The Dialer picks a transport from the resource name:
//
//	d := transport.NewDialer(transport.WithSerialSettings(transport.DefaultSerialSettings()))
//	s, _ := session.New(session.WithDialer(d))
//	_ = s.Open(ctx, "TCPIP0::192.168.1.5::5025::SOCKET", 0)
package transport
