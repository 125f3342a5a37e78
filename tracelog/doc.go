// Package tracelog records the traffic of sessions to a CBOR file and reads it back.
//
// A FileTracer is passed to session.WithTracer; every line written or read, every status
// byte and every failed operation becomes one Event. Events are encoded with integer keys
// and appended to the file as a CBOR sequence, so a trace survives a crash up to the last
// complete event.
//
//	tr, err := tracelog.NewFileTracer("bench.trace")
//	s, err := session.New(session.WithDialer(d), session.WithTracer(tr))
//
// Reader iterates over a trace file, optionally restricted by a Filter.
package tracelog
