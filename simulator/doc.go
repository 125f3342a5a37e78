// Package simulator provides an in-memory IEEE-488.2/SCPI instrument.
//
// Instrument implements the session transport and service request interfaces, so a
// session can drive it exactly like hardware:
//
//	inst := simulator.New(simulator.WithIdentity("ACME,SMU-1,0001,1.0"))
//	dialer := session.DialerFunc(func(ctx context.Context, name string, d time.Duration) (session.Transport, error) {
//	    return inst, inst.Connect()
//	})
//
// The instrument keeps an output queue, an error queue, the Standard Event Status Register
// with its enable mask, the Service Request Enable register and three SCPI event registers
// (measurement, operation, questionable). The status byte is computed from these with the
// IEEE-488.2/SCPI-99 layout. A rising service request edge calls the registered callback on
// its own goroutine.
package simulator
