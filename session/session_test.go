package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/session/mocks"
	"github.com/arloliu/go-ivi/simulator"
	"github.com/arloliu/go-ivi/status"
)

const simResource = "TCPIP0::127.0.0.1::5025::SOCKET"

func simDialer(inst *simulator.Instrument) Dialer {
	return DialerFunc(func(_ context.Context, _ string, _ time.Duration) (Transport, error) {
		return inst, inst.Connect()
	})
}

func newSimSession(t *testing.T, inst *simulator.Instrument, opts ...Option) *Session {
	t.Helper()

	opts = append([]Option{WithDialer(simDialer(inst)), WithRegistry(NewRegistry())}, opts...)
	s, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background(), simResource, time.Second))
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestSession_OpenClose(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	reg := NewRegistry()
	s, err := New(WithDialer(simDialer(inst)), WithRegistry(reg))
	require.NoError(err)
	require.Equal(ClosedState, s.State())
	require.NotEqual(uuid.Nil, s.ID())

	_, err = s.Query("*IDN?")
	require.ErrorIs(err, ErrNotOpen)

	require.NoError(s.Open(context.Background(), simResource, 500*time.Millisecond))
	require.Equal(OpenState, s.State())
	require.Equal(IOIdle, s.IOState())
	require.Equal(500*time.Millisecond, s.Timeout())
	require.Equal(simResource, s.ResourceName())
	require.Equal(uint64(1), s.Metrics().OpenCount.Load())

	owner, ok := reg.Owner(simResource)
	require.True(ok)
	require.Same(s, owner)

	require.ErrorIs(s.Open(context.Background(), simResource, time.Second), ErrAlreadyOpen)

	require.NoError(s.Close())
	require.Equal(ClosedState, s.State())
	require.False(inst.Connected())
	require.Equal(0, reg.Len())

	// idempotent
	require.NoError(s.Close())
	require.NoError(s.Close())

	// reopen
	require.NoError(s.Open(context.Background(), simResource, 0))
	require.Equal(OpenState, s.State())
	require.NoError(s.Close())
}

func TestSession_OpenFailureLeavesClosed(t *testing.T) {
	require := require.New(t)

	errRefused := errors.New("connection refused")
	reg := NewRegistry()
	s, err := New(WithRegistry(reg), WithDialer(DialerFunc(func(context.Context, string, time.Duration) (Transport, error) {
		return nil, errRefused
	})))
	require.NoError(err)

	err = s.Open(context.Background(), simResource, time.Second)
	require.ErrorIs(err, errRefused)
	require.ErrorIs(err, ErrOpenFailed)
	require.ErrorIs(err, ivierr.ErrTransport)
	require.Equal(ClosedState, s.State())
	require.Equal(0, reg.Len())

	require.ErrorIs(s.Open(context.Background(), simResource, time.Hour), ErrInvalidTimeout)
}

func TestSession_OpenReleasesTransportOnSetupFailure(t *testing.T) {
	require := require.New(t)

	tr := mocks.NewTransport(t)
	tr.On("SetTimeout", time.Second).Return(errors.New("unsupported"))
	tr.On("Close").Return(nil).Once()

	s, err := New(WithRegistry(NewRegistry()), WithDialer(DialerFunc(func(context.Context, string, time.Duration) (Transport, error) {
		return tr, nil
	})))
	require.NoError(err)

	require.ErrorIs(s.Open(context.Background(), simResource, time.Second), ErrOpenFailed)
	require.Equal(ClosedState, s.State())
}

func TestSession_ResourceBusy(t *testing.T) {
	require := require.New(t)

	reg := NewRegistry()
	first, err := New(WithDialer(simDialer(simulator.New())), WithRegistry(reg))
	require.NoError(err)
	second, err := New(WithDialer(simDialer(simulator.New())), WithRegistry(reg))
	require.NoError(err)

	require.NoError(first.Open(context.Background(), simResource, time.Second))

	// resource names are case-insensitive
	err = second.Open(context.Background(), "tcpip0::127.0.0.1::5025::socket", time.Second)
	require.ErrorIs(err, ErrResourceBusy)
	require.ErrorIs(err, ivierr.ErrTransport)
	require.Equal(ClosedState, second.State())

	require.NoError(first.Close())
	require.NoError(second.Open(context.Background(), simResource, time.Second))
	require.NoError(second.Close())
}

func TestSession_QueryAndHelpers(t *testing.T) {
	require := require.New(t)

	inst := simulator.New(simulator.WithIdentity("ACME, SMU-2450 ,04321,7.1.0"))
	s := newSimSession(t, inst, WithReadAfterWriteDelay(time.Millisecond))

	idn, err := s.Identity()
	require.NoError(err)
	require.Equal(Identity{
		Manufacturer: "ACME",
		Model:        "SMU-2450",
		SerialNumber: "04321",
		Firmware:     "7.1.0",
		Raw:          "ACME, SMU-2450 ,04321,7.1.0",
	}, idn)
	require.Greater(s.Metrics().LastQueryNanos.Load(), int64(0))

	require.NoError(s.ResetKnownState())
	require.NoError(s.ClearExecutionState())
	require.NoError(s.EnableServiceRequest(0x30, status.AllErrors))

	require.NoError(s.WriteLine("NOT:A:COMMAND"))
	esr, err := s.ReadStandardEventStatus()
	require.NoError(err)
	require.True(esr.Has(status.CommandError))

	done, err := s.QueryOperationComplete()
	require.NoError(err)
	require.True(done)

	require.Equal([]string{"*IDN?", "*RST", "*CLS", "*ESE 60", "*SRE 48", "NOT:A:COMMAND", "*ESR?", "*OPC?"}, inst.History())
	require.Equal(uint64(8), s.Metrics().WriteCount.Load())
	require.Equal(uint64(3), s.Metrics().ReadCount.Load())
	require.Greater(s.Elapsed(), time.Duration(0))
}

func TestSession_TerminationRoundTrip(t *testing.T) {
	sequences := [][]byte{
		{'\n'},
		{'\r', '\n'},
		{0x00, 0xFF, '\n'},
		{'E', 'O', 'T', 0x04},
	}

	for _, seq := range sequences {
		t.Run(fmt.Sprintf("len_%d", len(seq)), func(t *testing.T) {
			require := require.New(t)

			inst := simulator.New(simulator.WithTermination(seq))
			s := newSimSession(t, inst)

			require.NoError(s.NewTermination(seq))
			got := s.TerminationCharacters()
			require.Equal(seq, got)
			require.Len(got, len(seq))

			// the returned slice is a copy
			got[0] ^= 0xFF
			require.Equal(seq, s.TerminationCharacters())

			reply, err := s.Query("*IDN?")
			require.NoError(err)
			require.Equal(simulator.DefaultIdentity, reply)
		})
	}

	s, err := New(WithDialer(nopDialer))
	require.NoError(t, err)
	require.ErrorIs(t, s.NewTermination(nil), ErrInvalidTermination)
	require.ErrorIs(t, s.NewTermination(make([]byte, MaxTerminationLength+1)), ErrInvalidTermination)
	require.Equal(t, []byte{'\n'}, s.TerminationCharacters())
}

func TestSession_ReadLineKeepsFollowingLines(t *testing.T) {
	require := require.New(t)

	inst := simulator.New(simulator.WithReadings("1", "2", "3"))
	s := newSimSession(t, inst, WithReadBufferSize(MaxReadBufferSize))

	require.NoError(s.WriteLine("READ?;READ?;READ?"))
	for _, want := range []string{"1", "2", "3"} {
		line, err := s.ReadLine()
		require.NoError(err)
		require.Equal(want, line)
	}
}

func TestSession_ReadTimeout(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	s := newSimSession(t, inst)
	require.NoError(s.SetTimeout(20 * time.Millisecond))

	_, err := s.ReadLine()
	require.ErrorIs(err, ErrReadTimeout)
	require.ErrorIs(err, ivierr.ErrTimeout)
	require.NotErrorIs(err, ivierr.ErrDevice)
	require.Equal(uint64(1), s.Metrics().TimeoutCount.Load())
	require.Equal(IOIdle, s.IOState())
}

func TestSession_WithTimeout(t *testing.T) {
	require := require.New(t)

	inst := simulator.New(simulator.WithResponseDelay(60 * time.Millisecond))
	s := newSimSession(t, inst)
	require.NoError(s.SetTimeout(20 * time.Millisecond))

	_, err := s.Query("*OPC?")
	require.ErrorIs(err, ErrReadTimeout)
	require.NoError(s.ClearActiveState(0))

	err = s.WithTimeout(time.Second, func() error {
		require.Equal(time.Second, s.Timeout())
		reply, err := s.Query("*OPC?")
		require.Equal("1", reply)
		return err
	})
	require.NoError(err)
	require.Equal(20*time.Millisecond, s.Timeout())

	require.NoError(s.StoreTimeout(time.Minute))
	require.NoError(s.StoreTimeout(2 * time.Minute))
	require.Equal(2, s.TimeoutDepth())
	require.NoError(s.RestoreTimeout())
	require.NoError(s.RestoreTimeout())
	require.ErrorIs(s.RestoreTimeout(), ErrTimeoutStackEmpty)
	require.Equal(20*time.Millisecond, s.Timeout())
}

func TestSession_ReadStatusByteRetry(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	s := newSimSession(t, inst, WithStatusReadRetries(2), WithStatusRetryDelay(time.Millisecond))

	inst.FailStatusReads(2)
	stb, err := s.ReadStatusByte()
	require.NoError(err)
	require.Equal(status.StatusByte(0), stb)
	require.Equal(uint64(2), s.Metrics().StatusRetryCount.Load())

	inst.FailStatusReads(3)
	_, err = s.ReadStatusByte()
	require.ErrorIs(err, ErrStatusReadFailed)
	require.ErrorIs(err, simulator.ErrInjected)
	require.ErrorIs(err, ivierr.ErrTransport)
	require.Equal(uint64(4), s.Metrics().StatusRetryCount.Load())
}

func TestSession_ReadStatusByteNoRetry(t *testing.T) {
	require := require.New(t)

	tr := mocks.NewTransport(t)
	tr.On("SetTimeout", mock.Anything).Return(nil)
	tr.On("ReadStatusByte").Return(byte(0), errors.New("bus noise")).Once()
	tr.On("Close").Return(nil)

	s, err := New(
		WithRegistry(NewRegistry()),
		WithStatusReadRetries(0),
		WithDialer(DialerFunc(func(context.Context, string, time.Duration) (Transport, error) { return tr, nil })),
	)
	require.NoError(err)
	require.NoError(s.Open(context.Background(), simResource, time.Second))

	_, err = s.ReadStatusByte()
	require.ErrorIs(err, ErrStatusReadFailed)
	require.NoError(s.Close())
}

func TestSession_TransportFailures(t *testing.T) {
	require := require.New(t)

	tr := mocks.NewTransport(t)
	tr.On("SetTimeout", mock.Anything).Return(nil)
	tr.On("Write", mock.Anything).Return(0, errors.New("broken pipe")).Once()
	tr.On("Write", mock.Anything).Return(4, nil).Once()
	tr.On("Read", mock.Anything).Return(0, errors.New("connection reset")).Once()
	tr.On("Clear").Return(errors.New("clear failed")).Once()
	tr.On("Close").Return(errors.New("already closed")).Once()

	s, err := New(
		WithRegistry(NewRegistry()),
		WithDialer(DialerFunc(func(context.Context, string, time.Duration) (Transport, error) { return tr, nil })),
	)
	require.NoError(err)
	require.NoError(s.Open(context.Background(), simResource, time.Second))

	err = s.WriteLine("*RST")
	require.ErrorIs(err, ErrWriteFailed)
	require.ErrorIs(err, ivierr.ErrTransport)

	_, err = s.Query("*IDN?")
	require.ErrorIs(err, ErrReadFailed)
	require.ErrorIs(err, ivierr.ErrTransport)
	require.NotErrorIs(err, ivierr.ErrTimeout)

	require.ErrorIs(s.ClearActiveState(0), ErrClearFailed)
	require.Equal(uint64(3), s.Metrics().TransportErrCount.Load())

	err = s.Close()
	require.ErrorIs(err, ErrCloseFailed)
	require.Equal(ClosedState, s.State())
	require.NoError(s.Close())
}

func TestSession_CloseCancelsDelay(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	s := newSimSession(t, inst)

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- s.ClearActiveState(MaxSettleDelay)
	}()

	require.Eventually(func() bool { return s.Metrics().ClearCount.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(s.Close())

	require.ErrorIs(<-done, ErrNotOpen)
	require.Less(time.Since(start), time.Second)
}

func TestSession_ClearActiveStateWaitsRefractory(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	s := newSimSession(t, inst)

	for _, refractory := range []time.Duration{20 * time.Millisecond, 80 * time.Millisecond} {
		start := time.Now()
		require.NoError(s.ClearActiveState(refractory))
		require.GreaterOrEqual(time.Since(start), refractory)
	}

	reply, err := s.Query("*OPC?")
	require.NoError(err)
	require.Equal("1", reply)
}

func TestSession_CloseWaitsForOpen(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	dialing := make(chan struct{})
	release := make(chan struct{})
	s, err := New(WithRegistry(NewRegistry()), WithDialer(DialerFunc(func(context.Context, string, time.Duration) (Transport, error) {
		close(dialing)
		<-release
		return inst, inst.Connect()
	})))
	require.NoError(err)

	opened := make(chan error, 1)
	go func() {
		opened <- s.Open(context.Background(), simResource, time.Second)
	}()
	<-dialing

	closed := make(chan error, 1)
	go func() {
		closed <- s.Close()
	}()

	require.Never(func() bool { return len(closed) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	close(release)

	require.NoError(<-closed)
	require.False(inst.Connected())
	require.ErrorIs(<-opened, ErrNotOpen)
	require.Equal(ClosedState, s.State())
}

// termTransport records the sequences forwarded by the session.
type termTransport struct {
	*simulator.Instrument

	got [][]byte
	err error
}

func (tt *termTransport) SetTermination(term []byte) error {
	if tt.err != nil {
		return tt.err
	}
	tt.got = append(tt.got, append([]byte(nil), term...))

	return nil
}

func TestSession_NewTerminationForwarded(t *testing.T) {
	require := require.New(t)

	inst := simulator.New(simulator.WithTermination([]byte("\r\n")))
	tr := &termTransport{Instrument: inst}
	s, err := New(
		WithRegistry(NewRegistry()),
		WithDialer(DialerFunc(func(context.Context, string, time.Duration) (Transport, error) {
			return tr, inst.Connect()
		})),
	)
	require.NoError(err)

	// a closed session only keeps the sequence
	require.NoError(s.NewTermination([]byte("\r\n")))
	require.Empty(tr.got)

	require.NoError(s.Open(context.Background(), simResource, time.Second))
	require.Equal([][]byte{[]byte("\r\n")}, tr.got)

	require.NoError(s.NewTermination([]byte{'\n'}))
	require.NoError(s.NewTermination([]byte("\r\n")))
	require.Equal([][]byte{[]byte("\r\n"), {'\n'}, []byte("\r\n")}, tr.got)

	tr.err = errors.New("unsupported")
	err = s.NewTermination([]byte{'\n'})
	require.ErrorIs(err, ErrSetTerminationFailed)
	require.ErrorIs(err, ivierr.ErrTransport)
	require.Equal([]byte("\r\n"), s.TerminationCharacters())

	reply, err := s.Query("*OPC?")
	require.NoError(err)
	require.Equal("1", reply)
	require.NoError(s.Close())
}

func TestSession_CloseUnblocksRead(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	s := newSimSession(t, inst)
	require.NoError(s.SetTimeout(MaxTimeout))

	done := make(chan error, 1)
	go func() {
		_, err := s.ReadLine()
		done <- err
	}()

	require.Eventually(func() bool { return s.IOState() == IOReading }, time.Second, time.Millisecond)
	require.NoError(s.Close())
	require.ErrorIs(<-done, ErrNotOpen)
}

func TestSession_ApplyStatusByte(t *testing.T) {
	require := require.New(t)

	s, err := New(WithDialer(nopDialer))
	require.NoError(err)

	_, ok := s.LastStatus()
	require.False(ok)

	var mu sync.Mutex
	var published []status.EventFlags
	s.AddStatusHandler(func(flags status.EventFlags) {
		mu.Lock()
		published = append(published, flags)
		mu.Unlock()
	})
	s.AddStatusHandler(nil)

	flags := s.ApplyStatusByte(0x54)
	require.True(flags.MessageAvailable)
	require.True(flags.ErrorAvailable)
	require.True(flags.RequestedService)
	require.False(flags.HasMeasurementEvent)

	last, ok := s.LastStatus()
	require.True(ok)
	require.Equal(flags, last)
	require.Equal([]status.EventFlags{flags}, published)

	// decoding is pure
	for v := 0; v <= 0xFF; v++ {
		require.Equal(s.ApplyStatusByte(status.StatusByte(v)), s.ApplyStatusByte(status.StatusByte(v)))
	}
}

func TestSession_SerializedIO(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	s := newSimSession(t, inst)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			reply, err := s.Query("*IDN?")
			if err == nil && reply != simulator.DefaultIdentity {
				err = fmt.Errorf("interleaved reply %q", reply)
			}
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.ReadStatusByte()
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(err)
	}
}

func TestSession_ServiceRequester(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	s, err := New(WithDialer(simDialer(inst)), WithRegistry(NewRegistry()))
	require.NoError(err)

	_, ok := s.ServiceRequester()
	require.False(ok)

	require.NoError(s.Open(context.Background(), simResource, time.Second))
	sr, ok := s.ServiceRequester()
	require.True(ok)
	require.Same(inst, sr)
	require.NoError(s.Close())
}
