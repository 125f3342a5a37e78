package errqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/session"
	"github.com/arloliu/go-ivi/simulator"
)

type scriptedQuerier struct {
	replies []string
	err     error
	queries []string
	writes  []string
}

func (q *scriptedQuerier) Query(cmd string) (string, error) {
	q.queries = append(q.queries, cmd)
	if q.err != nil {
		return "", q.err
	}
	if len(q.replies) == 0 {
		return `0,"No error"`, nil
	}
	r := q.replies[0]
	q.replies = q.replies[1:]

	return r, nil
}

func (q *scriptedQuerier) WriteLine(cmd string) error {
	q.writes = append(q.writes, cmd)
	return nil
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		reply   string
		want    Record
		wantErr bool
	}{
		{`-113,"Undefined header"`, Record{Code: -113, Message: "Undefined header", Raw: `-113,"Undefined header"`}, false},
		{`+0,"No error"` + "\n", Record{Code: 0, Message: "No error", Raw: `+0,"No error"`}, false},
		{`-222,"Data out of range;VOLT 1e9, max 200"`, Record{Code: -222, Message: "Data out of range;VOLT 1e9, max 200", Raw: `-222,"Data out of range;VOLT 1e9, max 200"`}, false},
		{`5, "quoted ""value"""`, Record{Code: 5, Message: `quoted "value"`, Raw: `5, "quoted ""value"""`}, false},
		{`0`, Record{Code: 0, Raw: "0"}, false},
		{`No error`, Record{}, true},
		{``, Record{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, err := ParseRecord(tt.reply)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedRecord)
				require.ErrorIs(t, err, ivierr.ErrProtocolViolation)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	require.True(t, Record{Code: 0}.IsNoError())
	require.False(t, Record{Code: -100}.IsNoError())
	require.Equal(t, "-100, Command error", Record{Code: -100, Message: "Command error"}.String())
	require.Equal(t, "7", Record{Code: 7}.String())
}

func TestReader_DrainAndAccumulate(t *testing.T) {
	require := require.New(t)

	q := &scriptedQuerier{replies: []string{`-113,"Undefined header"`, `-222,"Data out of range"`, `0,"No error"`}}
	r, err := NewReader(q, WithPreamble("Instrument reported:"))
	require.NoError(err)
	require.False(r.HasError())
	require.NoError(r.Err())

	got, err := r.ReadDeviceErrors()
	require.NoError(err)
	require.Len(got, 2)
	require.Equal([]string{"SYST:ERR?", "SYST:ERR?", "SYST:ERR?"}, q.queries)

	require.True(r.HasError())
	last, ok := r.LastError()
	require.True(ok)
	require.Equal(-222, last.Code)
	require.Equal("Instrument reported:\n-113, Undefined header\n-222, Data out of range", r.CompoundMessage())

	// a second drain accumulates
	q.replies = []string{`-350,"Queue overflow"`}
	got, err = r.ReadDeviceErrors()
	require.NoError(err)
	require.Len(got, 1)
	require.Len(r.Records(), 3)

	derr := r.Err()
	require.ErrorIs(derr, ivierr.ErrDevice)
	var agg *DeviceErrors
	require.ErrorAs(derr, &agg)
	require.Len(agg.Records, 3)
	require.Equal(r.CompoundMessage(), derr.Error())

	r.ClearErrorReport()
	require.False(r.HasError())
	require.Empty(r.CompoundMessage())
	_, ok = r.LastError()
	require.False(ok)
	require.Empty(q.writes)

	require.NoError(r.ClearDeviceQueue())
	require.Equal([]string{"*CLS"}, q.writes)
}

func TestReader_DrainLimit(t *testing.T) {
	require := require.New(t)

	replies := make([]string, 10)
	for i := range replies {
		replies[i] = `-100,"Command error"`
	}
	q := &scriptedQuerier{replies: replies}
	r, err := NewReader(q, WithMaxIterations(3))
	require.NoError(err)

	got, err := r.ReadDeviceErrors()
	require.ErrorIs(err, ErrDrainLimit)
	require.ErrorIs(err, ivierr.ErrDevice)
	require.Len(got, 3)
	require.Len(q.queries, 3)
}

func TestReader_CustomSentinelAndFailures(t *testing.T) {
	require := require.New(t)

	q := &scriptedQuerier{replies: []string{`-1,"none"`}}
	r, err := NewReader(q, WithQuery(":SYST:ERR:NEXT?"), WithNoErrorCode(-1), WithClearCommand("STAT:QUE:CLE"))
	require.NoError(err)

	got, err := r.ReadDeviceErrors()
	require.NoError(err)
	require.Empty(got)
	require.Equal([]string{":SYST:ERR:NEXT?"}, q.queries)
	require.NoError(r.ClearDeviceQueue())
	require.Equal([]string{"STAT:QUE:CLE"}, q.writes)

	q.err = session.ErrReadTimeout
	_, err = r.ReadDeviceErrors()
	require.ErrorIs(err, ivierr.ErrTimeout)

	q.err = nil
	q.replies = []string{"garbage"}
	_, err = r.ReadDeviceErrors()
	require.ErrorIs(err, ErrMalformedRecord)
}

func TestNewReader_Options(t *testing.T) {
	q := &scriptedQuerier{}

	for _, opt := range []Option{WithQuery(" "), WithMaxIterations(0), WithMaxIterations(MaxIterations + 1), WithClearCommand("")} {
		_, err := NewReader(q, opt)
		require.ErrorIs(t, err, ivierr.ErrConfiguration)
	}
}

func TestReader_WithSession(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	s, err := session.New(
		session.WithRegistry(session.NewRegistry()),
		session.WithDialer(session.DialerFunc(func(context.Context, string, time.Duration) (session.Transport, error) {
			return inst, inst.Connect()
		})),
	)
	require.NoError(err)
	require.NoError(s.Open(context.Background(), "GPIB0::15::INSTR", time.Second))
	defer s.Close()

	require.NoError(s.WriteLine("FOO"))
	inst.PushError(-410, "Query INTERRUPTED")

	r, err := NewReader(s)
	require.NoError(err)

	got, err := r.ReadDeviceErrors()
	require.NoError(err)
	require.Equal([]Record{
		{Code: -113, Message: "Undefined header", Raw: `-113,"Undefined header"`},
		{Code: -410, Message: "Query INTERRUPTED", Raw: `-410,"Query INTERRUPTED"`},
	}, got)
	require.True(errors.Is(r.Err(), ivierr.ErrDevice))
}
