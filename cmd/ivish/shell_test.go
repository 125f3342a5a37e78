package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ivi/errqueue"
	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/resource"
	"github.com/arloliu/go-ivi/session"
	"github.com/arloliu/go-ivi/simulator"
	"github.com/arloliu/go-ivi/srq"
)

func TestMain(m *testing.M) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.SetLevel(logger.ParseLevel(logLevel))

	os.Exit(m.Run())
}

func newTestShell(t *testing.T, inst *simulator.Instrument) (*shell, *bytes.Buffer) {
	t.Helper()
	require := require.New(t)

	sess, err := session.New(
		session.WithRegistry(session.NewRegistry()),
		session.WithDialer(session.DialerFunc(func(context.Context, string, time.Duration) (session.Transport, error) {
			return inst, inst.Connect()
		})),
	)
	require.NoError(err)
	require.NoError(sess.Open(context.Background(), simulatedResource, time.Second))
	t.Cleanup(func() { _ = sess.Close() })

	errs, err := errqueue.NewReader(sess)
	require.NoError(err)
	coord, err := srq.New(sess, srq.WithErrorReader(errs))
	require.NoError(err)
	t.Cleanup(func() { _ = coord.Close() })

	list := resource.NewList(filepath.Join(t.TempDir(), "resources.yaml"), logger.GetLogger())

	out := &bytes.Buffer{}

	return &shell{sess: sess, coord: coord, errs: errs, list: list, logger: logger.GetLogger(), out: out}, out
}

func TestShell_Instrument(t *testing.T) {
	require := require.New(t)

	inst := simulator.New(simulator.WithReadings("+4.200000E+00"))
	sh, out := newTestShell(t, inst)

	require.False(sh.exec("*IDN?"))
	require.Equal(simulator.DefaultIdentity+"\n", out.String())

	out.Reset()
	require.False(sh.exec("idn"))
	require.Contains(out.String(), "model: SIM-2450")

	out.Reset()
	require.False(sh.exec("INIT"))
	require.False(sh.exec("read"))
	require.Equal("+4.200000E+00\n", out.String())

	out.Reset()
	require.False(sh.exec("stb"))
	require.Contains(out.String(), "0x00")

	out.Reset()
	require.False(sh.exec("timeout 250ms"))
	require.False(sh.exec("timeout"))
	require.Equal("250ms\n", out.String())

	out.Reset()
	require.False(sh.exec("timeout soon"))
	require.Contains(out.String(), "Error:")

	require.True(sh.exec("quit"))
	require.False(sh.exec("   "))
}

func TestShell_Errors(t *testing.T) {
	require := require.New(t)

	inst := simulator.New()
	sh, out := newTestShell(t, inst)

	require.False(sh.exec("errors"))
	require.Equal("no errors\n", out.String())

	inst.PushError(-222, "Data out of range")
	out.Reset()
	require.False(sh.exec("errors"))
	require.Contains(out.String(), "-222")
	require.True(sh.errs.HasError())

	require.False(sh.exec("errors clear"))
	require.False(sh.errs.HasError())
}

func TestShell_ServiceRequest(t *testing.T) {
	require := require.New(t)

	sh, out := newTestShell(t, simulator.New())

	require.False(sh.exec("srq attach"))
	require.Equal(srq.ModeInterrupt, sh.coord.Mode())

	require.False(sh.exec("srq poll 50ms"))
	require.Contains(out.String(), "Error:")
	require.Equal(srq.ModeInterrupt, sh.coord.Mode())

	out.Reset()
	require.False(sh.exec("srq detach"))
	require.False(sh.exec("srq"))
	require.Equal("mode: none, events: 0, coalesced: 0\n", out.String())
}

func TestShell_Contact(t *testing.T) {
	require := require.New(t)

	sh, out := newTestShell(t, simulator.New(simulator.WithLeadResistance(2, 80)))

	require.False(sh.exec("contact 50"))
	require.Contains(out.String(), "sense high: 2 ohm, sense low: 80 ohm")
	require.Contains(out.String(), "sense-low ok=false")

	out.Reset()
	require.False(sh.exec("contact -1"))
	require.Contains(out.String(), "Error:")
}

func TestShell_ResourceList(t *testing.T) {
	require := require.New(t)

	sh, out := newTestShell(t, simulator.New())

	require.False(sh.exec("add tcpip0::10.0.0.5::5025::socket dmm"))
	require.False(sh.exec("add GPIB0::3::INSTR"))
	require.Empty(out.String())
	require.FileExists(sh.list.Path())

	require.False(sh.exec("list GPIB?*"))
	require.Equal("GPIB0::3::INSTR\n", out.String())

	out.Reset()
	require.False(sh.exec("remove dmm"))
	require.False(sh.exec("list"))
	require.Equal("GPIB0::3::INSTR\n", out.String())
}
