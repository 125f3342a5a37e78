package monitor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/session"
	"github.com/arloliu/go-ivi/simulator"
)

func TestMain(m *testing.M) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.SetLevel(logger.ParseLevel(logLevel))

	os.Exit(m.Run())
}

type fakeCoordinator struct{ processed, coalesced uint64 }

func (f fakeCoordinator) Processed() uint64 { return f.processed }
func (f fakeCoordinator) Coalesced() uint64 { return f.coalesced }

func openSession(t *testing.T) *session.Session {
	t.Helper()

	inst := simulator.New()
	s, err := session.New(
		session.WithRegistry(session.NewRegistry()),
		session.WithDialer(session.DialerFunc(func(context.Context, string, time.Duration) (session.Transport, error) {
			return inst, inst.Connect()
		})),
	)
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background(), "GPIB0::3::INSTR", time.Second))
	t.Cleanup(func() { _ = s.Close() })

	return s
}

// sample returns the value and labels of the first sample of the named family.
func sample(t *testing.T, reg *prometheus.Registry, name string) (float64, map[string]string) {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name || len(f.GetMetric()) == 0 {
			continue
		}
		m := f.GetMetric()[0]
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}

		return m.GetCounter().GetValue() + m.GetGauge().GetValue(), labels
	}
	require.FailNow(t, "metric not gathered", name)

	return 0, nil
}

func TestCollector(t *testing.T) {
	require := require.New(t)

	s := openSession(t)
	_, err := s.Query("*IDN?")
	require.NoError(err)
	_, err = s.ReadStatusByte()
	require.NoError(err)

	c := NewCollector("")
	c.Add(s)
	c.Add(s)
	require.Equal(1, c.Len())
	c.AddCoordinator(s.ResourceName(), fakeCoordinator{processed: 7, coalesced: 2})

	require.Equal(1, testutil.CollectAndCount(c, "ivi_session_writes_total"))
	require.Equal(1, testutil.CollectAndCount(c, "ivi_srq_coalesced_total"))
	require.NoError(testutil.CollectAndCompare(c, strings.NewReader(`
# HELP ivi_srq_events_total Status events published by the coordinator.
# TYPE ivi_srq_events_total counter
ivi_srq_events_total{resource="GPIB0::3::INSTR"} 7
`), "ivi_srq_events_total"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	writes, labels := sample(t, reg, "ivi_session_writes_total")
	require.Equal(1.0, writes)
	require.Equal(s.ID().String(), labels["session_id"])
	require.Equal("GPIB0::3::INSTR", labels["resource"])

	statusReads, _ := sample(t, reg, "ivi_session_status_reads_total")
	require.Equal(1.0, statusReads)
	open, _ := sample(t, reg, "ivi_session_open")
	require.Equal(1.0, open)
	lastQuery, _ := sample(t, reg, "ivi_session_last_query_seconds")
	require.Positive(lastQuery)

	require.NoError(s.Close())
	open, _ = sample(t, reg, "ivi_session_open")
	require.Equal(0.0, open)

	c.Remove(s.ID())
	c.RemoveCoordinator("GPIB0::3::INSTR")
	require.Equal(0, testutil.CollectAndCount(c))
}

func TestHandler(t *testing.T) {
	s := openSession(t)
	_, err := s.Query("*IDN?")
	require.NoError(t, err)

	c := NewCollector("bench")
	c.Add(s)

	srv := httptest.NewServer(Handler(NewRegistry(c)))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "bench_session_reads_total")
	require.Contains(t, string(body), "go_goroutines")
}
