// Package monitor exports session and service request metrics to Prometheus.
package monitor

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-ivi/session"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "ivi"

// Session is the part of a session read by the collector.
type Session interface {
	ID() uuid.UUID
	ResourceName() string
	State() session.State
	Metrics() *session.Metrics
}

// Coordinator is the part of a service request coordinator read by the collector.
type Coordinator interface {
	Processed() uint64
	Coalesced() uint64
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(m *session.Metrics) float64
}

// Collector is a prometheus.Collector over a changing set of sessions and coordinators.
// Values are read from the session counters at scrape time.
type Collector struct {
	sessions     *xsync.MapOf[uuid.UUID, Session]
	coordinators *xsync.MapOf[string, Coordinator]

	counters  []counterDesc
	open      *prometheus.Desc
	lastQuery *prometheus.Desc
	processed *prometheus.Desc
	coalesced *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector. An empty namespace selects DefaultNamespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	labels := []string{"session_id", "resource"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "session", name), help, labels, nil)
	}
	srqDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "srq", name), help, []string{"resource"}, nil)
	}
	load := func(get func(m *session.Metrics) uint64) func(m *session.Metrics) float64 {
		return func(m *session.Metrics) float64 { return float64(get(m)) }
	}

	return &Collector{
		sessions:     xsync.NewMapOf[uuid.UUID, Session](),
		coordinators: xsync.NewMapOf[string, Coordinator](),
		counters: []counterDesc{
			{desc("opens_total", "Successful opens."), load(func(m *session.Metrics) uint64 { return m.OpenCount.Load() })},
			{desc("writes_total", "Lines written."), load(func(m *session.Metrics) uint64 { return m.WriteCount.Load() })},
			{desc("reads_total", "Lines read."), load(func(m *session.Metrics) uint64 { return m.ReadCount.Load() })},
			{desc("written_bytes_total", "Bytes written, termination included."), load(func(m *session.Metrics) uint64 { return m.BytesWritten.Load() })},
			{desc("read_bytes_total", "Bytes read, termination included."), load(func(m *session.Metrics) uint64 { return m.BytesRead.Load() })},
			{desc("status_reads_total", "Successful status byte reads."), load(func(m *session.Metrics) uint64 { return m.StatusReadCount.Load() })},
			{desc("status_retries_total", "Status byte read retries."), load(func(m *session.Metrics) uint64 { return m.StatusRetryCount.Load() })},
			{desc("clears_total", "Device clears."), load(func(m *session.Metrics) uint64 { return m.ClearCount.Load() })},
			{desc("timeouts_total", "Read and write timeouts."), load(func(m *session.Metrics) uint64 { return m.TimeoutCount.Load() })},
			{desc("transport_errors_total", "Transport failures other than timeouts."), load(func(m *session.Metrics) uint64 { return m.TransportErrCount.Load() })},
		},
		open:      desc("open", "1 when the session is open."),
		lastQuery: desc("last_query_seconds", "Duration of the last completed query."),
		processed: srqDesc("events_total", "Status events published by the coordinator."),
		coalesced: srqDesc("coalesced_total", "Service requests merged into a pending one."),
	}
}

// Add starts collecting s. Adding the same session twice has no effect.
func (c *Collector) Add(s Session) {
	c.sessions.Store(s.ID(), s)
}

// Remove stops collecting the session with the given id.
func (c *Collector) Remove(id uuid.UUID) {
	c.sessions.Delete(id)
}

// AddCoordinator starts collecting the coordinator of resource.
func (c *Collector) AddCoordinator(resource string, co Coordinator) {
	c.coordinators.Store(resource, co)
}

// RemoveCoordinator stops collecting the coordinator of resource.
func (c *Collector) RemoveCoordinator(resource string) {
	c.coordinators.Delete(resource)
}

// Len returns the number of collected sessions.
func (c *Collector) Len() int {
	return c.sessions.Size()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.open
	ch <- c.lastQuery
	ch <- c.processed
	ch <- c.coalesced
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.sessions.Range(func(id uuid.UUID, s Session) bool {
		m := s.Metrics()
		labels := []string{id.String(), s.ResourceName()}

		for _, cd := range c.counters {
			ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, cd.value(m), labels...)
		}

		open := 0.0
		if s.State() == session.OpenState {
			open = 1
		}
		ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, open, labels...)
		ch <- prometheus.MustNewConstMetric(c.lastQuery, prometheus.GaugeValue,
			float64(m.LastQueryNanos.Load())/1e9, labels...)

		return true
	})

	c.coordinators.Range(func(resource string, co Coordinator) bool {
		ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(co.Processed()), resource)
		ch <- prometheus.MustNewConstMetric(c.coalesced, prometheus.CounterValue, float64(co.Coalesced()), resource)

		return true
	})
}

// Handler returns an HTTP handler serving the metrics of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// NewRegistry creates a registry holding c plus the Go runtime and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}
