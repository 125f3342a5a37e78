package session

import (
	"sync/atomic"
	"time"
)

// Metrics contains atomic counters of one Session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// OpenCount indicates the number of successful opens.
	OpenCount atomic.Uint64
	// WriteCount indicates the number of lines written.
	WriteCount atomic.Uint64
	// ReadCount indicates the number of lines read.
	ReadCount atomic.Uint64
	// BytesWritten indicates the number of bytes written, termination included.
	BytesWritten atomic.Uint64
	// BytesRead indicates the number of bytes read, termination included.
	BytesRead atomic.Uint64

	// StatusReadCount indicates the number of successful status byte reads.
	StatusReadCount atomic.Uint64
	// StatusRetryCount indicates the number of status byte read retries.
	StatusRetryCount atomic.Uint64
	// ClearCount indicates the number of device clears.
	ClearCount atomic.Uint64

	// TimeoutCount indicates the number of read or write timeouts.
	TimeoutCount atomic.Uint64
	// TransportErrCount indicates the number of transport failures other than timeouts.
	TransportErrCount atomic.Uint64

	// LastQueryNanos is the duration of the last completed query.
	LastQueryNanos atomic.Int64
}

func (m *Metrics) incOpenCount() {
	m.OpenCount.Add(1)
}

func (m *Metrics) addWrite(n int) {
	m.WriteCount.Add(1)
	m.BytesWritten.Add(uint64(n)) //nolint:gosec
}

func (m *Metrics) addRead(n int) {
	m.ReadCount.Add(1)
	m.BytesRead.Add(uint64(n)) //nolint:gosec
}

func (m *Metrics) incStatusReadCount() {
	m.StatusReadCount.Add(1)
}

func (m *Metrics) incStatusRetryCount() {
	m.StatusRetryCount.Add(1)
}

func (m *Metrics) incClearCount() {
	m.ClearCount.Add(1)
}

func (m *Metrics) incErr(timeout bool) {
	if timeout {
		m.TimeoutCount.Add(1)
		return
	}
	m.TransportErrCount.Add(1)
}

func (m *Metrics) setLastQuery(d time.Duration) {
	m.LastQueryNanos.Store(int64(d))
}
