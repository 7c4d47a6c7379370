package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GopherMetrics provides observability for the Gopher adapter.
//
// The kind label on request metrics is the response the server chose:
// "menu", "text", "binary" or "not_found". Connection metrics follow the
// adapter's accept loop.
//
// Example usage:
//
//	// With metrics enabled
//	m := metrics.NewGopherMetrics()
//	adapter := gopher.New(config, m)
//
//	// Without metrics (no-op)
//	adapter := gopher.New(config, nil)
type GopherMetrics interface {
	// RecordRequest records one served selector: response kind, time from
	// accept to last byte written, bytes sent and whether writing failed.
	RecordRequest(kind string, duration time.Duration, bytes int64, err error)

	// RecordDroppedMapLines counts gophermap lines dropped while building a
	// menu.
	RecordDroppedMapLines(count int)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed increments the counter of connections
	// closed by the shutdown timeout.
	RecordConnectionForceClosed()

	// RecordConnectionRejected counts connections turned away before a
	// selector was read. reason is e.g. "rate_limited".
	RecordConnectionRejected(reason string)
}

// gopherMetrics is the Prometheus implementation of GopherMetrics.
type gopherMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	bytesSent              *prometheus.CounterVec
	droppedMapLines        prometheus.Counter
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	connectionsRejected    *prometheus.CounterVec
}

// NewGopherMetrics creates a Prometheus-backed GopherMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewGopherMetrics() GopherMetrics {
	if !IsEnabled() {
		return NewNoopGopherMetrics()
	}

	return newGopherMetrics(GetRegistry())
}

func newGopherMetrics(reg prometheus.Registerer) *gopherMetrics {
	return &gopherMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gopherd_requests_total",
				Help: "Total number of Gopher requests by response kind and status",
			},
			[]string{"kind", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gopherd_request_duration_seconds",
				Help: "Duration of Gopher requests in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.5,   // 500ms
					1.0,   // 1s
					5.0,   // 5s
					30.0,  // 30s
				},
			},
			[]string{"kind"},
		),
		bytesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gopherd_bytes_sent_total",
				Help: "Total bytes sent to Gopher clients by response kind",
			},
			[]string{"kind"},
		),
		droppedMapLines: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gopherd_gophermap_dropped_lines_total",
				Help: "Total number of malformed gophermap lines dropped",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gopherd_active_connections",
				Help: "Current number of active Gopher connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gopherd_connections_accepted_total",
				Help: "Total number of Gopher connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gopherd_connections_closed_total",
				Help: "Total number of Gopher connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gopherd_connections_force_closed_total",
				Help: "Total number of Gopher connections force-closed during shutdown",
			},
		),
		connectionsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gopherd_connections_rejected_total",
				Help: "Total number of Gopher connections rejected before serving",
			},
			[]string{"reason"},
		),
	}
}

func (m *gopherMetrics) RecordRequest(kind string, duration time.Duration, bytes int64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.requestsTotal.WithLabelValues(kind, status).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if bytes > 0 {
		m.bytesSent.WithLabelValues(kind).Add(float64(bytes))
	}
}

func (m *gopherMetrics) RecordDroppedMapLines(count int) {
	if count > 0 {
		m.droppedMapLines.Add(float64(count))
	}
}

func (m *gopherMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *gopherMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *gopherMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *gopherMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *gopherMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

// NewNoopGopherMetrics returns a GopherMetrics that discards everything.
func NewNoopGopherMetrics() GopherMetrics {
	return noopGopherMetrics{}
}

type noopGopherMetrics struct{}

func (noopGopherMetrics) RecordRequest(string, time.Duration, int64, error) {}
func (noopGopherMetrics) RecordDroppedMapLines(int)                         {}
func (noopGopherMetrics) SetActiveConnections(int32)                        {}
func (noopGopherMetrics) RecordConnectionAccepted()                         {}
func (noopGopherMetrics) RecordConnectionClosed()                           {}
func (noopGopherMetrics) RecordConnectionForceClosed()                      {}
func (noopGopherMetrics) RecordConnectionRejected(string)                   {}
