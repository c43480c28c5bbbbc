// Package metrics provides Prometheus collectors for a faultfs mount.
//
// All collectors live on a private registry owned by a Metrics value, so
// several mounts (or tests) in one process never collide.
package metrics

import (
	"strings"
	"time"

	"faultfs/internal/fs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "faultfs"

// Metrics records request outcomes, injected faults and open handles.
// It satisfies fs.FaultRecorder and the transport's request observer.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	injectedFaults  *prometheus.CounterVec
	writeBytes      *prometheus.CounterVec
	openHandles     prometheus.Gauge
}

var _ fs.FaultRecorder = (*Metrics)(nil)

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of filesystem requests by operation and result",
			},
			[]string{"op", "result"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of filesystem requests in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1,      // 1s
					10,     // 10s
				},
			},
			[]string{"op"},
		),
		injectedFaults: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "injected_faults_total",
				Help:      "Writes truncated by the fault injector, by the half that was kept",
			},
			[]string{"half"},
		),
		writeBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "write_bytes_total",
				Help:      "Bytes requested by writers versus bytes that reached the target",
			},
			[]string{"kind"},
		),
		openHandles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_handles",
				Help:      "Current number of open file handles",
			},
		),
	}
}

// Registry returns the registry holding every faultfs collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest counts one served request and its duration.
func (m *Metrics) ObserveRequest(op string, err error, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	m.requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetOpenHandles updates the open handle gauge.
func (m *Metrics) SetOpenHandles(n int) {
	m.openHandles.Set(float64(n))
}

// RecordFault counts an injected fault and the bytes it dropped.
func (m *Metrics) RecordFault(f fs.Fault) {
	m.injectedFaults.WithLabelValues(f.Half.String()).Inc()
	m.writeBytes.WithLabelValues("requested").Add(float64(f.Requested))
	m.writeBytes.WithLabelValues("persisted").Add(float64(f.Persisted))
}

// resultLabel is "ok" for success and the error kind otherwise, e.g.
// "not_found".
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ReplaceAll(fs.KindOf(err).String(), " ", "_")
}
