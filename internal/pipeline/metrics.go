// Package pipeline implements pipeline metrics.
package pipeline

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/tsgate/internal/metrics"
)

// Metrics contains per-pipeline counters. The atomics back the control
// plane snapshot; the Prometheus children back the exporter.
type Metrics struct {
	PipelineID string

	// Packet counters (using atomic for thread-safety)
	Received  atomic.Uint64
	Processed atomic.Uint64
	Emptied   atomic.Uint64
	Sent      atomic.Uint64
	Errors    atomic.Uint64

	received prometheus.Counter
	emptied  prometheus.Counter
	sent     prometheus.Counter
	dropped  prometheus.Counter
	latency  prometheus.Observer
}

// NewMetrics creates a new metrics instance.
func NewMetrics(pipelineID string) *Metrics {
	return &Metrics{
		PipelineID: pipelineID,
		received:   metrics.PipelinePacketsTotal.WithLabelValues(pipelineID, "received"),
		emptied:    metrics.PipelinePacketsTotal.WithLabelValues(pipelineID, "emptied"),
		sent:       metrics.PipelinePacketsTotal.WithLabelValues(pipelineID, "sent"),
		dropped:    metrics.PipelinePacketsTotal.WithLabelValues(pipelineID, "dropped"),
		latency:    metrics.PipelineLatencySeconds.WithLabelValues(pipelineID),
	}
}

func (m *Metrics) onReceived() {
	m.Received.Add(1)
	m.received.Inc()
}

func (m *Metrics) onEmptied() {
	m.Emptied.Add(1)
	m.emptied.Inc()
}

func (m *Metrics) onSent(seconds float64) {
	m.Sent.Add(1)
	m.sent.Inc()
	m.latency.Observe(seconds)
}

func (m *Metrics) onError() {
	m.Errors.Add(1)
	m.dropped.Inc()
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Received:  m.Received.Load(),
		Processed: m.Processed.Load(),
		Emptied:   m.Emptied.Load(),
		Sent:      m.Sent.Load(),
		Errors:    m.Errors.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Received  uint64 `json:"received"`
	Processed uint64 `json:"processed"`
	Emptied   uint64 `json:"emptied"`
	Sent      uint64 `json:"sent"`
	Errors    uint64 `json:"errors"`
}
