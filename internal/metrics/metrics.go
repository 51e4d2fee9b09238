// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelinePacketsTotal counts packets by pipeline stage
	// (stage: received / processed / emptied / sent / dropped)
	PipelinePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsgate_pipeline_packets_total",
			Help: "Total number of packets handled by pipeline stage",
		},
		[]string{"pipeline", "stage"},
	)

	// PipelineLatencySeconds measures per-packet processing latency
	PipelineLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tsgate_pipeline_latency_seconds",
			Help:    "Latency of processing one packet through processors and output in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
		[]string{"pipeline"},
	)

	// InjectorDatagramsTotal counts inbound injection datagrams by result
	// (result: accepted / malformed / overflow)
	InjectorDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsgate_injector_datagrams_total",
			Help: "Total number of datagrams received by the injector listener",
		},
		[]string{"listener", "result"},
	)

	// InjectorQueueDepth tracks packets waiting for a stuffing slot
	InjectorQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tsgate_injector_queue_depth",
			Help: "Number of packets queued for injection",
		},
		[]string{"listener"},
	)

	// SubstitutionsTotal counts stuffing slots by outcome (result: injected / empty)
	SubstitutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsgate_substitutions_total",
			Help: "Total number of stuffing slots seen by the substitution filter",
		},
		[]string{"listener", "result"},
	)

	// SupervisorSendsTotal counts supervised sends by result (result: ok / failed)
	SupervisorSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsgate_supervisor_sends_total",
			Help: "Total number of packets sent through the reconnect supervisor",
		},
		[]string{"session", "result"},
	)

	// SupervisorReconnectsTotal counts session reopen attempts by result (result: ok / failed)
	SupervisorReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsgate_supervisor_reconnects_total",
			Help: "Total number of session reopen attempts",
		},
		[]string{"session", "result"},
	)

	// SessionState tracks the supervisor session state
	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tsgate_session_state",
			Help: "Current session state (0=disconnected, 1=connected, 2=terminal)",
		},
		[]string{"session"},
	)
)

// SessionStateValue represents session state as a numeric value for Prometheus gauge
const (
	SessionStateDisconnected = 0
	SessionStateConnected    = 1
	SessionStateTerminal     = 2
)
