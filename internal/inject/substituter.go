package inject

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/internal/metrics"
)

// Action is the substitution decision for one packet slot.
type Action int

const (
	// ActionKeep forwards the returned packet.
	ActionKeep Action = iota
	// ActionEmpty produces no output for the slot.
	ActionEmpty
)

func (a Action) String() string {
	if a == ActionEmpty {
		return "empty"
	}
	return "keep"
}

// Substituter replaces stuffing packets with queued packets.
// Filter must only be called from the pipeline goroutine.
type Substituter struct {
	queue *Queue
	name  string

	injected atomic.Uint64
	empty    atomic.Uint64

	injectedTotal prometheus.Counter
	emptyTotal    prometheus.Counter
	depth         prometheus.Gauge
}

// NewSubstituter creates a substituter draining q. name labels its metrics.
func NewSubstituter(q *Queue, name string) *Substituter {
	return &Substituter{
		queue:         q,
		name:          name,
		injectedTotal: metrics.SubstitutionsTotal.WithLabelValues(name, "injected"),
		emptyTotal:    metrics.SubstitutionsTotal.WithLabelValues(name, "empty"),
		depth:         metrics.InjectorQueueDepth.WithLabelValues(name),
	}
}

// Filter decides the output for one input packet. Non-stuffing packets are
// returned unchanged. A stuffing packet is replaced by the queue head when
// one is available and becomes an empty slot otherwise. It never blocks.
func (s *Substituter) Filter(in core.Packet) (core.Packet, Action) {
	if !in.IsNull() {
		return in, ActionKeep
	}

	pkt, ok := s.queue.TryPop()
	if !ok {
		s.empty.Add(1)
		s.emptyTotal.Inc()
		return in, ActionEmpty
	}

	s.injected.Add(1)
	s.injectedTotal.Inc()
	s.depth.Set(float64(s.queue.Len()))
	return pkt, ActionKeep
}

// Injected returns the number of stuffing slots filled from the queue.
func (s *Substituter) Injected() uint64 { return s.injected.Load() }

// Emptied returns the number of stuffing slots that produced no output.
func (s *Substituter) Emptied() uint64 { return s.empty.Load() }
