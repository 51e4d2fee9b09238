// Package inject splices externally supplied transport packets into the
// stuffing slots of a live stream.
//
// A Listener goroutine receives 188-byte UDP datagrams and pushes them on a
// bounded Queue. The pipeline goroutine calls Substituter.Filter for every
// packet; each stuffing packet is replaced by the queue head, or becomes an
// empty slot when nothing is queued.
package inject

import (
	"fmt"
	"sync"
	"sync/atomic"

	"firestige.xyz/tsgate/internal/core"
)

// DefaultQueueCapacity is the queue bound used when none is configured.
const DefaultQueueCapacity = 4096

// DropPolicy selects which packet is lost when the queue is full.
type DropPolicy string

const (
	// DropTail discards the incoming packet.
	DropTail DropPolicy = "tail"
	// DropHead discards the oldest queued packet to make room.
	DropHead DropPolicy = "head"
)

// ParseDropPolicy parses a drop policy name. The empty string means DropTail.
func ParseDropPolicy(s string) (DropPolicy, error) {
	switch DropPolicy(s) {
	case "", DropTail:
		return DropTail, nil
	case DropHead:
		return DropHead, nil
	default:
		return "", fmt.Errorf("%w: drop_policy %q (must be tail or head)", core.ErrConfigInvalid, s)
	}
}

// Queue is a bounded FIFO of packets shared by one producer goroutine and
// one consumer goroutine. The mutex is held only for the push or pop itself.
type Queue struct {
	mu     sync.Mutex
	buf    []core.Packet
	head   int
	size   int
	policy DropPolicy

	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most capacity packets.
func NewQueue(capacity int, policy DropPolicy) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if policy == "" {
		policy = DropTail
	}
	return &Queue{
		buf:    make([]core.Packet, capacity),
		policy: policy,
	}
}

// Push appends pkt at the tail. It reports whether the queue overflowed, in
// which case one packet was dropped according to the drop policy.
func (q *Queue) Push(pkt core.Packet) (overflow bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == len(q.buf) {
		q.dropped.Add(1)
		if q.policy == DropTail {
			return true
		}
		// DropHead: advance past the oldest packet, then append.
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		overflow = true
	}

	q.buf[(q.head+q.size)%len(q.buf)] = pkt
	q.size++
	return overflow
}

// TryPop removes and returns the head packet. It never blocks; ok is false
// when the queue is empty.
func (q *Queue) TryPop() (pkt core.Packet, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return pkt, false
	}
	pkt = q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return pkt, true
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue bound.
func (q *Queue) Cap() int { return len(q.buf) }

// Dropped returns the number of packets lost to overflow.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
