package inject

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tsgate/internal/core"
)

func pidPacket(pid uint16) core.Packet {
	pkt := core.NullPacket()
	pkt.SetPID(pid)
	return pkt
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(8, DropTail)

	q.Push(pidPacket(1))
	q.Push(pidPacket(2))
	q.Push(pidPacket(3))
	assert.Equal(t, 3, q.Len())

	for _, want := range []uint16{1, 2, 3} {
		pkt, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, pkt.PID())
	}

	_, ok := q.TryPop()
	assert.False(t, ok, "empty queue must report ok=false")
}

func TestQueueWrapAround(t *testing.T) {
	q := NewQueue(3, DropTail)

	next := uint16(1)
	want := uint16(1)
	for round := 0; round < 5; round++ {
		for i := 0; i < 2; i++ {
			q.Push(pidPacket(next))
			next++
		}
		for i := 0; i < 2; i++ {
			pkt, ok := q.TryPop()
			require.True(t, ok)
			assert.Equal(t, want, pkt.PID())
			want++
		}
	}
}

func TestQueueDropTail(t *testing.T) {
	q := NewQueue(2, DropTail)

	assert.False(t, q.Push(pidPacket(1)))
	assert.False(t, q.Push(pidPacket(2)))
	assert.True(t, q.Push(pidPacket(3)))
	assert.Equal(t, uint64(1), q.Dropped())

	pkt, _ := q.TryPop()
	assert.Equal(t, uint16(1), pkt.PID())
	pkt, _ = q.TryPop()
	assert.Equal(t, uint16(2), pkt.PID())
}

func TestQueueDropHead(t *testing.T) {
	q := NewQueue(2, DropHead)

	q.Push(pidPacket(1))
	q.Push(pidPacket(2))
	assert.True(t, q.Push(pidPacket(3)))
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 2, q.Len())

	pkt, _ := q.TryPop()
	assert.Equal(t, uint16(2), pkt.PID())
	pkt, _ = q.TryPop()
	assert.Equal(t, uint16(3), pkt.PID())
}

func TestQueueDefaults(t *testing.T) {
	q := NewQueue(0, "")
	assert.Equal(t, DefaultQueueCapacity, q.Cap())
}

func TestParseDropPolicy(t *testing.T) {
	p, err := ParseDropPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropTail, p)

	p, err = ParseDropPolicy("head")
	require.NoError(t, err)
	assert.Equal(t, DropHead, p)

	_, err = ParseDropPolicy("random")
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	const n = 10000
	q := NewQueue(n, DropTail)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(pidPacket(uint16(i % 0x1FFF)))
		}
	}()

	got := 0
	last := -1
	for got < n {
		pkt, ok := q.TryPop()
		if !ok {
			continue
		}
		pid := int(pkt.PID())
		if got%0x1FFF != 0 && pid != last+1 {
			t.Fatalf("out of order: got PID %d after %d", pid, last)
		}
		last = pid
		got++
	}
	wg.Wait()
	assert.Equal(t, uint64(0), q.Dropped())
}
