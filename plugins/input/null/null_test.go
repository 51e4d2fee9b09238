package null

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tsgate/internal/core"
)

func TestNullInput_Init(t *testing.T) {
	n := NewNullInput().(*NullInput)
	require.NoError(t, n.Init(map[string]any{"rate": 1000, "count": "5"}))
	assert.Equal(t, 1000.0, n.config.Rate)
	assert.Equal(t, uint64(5), n.config.Count)

	assert.Error(t, NewNullInput().Init(map[string]any{"rate": -1}))
	assert.Error(t, NewNullInput().Init(map[string]any{"burst": 3}))
}

func TestNullInput_UnpacedCount(t *testing.T) {
	n := NewNullInput().(*NullInput)
	require.NoError(t, n.Init(map[string]any{"count": 10}))

	out := make(chan core.Packet, 16)
	require.NoError(t, n.Receive(context.Background(), out))
	close(out)

	got := 0
	for pkt := range out {
		assert.True(t, pkt.IsNull())
		got++
	}
	assert.Equal(t, 10, got)
}

func TestNullInput_Paced(t *testing.T) {
	mock := clock.NewMock()
	n := &NullInput{clock: mock}
	require.NoError(t, n.Init(map[string]any{"rate": 100, "count": 50}))

	out := make(chan core.Packet, 100)
	done := make(chan error, 1)
	go func() { done <- n.Receive(context.Background(), out) }()

	// Nothing is due before the clock moves.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, len(out))

	require.Eventually(t, func() bool {
		mock.Add(100 * time.Millisecond)
		select {
		case err := <-done:
			return err == nil
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 50, len(out))
}

func TestNullInput_Cancel(t *testing.T) {
	n := NewNullInput().(*NullInput)
	require.NoError(t, n.Init(nil))

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan core.Packet) // unbuffered, nobody reads
	done := make(chan error, 1)
	go func() { done <- n.Receive(ctx, out) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not observe cancellation")
	}
}
