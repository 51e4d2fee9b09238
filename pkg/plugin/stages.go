// Package plugin defines plugin interfaces.
package plugin

import (
	"context"

	"firestige.xyz/tsgate/internal/core"
)

// Input produces transport packets into out until ctx is cancelled or the
// source is exhausted. Returning nil means a clean end of stream.
type Input interface {
	Plugin
	Receive(ctx context.Context, out chan<- core.Packet) error
}

// Processor inspects or rewrites one packet in place.
// Returning keep=false turns the slot into an empty slot: nothing is
// forwarded downstream for it.
type Processor interface {
	Plugin
	Process(pkt *core.Packet) (keep bool)
}

// Output delivers one packet per call. A returned error is final for the
// pipeline; transient failures are expected to be absorbed by the output.
type Output interface {
	Plugin
	Send(ctx context.Context, pkt *core.Packet) error
}
