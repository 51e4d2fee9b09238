// Package null implements a stuffing packet generator input.
//
// It produces PID 0x1FFF packets at a fixed rate, giving injection
// processors a steady supply of slots to fill.
package null

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/pkg/plugin"
)

const pluginName = "null"

// minTick bounds the pacing ticker for high rates; packets due within one
// tick are emitted as a burst.
const minTick = time.Millisecond

// Config represents null input configuration.
type Config struct {
	Rate  float64 `mapstructure:"rate"`  // packets per second, 0 = unpaced
	Count uint64  `mapstructure:"count"` // total packets, 0 = unlimited
}

// NullInput generates stuffing packets.
type NullInput struct {
	config Config
	clock  clock.Clock

	generated atomic.Uint64
}

// NewNullInput creates a new null input.
func NewNullInput() plugin.Input {
	return &NullInput{clock: clock.New()}
}

// Name returns the plugin name.
func (n *NullInput) Name() string { return pluginName }

// Init initializes the input with configuration.
func (n *NullInput) Init(cfg map[string]any) error {
	if err := plugin.DecodeOptions(cfg, &n.config); err != nil {
		return fmt.Errorf("null: %w", err)
	}
	if n.config.Rate < 0 {
		return fmt.Errorf("null: rate must be >= 0, got %v", n.config.Rate)
	}
	return nil
}

// Start is a no-op; generation happens in Receive.
func (n *NullInput) Start(ctx context.Context) error {
	slog.Info("null input started", "rate", n.config.Rate, "count", n.config.Count)
	return nil
}

// Stop is a no-op; Receive ends with its context.
func (n *NullInput) Stop(ctx context.Context) error {
	slog.Info("null input stopped", "generated", n.generated.Load())
	return nil
}

// Stats returns the number of generated packets.
func (n *NullInput) Stats() any {
	return map[string]uint64{"generated": n.generated.Load()}
}

// Receive emits stuffing packets until count is reached or ctx is cancelled.
func (n *NullInput) Receive(ctx context.Context, out chan<- core.Packet) error {
	if n.config.Rate == 0 {
		for !n.done() {
			if err := n.emit(ctx, out); err != nil {
				return err
			}
		}
		return nil
	}

	interval := time.Duration(float64(time.Second) / n.config.Rate)
	if interval < minTick {
		interval = minTick
	}
	ticker := n.clock.Ticker(interval)
	defer ticker.Stop()

	start := n.clock.Now()
	for !n.done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		due := uint64(n.clock.Since(start).Seconds() * n.config.Rate)
		for n.generated.Load() < due && !n.done() {
			if err := n.emit(ctx, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *NullInput) done() bool {
	return n.config.Count > 0 && n.generated.Load() >= n.config.Count
}

func (n *NullInput) emit(ctx context.Context, out chan<- core.Packet) error {
	select {
	case out <- core.NullPacket():
		n.generated.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
