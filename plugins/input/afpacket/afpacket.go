//go:build linux && cgo

package afpacket

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/pkg/plugin"
)

const (
	pluginName = "afpacket"

	// Default configuration values
	defaultSnapLen     = 65535
	defaultBlockSize   = 4 * 1024 * 1024 // 4MB
	defaultNumBlocks   = 16
	defaultPollTimeout = 100 * time.Millisecond
)

// Config represents afpacket input configuration.
type Config struct {
	Interface   string        `mapstructure:"interface"`    // required
	DstPort     int           `mapstructure:"dst_port"`     // required
	SnapLen     int           `mapstructure:"snap_len"`     // optional, default 65535
	BlockSize   int           `mapstructure:"block_size"`   // optional, default 4MB
	NumBlocks   int           `mapstructure:"num_blocks"`   // optional, default 16
	PollTimeout time.Duration `mapstructure:"poll_timeout"` // optional, default 100ms
}

// AFPacketInput captures transport packets from a network interface.
type AFPacketInput struct {
	config Config

	frames    atomic.Uint64
	packets   atomic.Uint64
	malformed atomic.Uint64
	drops     atomic.Uint64
}

// NewAFPacketInput creates a new AF_PACKET input.
func NewAFPacketInput() plugin.Input {
	return &AFPacketInput{
		config: Config{
			SnapLen:     defaultSnapLen,
			BlockSize:   defaultBlockSize,
			NumBlocks:   defaultNumBlocks,
			PollTimeout: defaultPollTimeout,
		},
	}
}

// Name returns the plugin name.
func (a *AFPacketInput) Name() string { return pluginName }

// Init initializes the input with configuration.
func (a *AFPacketInput) Init(cfg map[string]any) error {
	if err := plugin.DecodeOptions(cfg, &a.config); err != nil {
		return fmt.Errorf("afpacket: %w", err)
	}
	if a.config.Interface == "" {
		return fmt.Errorf("afpacket: %w: interface is required", core.ErrConfigInvalid)
	}
	if a.config.DstPort < 1 || a.config.DstPort > 65535 {
		return fmt.Errorf("afpacket: %w: dst_port %d out of range 1..65535", core.ErrConfigInvalid, a.config.DstPort)
	}
	if a.config.SnapLen < core.PacketSize {
		return fmt.Errorf("afpacket: %w: snap_len %d too small", core.ErrConfigInvalid, a.config.SnapLen)
	}

	slog.Debug("afpacket initialized",
		"interface", a.config.Interface,
		"dst_port", a.config.DstPort,
		"snap_len", a.config.SnapLen)
	return nil
}

// Start is a no-op; the ring is owned by Receive.
func (a *AFPacketInput) Start(ctx context.Context) error { return nil }

// Stop is a no-op; Receive closes the ring when its context ends.
//
// The ring must not be closed here: Receive may be inside
// ZeroCopyReadPacketData on the mmap'd buffer.
func (a *AFPacketInput) Stop(ctx context.Context) error {
	slog.Info("afpacket input stopped",
		"interface", a.config.Interface,
		"frames", a.frames.Load(),
		"packets", a.packets.Load(),
		"malformed", a.malformed.Load())
	return nil
}

// Stats returns capture counters.
func (a *AFPacketInput) Stats() any {
	return map[string]uint64{
		"frames":    a.frames.Load(),
		"packets":   a.packets.Load(),
		"malformed": a.malformed.Load(),
		"drops":     a.drops.Load(),
	}
}

// Receive captures until ctx is cancelled.
func (a *AFPacketInput) Receive(ctx context.Context, out chan<- core.Packet) error {
	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(a.config.Interface),
		afpacket.OptFrameSize(a.config.SnapLen),
		afpacket.OptBlockSize(a.config.BlockSize),
		afpacket.OptNumBlocks(a.config.NumBlocks),
		afpacket.OptPollTimeout(a.config.PollTimeout),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
	)
	if err != nil {
		return fmt.Errorf("afpacket: open %s: %w", a.config.Interface, err)
	}
	defer handle.Close()

	filter, err := compileFilter(uint16(a.config.DstPort), uint32(a.config.SnapLen))
	if err != nil {
		return fmt.Errorf("afpacket: assemble filter: %w", err)
	}
	if err := handle.SetBPF(filter); err != nil {
		return fmt.Errorf("afpacket: set filter: %w", err)
	}
	if err := handle.InitSocketStats(); err != nil {
		slog.Warn("failed to init socket stats", "error", err)
	}

	slog.Info("afpacket capture started", "interface", a.config.Interface, "dst_port", a.config.DstPort)

	dec := newFrameDecoder()
	for {
		if ctx.Err() != nil {
			return nil
		}

		// Read directly instead of through a PacketSource so no goroutine
		// touches the ring after Close.
		data, _, err := handle.ZeroCopyReadPacketData()
		if err != nil {
			// Poll timeouts and EINTR land here.
			continue
		}
		a.frames.Add(1)

		if stats, _, err := handle.SocketStats(); err == nil {
			a.drops.Store(uint64(stats.Drops()))
		}

		payload, ok := dec.udpPayload(data, uint16(a.config.DstPort))
		if !ok {
			continue
		}
		if len(payload) == 0 || len(payload)%core.PacketSize != 0 {
			a.malformed.Add(1)
			continue
		}

		// data is only valid until the next read; DecodePacket copies.
		for off := 0; off < len(payload); off += core.PacketSize {
			pkt, _ := core.DecodePacket(payload[off : off+core.PacketSize])
			select {
			case out <- pkt:
				a.packets.Add(1)
			case <-ctx.Done():
				return nil
			}
		}
	}
}
