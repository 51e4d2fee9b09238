// Package pcap implements a capture file replay input.
//
// It reads a pcap file, keeps UDP datagrams (optionally only those sent to
// one destination port) and emits the transport packets they carry. With
// pacing enabled, packets are released following the capture timestamps.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/pkg/plugin"
)

const pluginName = "pcap"

// Config represents pcap input configuration.
type Config struct {
	File    string `mapstructure:"file"`     // required
	DstPort int    `mapstructure:"dst_port"` // 0 = any UDP port
	Pace    bool   `mapstructure:"pace"`     // replay at capture speed
}

// PcapInput replays transport packets from a capture file.
type PcapInput struct {
	config Config
	clock  clock.Clock

	frames  atomic.Uint64
	packets atomic.Uint64
	skipped atomic.Uint64
}

// NewPcapInput creates a new pcap input.
func NewPcapInput() plugin.Input {
	return &PcapInput{clock: clock.New()}
}

// Name returns the plugin name.
func (p *PcapInput) Name() string { return pluginName }

// Init initializes the input with configuration.
func (p *PcapInput) Init(cfg map[string]any) error {
	if err := plugin.DecodeOptions(cfg, &p.config); err != nil {
		return fmt.Errorf("pcap: %w", err)
	}
	if p.config.File == "" {
		return fmt.Errorf("pcap: %w: file is required", core.ErrConfigInvalid)
	}
	if p.config.DstPort < 0 || p.config.DstPort > 65535 {
		return fmt.Errorf("pcap: %w: dst_port %d out of range", core.ErrConfigInvalid, p.config.DstPort)
	}
	return nil
}

// Start checks that the capture file is readable.
func (p *PcapInput) Start(ctx context.Context) error {
	f, err := os.Open(p.config.File)
	if err != nil {
		return fmt.Errorf("pcap: %w", err)
	}
	f.Close()
	slog.Info("pcap input started", "file", p.config.File, "dst_port", p.config.DstPort, "pace", p.config.Pace)
	return nil
}

// Stop is a no-op; Receive ends with its context or at end of file.
func (p *PcapInput) Stop(ctx context.Context) error {
	slog.Info("pcap input stopped",
		"frames", p.frames.Load(),
		"packets", p.packets.Load(),
		"skipped", p.skipped.Load())
	return nil
}

// Stats returns replay counters.
func (p *PcapInput) Stats() any {
	return map[string]uint64{
		"frames":  p.frames.Load(),
		"packets": p.packets.Load(),
		"skipped": p.skipped.Load(),
	}
}

// Receive replays the file once. End of file is a clean end of stream.
func (p *PcapInput) Receive(ctx context.Context, out chan<- core.Packet) error {
	f, err := os.Open(p.config.File)
	if err != nil {
		return fmt.Errorf("pcap: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("pcap: read header: %w", err)
	}

	var (
		firstCapture time.Time
		firstReplay  time.Time
	)

	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pcap: read packet: %w", err)
		}
		p.frames.Add(1)

		payload, ok := p.udpPayload(data, r.LinkType())
		if !ok {
			continue
		}
		if len(payload) == 0 || len(payload)%core.PacketSize != 0 {
			p.skipped.Add(1)
			continue
		}

		if p.config.Pace {
			if firstCapture.IsZero() {
				firstCapture, firstReplay = ci.Timestamp, p.clock.Now()
			} else if err := p.sleepUntil(ctx, firstReplay.Add(ci.Timestamp.Sub(firstCapture))); err != nil {
				return err
			}
		}

		for off := 0; off < len(payload); off += core.PacketSize {
			pkt, _ := core.DecodePacket(payload[off : off+core.PacketSize])
			select {
			case out <- pkt:
				p.packets.Add(1)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// udpPayload decodes one frame and returns its UDP payload when it matches
// the destination port filter.
func (p *PcapInput) udpPayload(data []byte, linkType layers.LinkType) ([]byte, bool) {
	packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, false
	}
	udp, _ := udpLayer.(*layers.UDP)
	if p.config.DstPort != 0 && int(udp.DstPort) != p.config.DstPort {
		return nil, false
	}
	return udp.Payload, true
}

func (p *PcapInput) sleepUntil(ctx context.Context, at time.Time) error {
	d := at.Sub(p.clock.Now())
	if d <= 0 {
		return nil
	}
	t := p.clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
