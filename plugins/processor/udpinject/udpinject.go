// Package udpinject implements the UDP injection processor.
//
// Packets received on a UDP port replace stuffing packets of the stream, in
// arrival order. Stuffing slots with nothing to inject are emptied.
package udpinject

import (
	"context"
	"fmt"
	"log/slog"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/internal/inject"
	"firestige.xyz/tsgate/pkg/plugin"
)

const pluginName = "udpinject"

// Processor wraps an inject.Injector as a pipeline processor.
type Processor struct {
	config   inject.Config
	injector *inject.Injector
}

// NewProcessor creates a new udpinject processor.
func NewProcessor() plugin.Processor {
	return &Processor{config: inject.DefaultConfig()}
}

// Name returns the plugin name.
func (p *Processor) Name() string { return pluginName }

// RealTime reports that the processor sits on the live stream path.
func (p *Processor) RealTime() bool { return true }

// Init decodes and validates options.
func (p *Processor) Init(cfg map[string]any) error {
	if err := plugin.DecodeOptions(cfg, &p.config); err != nil {
		return fmt.Errorf("udpinject: %w", err)
	}
	if err := p.config.Validate(); err != nil {
		return fmt.Errorf("udpinject: %w", err)
	}

	inj, err := inject.New(p.config, fmt.Sprintf("%s:%d", p.config.BindAddress, p.config.UDPPort), slog.Default())
	if err != nil {
		return fmt.Errorf("udpinject: %w", err)
	}
	p.injector = inj
	return nil
}

// Start binds the injection socket. A bind failure is fatal.
func (p *Processor) Start(ctx context.Context) error {
	if p.injector == nil {
		return fmt.Errorf("udpinject: not initialized")
	}
	return p.injector.Start()
}

// Stop stops the injection listener.
func (p *Processor) Stop(ctx context.Context) error {
	if p.injector == nil {
		return nil
	}
	return p.injector.Stop()
}

// Process replaces a stuffing packet with the next injected packet, or
// empties the slot when none is queued.
func (p *Processor) Process(pkt *core.Packet) bool {
	out, action := p.injector.Filter(*pkt)
	if action == inject.ActionEmpty {
		return false
	}
	*pkt = out
	return true
}

// Stats returns injector counters.
func (p *Processor) Stats() any {
	if p.injector == nil {
		return nil
	}
	return p.injector.Stats()
}
