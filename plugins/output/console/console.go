// Package console implements console debug output.
// Prints one line per packet to stdout in human-readable format.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/pkg/plugin"
)

// ConsoleOutput prints packet headers for debugging.
type ConsoleOutput struct {
	name   string
	config Config

	mu  sync.Mutex
	out io.Writer

	printed atomic.Uint64
	skipped atomic.Uint64
}

// Config represents console output configuration.
type Config struct {
	Format       string `mapstructure:"format"`        // "json" or "text", default "text"
	SkipStuffing bool   `mapstructure:"skip_stuffing"` // do not print PID 0x1FFF packets
}

// NewConsoleOutput creates a new console output.
func NewConsoleOutput() plugin.Output {
	return &ConsoleOutput{
		name:   "console",
		config: Config{Format: "text"},
		out:    os.Stdout,
	}
}

// Name returns the plugin name.
func (c *ConsoleOutput) Name() string {
	return c.name
}

// Init initializes the output with configuration.
func (c *ConsoleOutput) Init(cfg map[string]any) error {
	if err := plugin.DecodeOptions(cfg, &c.config); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	if c.config.Format != "json" && c.config.Format != "text" {
		return fmt.Errorf("console: %w: invalid format %q, must be json or text", core.ErrConfigInvalid, c.config.Format)
	}
	return nil
}

// Start starts the output.
func (c *ConsoleOutput) Start(ctx context.Context) error {
	slog.Info("console output started", "format", c.config.Format)
	return nil
}

// Stop stops the output.
func (c *ConsoleOutput) Stop(ctx context.Context) error {
	slog.Info("console output stopped", "total_printed", c.printed.Load())
	return nil
}

// Send prints one packet.
func (c *ConsoleOutput) Send(ctx context.Context, pkt *core.Packet) error {
	if pkt == nil {
		return fmt.Errorf("nil packet")
	}
	if c.config.SkipStuffing && pkt.IsNull() {
		c.skipped.Add(1)
		return nil
	}

	c.printed.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config.Format == "json" {
		return c.sendJSON(pkt)
	}
	return c.sendText(pkt)
}

type packetLine struct {
	Seq      uint64 `json:"seq"`
	PID      uint16 `json:"pid"`
	CC       uint8  `json:"cc"`
	PUSI     bool   `json:"pusi"`
	Stuffing bool   `json:"stuffing"`
}

func (c *ConsoleOutput) sendJSON(pkt *core.Packet) error {
	data, err := json.Marshal(packetLine{
		Seq:      c.printed.Load(),
		PID:      pkt.PID(),
		CC:       pkt.ContinuityCounter(),
		PUSI:     pkt.PayloadUnitStart(),
		Stuffing: pkt.IsNull(),
	})
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func (c *ConsoleOutput) sendText(pkt *core.Packet) error {
	line := fmt.Sprintf("#%d pid=0x%04X cc=%d", c.printed.Load(), pkt.PID(), pkt.ContinuityCounter())
	if pkt.PayloadUnitStart() {
		line += " pusi"
	}
	if pkt.IsNull() {
		line += " stuffing"
	}
	_, err := fmt.Fprintln(c.out, line)
	return err
}

// Stats returns output counters.
func (c *ConsoleOutput) Stats() any {
	return map[string]uint64{
		"printed": c.printed.Load(),
		"skipped": c.skipped.Load(),
	}
}
