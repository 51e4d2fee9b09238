package inject

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"firestige.xyz/tsgate/internal/core"
)

// Config holds injector options as they appear in plugin configuration.
type Config struct {
	UDPPort            int           `mapstructure:"udp_port"`
	BindAddress        string        `mapstructure:"bind_address"`
	MulticastInterface string        `mapstructure:"multicast_interface"`
	QueueCapacity      int           `mapstructure:"queue_capacity"`
	DropPolicy         string        `mapstructure:"drop_policy"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
}

// DefaultConfig returns the injector defaults.
func DefaultConfig() Config {
	return Config{
		UDPPort:       9999,
		BindAddress:   "127.0.0.1",
		QueueCapacity: DefaultQueueCapacity,
		DropPolicy:    string(DropTail),
		PollInterval:  defaultPollInterval,
	}
}

// Validate checks user-facing option ranges.
func (c Config) Validate() error {
	if c.UDPPort < 1 || c.UDPPort > 65535 {
		return fmt.Errorf("%w: udp_port %d out of range 1..65535", core.ErrConfigInvalid, c.UDPPort)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("%w: queue_capacity must be >= 0, got %d", core.ErrConfigInvalid, c.QueueCapacity)
	}
	if _, err := ParseDropPolicy(c.DropPolicy); err != nil {
		return err
	}
	if c.BindAddress != "" && net.ParseIP(c.BindAddress) == nil {
		return fmt.Errorf("%w: bind_address %q is not an IP address", core.ErrConfigInvalid, c.BindAddress)
	}
	return nil
}

// Stats is a snapshot of injector counters.
type Stats struct {
	Listener ListenerStats `json:"listener"`
	Queued   int           `json:"queued"`
	Dropped  uint64        `json:"dropped"`
	Injected uint64        `json:"injected"`
	Emptied  uint64        `json:"emptied"`
}

// Injector wires a Listener, a Queue and a Substituter together.
type Injector struct {
	queue    *Queue
	listener *Listener
	sub      *Substituter
}

// New creates an injector. Port 0 binds an ephemeral port.
func New(cfg Config, name string, logger *slog.Logger) (*Injector, error) {
	policy, err := ParseDropPolicy(cfg.DropPolicy)
	if err != nil {
		return nil, err
	}

	q := NewQueue(cfg.QueueCapacity, policy)
	return &Injector{
		queue: q,
		listener: NewListener(ListenerConfig{
			BindAddress:        cfg.BindAddress,
			Port:               cfg.UDPPort,
			MulticastInterface: cfg.MulticastInterface,
			PollInterval:       cfg.PollInterval,
		}, q, name, logger),
		sub: NewSubstituter(q, name),
	}, nil
}

// Start binds the listener socket.
func (i *Injector) Start() error { return i.listener.Start() }

// Stop stops the listener goroutine. Queued packets are discarded with the
// injector.
func (i *Injector) Stop() error { return i.listener.Stop() }

// Filter applies the substitution decision to one packet.
func (i *Injector) Filter(in core.Packet) (core.Packet, Action) { return i.sub.Filter(in) }

// Addr returns the bound listener address, or nil before Start.
func (i *Injector) Addr() net.Addr { return i.listener.Addr() }

// Stats returns a snapshot of injector counters.
func (i *Injector) Stats() Stats {
	return Stats{
		Listener: i.listener.Stats(),
		Queued:   i.queue.Len(),
		Dropped:  i.queue.Dropped(),
		Injected: i.sub.Injected(),
		Emptied:  i.sub.Emptied(),
	}
}
