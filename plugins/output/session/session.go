// Package session implements the relay output: packets are written to an
// outbound transport session kept alive by a supervisor.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/internal/session"
	"firestige.xyz/tsgate/internal/supervisor"
	"firestige.xyz/tsgate/pkg/plugin"
)

const pluginName = "session"

// Config represents session output configuration.
type Config struct {
	session.Config `mapstructure:",squash"`

	// Multiple permits opening a new session after the receiver disconnects.
	Multiple bool `mapstructure:"multiple"`
	// Reconnect keeps retrying when a reopen fails.
	Reconnect bool `mapstructure:"reconnect"`
	// RestartDelay is the pause before reopening, in milliseconds.
	RestartDelay uint32 `mapstructure:"restart_delay"`
}

// Output sends every packet through a supervised session.
type Output struct {
	config Config
	sess   session.Session
	sup    *supervisor.Supervisor
}

// NewSessionOutput creates a new session output.
func NewSessionOutput() plugin.Output {
	return &Output{
		config: Config{
			Config:    session.DefaultConfig(),
			Reconnect: true,
		},
	}
}

// Name returns the plugin name.
func (o *Output) Name() string { return pluginName }

// RealTime reports that sends happen on the live stream path.
func (o *Output) RealTime() bool { return true }

// Init decodes options and creates the session and its supervisor.
// Nothing is opened until Start.
func (o *Output) Init(cfg map[string]any) error {
	if err := plugin.DecodeOptions(cfg, &o.config); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	sess, err := session.New(o.config.Config)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	o.sess = sess
	o.sup = supervisor.New(sess, o.policy(),
		supervisor.WithLogger(slog.Default().With("plugin", pluginName)),
	)
	return nil
}

func (o *Output) policy() supervisor.Policy {
	return supervisor.Policy{
		AllowMultipleSessions: o.config.Multiple,
		AutoReconnect:         o.config.Reconnect,
		RestartDelay:          time.Duration(o.config.RestartDelay) * time.Millisecond,
	}
}

// Start opens the first session. Failure here aborts pipeline startup.
func (o *Output) Start(ctx context.Context) error {
	if o.sup == nil {
		return fmt.Errorf("session: not initialized")
	}
	slog.Info("session output starting",
		"session", o.sess.String(),
		"multiple", o.config.Multiple,
		"reconnect", o.config.Reconnect,
		"restart_delay_ms", o.config.RestartDelay,
	)
	return o.sup.Start(ctx)
}

// Stop closes the session. An in-flight Send fails promptly.
func (o *Output) Stop(ctx context.Context) error {
	if o.sup == nil {
		return nil
	}
	return o.sup.Stop()
}

// Send writes one packet as one transport write.
func (o *Output) Send(ctx context.Context, pkt *core.Packet) error {
	return o.sup.Send(ctx, pkt.Bytes())
}

// Stats returns supervisor counters.
func (o *Output) Stats() any {
	if o.sup == nil {
		return nil
	}
	return o.sup.Stats()
}
