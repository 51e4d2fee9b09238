// Package session implements the outbound transport sessions the relay
// delivers packets over.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"firestige.xyz/tsgate/internal/core"
)

// Session is one outbound transport session.
//
// Open may be called again after Close; a Session is reused across
// reconnects. Send writes one buffer as one transport write and reports
// failure with a non-nil error. Close may be called concurrently with Send
// and makes an in-flight Send fail.
type Session interface {
	Open(ctx context.Context) error
	Close() error
	Send(buf []byte) error
	String() string
}

// Mode is the connection role of a session.
type Mode string

const (
	ModeCaller   Mode = "caller"
	ModeListener Mode = "listener"
)

// Transport names.
const (
	TransportTCP       = "tcp"
	TransportUDP       = "udp"
	TransportQUIC      = "quic"
	TransportWebSocket = "websocket"
)

// Config holds transport options shared by all sessions.
//
// Address and Rendezvous are legacy spellings of Listener and Caller.
type Config struct {
	Transport    string        `mapstructure:"transport"`
	Caller       string        `mapstructure:"caller"`
	Listener     string        `mapstructure:"listener"`
	Address      string        `mapstructure:"address"`
	Rendezvous   string        `mapstructure:"rendezvous"`
	OpenTimeout  time.Duration `mapstructure:"open_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// QUIC only
	ServerName         string `mapstructure:"server_name"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	ALPN               string `mapstructure:"alpn"`
}

// DefaultConfig returns a Config with default values applied.
func DefaultConfig() Config {
	return Config{
		Transport:   TransportTCP,
		OpenTimeout: 5 * time.Second,
		ALPN:        "tsgate",
	}
}

// Endpoint resolves the legacy options and returns the session role and
// address. Exactly one of caller/listener must be set.
func (c Config) Endpoint() (Mode, string, error) {
	caller := c.Caller
	if caller == "" {
		caller = c.Rendezvous
	} else if c.Rendezvous != "" && c.Rendezvous != caller {
		return "", "", fmt.Errorf("%w: both caller and rendezvous set", core.ErrConfigInvalid)
	}

	listener := c.Listener
	if listener == "" {
		listener = c.Address
	} else if c.Address != "" && c.Address != listener {
		return "", "", fmt.Errorf("%w: both listener and address set", core.ErrConfigInvalid)
	}

	switch {
	case caller != "" && listener != "":
		return "", "", fmt.Errorf("%w: caller and listener are mutually exclusive", core.ErrConfigInvalid)
	case caller != "":
		return ModeCaller, caller, nil
	case listener != "":
		return ModeListener, normalizeListenAddr(listener), nil
	default:
		return "", "", fmt.Errorf("%w: one of caller or listener is required", core.ErrConfigInvalid)
	}
}

// normalizeListenAddr accepts a bare port as a listen address.
func normalizeListenAddr(addr string) string {
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}

// New creates a Session for cfg. It validates addressing but opens nothing.
func New(cfg Config) (Session, error) {
	mode, addr, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}

	transport := strings.ToLower(cfg.Transport)
	if transport == "" {
		transport = TransportTCP
	}

	if mode == ModeListener && transport != TransportTCP {
		return nil, fmt.Errorf("%w: transport %s supports caller mode only", core.ErrConfigInvalid, transport)
	}

	switch transport {
	case TransportTCP:
		return newTCPSession(mode, addr, cfg), nil
	case TransportUDP:
		return newUDPSession(addr, cfg), nil
	case TransportQUIC:
		return newQUICSession(addr, cfg), nil
	case TransportWebSocket:
		return newWebSocketSession(addr, cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", core.ErrConfigInvalid, cfg.Transport)
	}
}

// openContext bounds one Open call by the configured timeout.
func openContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func writeDeadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
