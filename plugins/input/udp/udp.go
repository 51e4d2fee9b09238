// Package udp implements a TS-over-UDP input.
//
// Each datagram carries one to seven whole transport packets, as produced by
// common IP encapsulators. Datagrams of any other size are discarded.
package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/pkg/plugin"
)

const (
	pluginName = "udp"

	maxPacketsPerDatagram = 7
	pollInterval          = 100 * time.Millisecond
)

// Config represents udp input configuration.
type Config struct {
	Port               int    `mapstructure:"port"`
	BindAddress        string `mapstructure:"bind_address"`
	MulticastInterface string `mapstructure:"multicast_interface"`
}

// UDPInput receives transport packets from UDP datagrams.
type UDPInput struct {
	config Config
	conn   *net.UDPConn

	datagrams atomic.Uint64
	packets   atomic.Uint64
	malformed atomic.Uint64
}

// NewUDPInput creates a new UDP input.
func NewUDPInput() plugin.Input {
	return &UDPInput{config: Config{BindAddress: "0.0.0.0"}}
}

// Name returns the plugin name.
func (u *UDPInput) Name() string { return pluginName }

// Init initializes the input with configuration.
func (u *UDPInput) Init(cfg map[string]any) error {
	if err := plugin.DecodeOptions(cfg, &u.config); err != nil {
		return fmt.Errorf("udp: %w", err)
	}
	if u.config.Port < 0 || u.config.Port > 65535 {
		return fmt.Errorf("udp: %w: port %d out of range", core.ErrConfigInvalid, u.config.Port)
	}
	return nil
}

// Start binds the receive socket so bind errors surface at startup.
func (u *UDPInput) Start(ctx context.Context) error {
	addr := net.JoinHostPort(u.config.BindAddress, strconv.Itoa(u.config.Port))
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("udp: %w: %s: %v", core.ErrBindFailed, addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("udp: %w: %s: %v", core.ErrBindFailed, addr, err)
	}

	if udpAddr.IP != nil && udpAddr.IP.IsMulticast() {
		var ifi *net.Interface
		if u.config.MulticastInterface != "" {
			if ifi, err = net.InterfaceByName(u.config.MulticastInterface); err != nil {
				conn.Close()
				return fmt.Errorf("udp: %w: interface %q: %v", core.ErrBindFailed, u.config.MulticastInterface, err)
			}
		}
		if err := ipv4.NewPacketConn(conn).JoinGroup(ifi, &net.UDPAddr{IP: udpAddr.IP}); err != nil {
			conn.Close()
			return fmt.Errorf("udp: %w: join %s: %v", core.ErrBindFailed, udpAddr.IP, err)
		}
	}

	u.conn = conn
	slog.Info("udp input started", "addr", conn.LocalAddr().String())
	return nil
}

// Stop closes the socket, which ends Receive.
func (u *UDPInput) Stop(ctx context.Context) error {
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	slog.Info("udp input stopped",
		"datagrams", u.datagrams.Load(),
		"packets", u.packets.Load(),
		"malformed", u.malformed.Load())
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address, or nil before Start.
func (u *UDPInput) Addr() net.Addr {
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Stats returns receive counters.
func (u *UDPInput) Stats() any {
	return map[string]uint64{
		"datagrams": u.datagrams.Load(),
		"packets":   u.packets.Load(),
		"malformed": u.malformed.Load(),
	}
}

// Receive reads datagrams and emits their packets until ctx is cancelled or
// the socket is closed.
func (u *UDPInput) Receive(ctx context.Context, out chan<- core.Packet) error {
	if u.conn == nil {
		return fmt.Errorf("udp: input not started")
	}

	buf := make([]byte, 65535)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_ = u.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, src, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp: receive: %w", err)
		}

		u.datagrams.Add(1)
		if n == 0 || n%core.PacketSize != 0 || n/core.PacketSize > maxPacketsPerDatagram {
			u.malformed.Add(1)
			slog.Warn("udp input discarding datagram", "size", n, "from", src.String())
			continue
		}

		for off := 0; off < n; off += core.PacketSize {
			pkt, _ := core.DecodePacket(buf[off : off+core.PacketSize])
			select {
			case out <- pkt:
				u.packets.Add(1)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
