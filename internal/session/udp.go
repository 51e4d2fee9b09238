package session

import (
	"context"
	"fmt"
	"net"
	"sync"

	"firestige.xyz/tsgate/internal/core"
)

// udpSession sends datagrams to a fixed peer. A refused peer surfaces as a
// Send error on the following writes.
type udpSession struct {
	addr string
	cfg  Config

	mu   sync.Mutex
	conn net.Conn
}

func newUDPSession(addr string, cfg Config) *udpSession {
	return &udpSession{addr: addr, cfg: cfg}
}

func (s *udpSession) String() string { return "udp://" + s.addr }

func (s *udpSession) Open(ctx context.Context) error {
	ctx, cancel := openContext(ctx, s.cfg.OpenTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", s.addr)
	if err != nil {
		return fmt.Errorf("dial udp %s: %w", s.addr, err)
	}

	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

func (s *udpSession) Send(buf []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return core.ErrSessionClosed
	}

	if err := conn.SetWriteDeadline(writeDeadline(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(buf)
	return err
}

func (s *udpSession) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
