package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"firestige.xyz/tsgate/internal/core"
)

// quicSession sends packets on a single bidirectional QUIC stream.
type quicSession struct {
	addr string
	cfg  Config

	mu     sync.Mutex
	conn   quic.Connection
	stream quic.Stream
}

func newQUICSession(addr string, cfg Config) *quicSession {
	return &quicSession{addr: addr, cfg: cfg}
}

func (s *quicSession) String() string { return "quic://" + s.addr }

func (s *quicSession) tlsConfig() *tls.Config {
	serverName := s.cfg.ServerName
	if serverName == "" {
		if host, _, err := net.SplitHostPort(s.addr); err == nil {
			serverName = host
		}
	}
	alpn := s.cfg.ALPN
	if alpn == "" {
		alpn = "tsgate"
	}
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for lab receivers with self-signed certs
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
}

func (s *quicSession) Open(ctx context.Context) error {
	ctx, cancel := openContext(ctx, s.cfg.OpenTimeout)
	defer cancel()

	quicConf := &quic.Config{
		HandshakeIdleTimeout: s.cfg.OpenTimeout,
		KeepAlivePeriod:      s.cfg.OpenTimeout / 2,
	}

	conn, err := quic.DialAddr(ctx, s.addr, s.tlsConfig(), quicConf)
	if err != nil {
		return fmt.Errorf("dial quic %s: %w", s.addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "stream open failed")
		return fmt.Errorf("open quic stream %s: %w", s.addr, err)
	}

	s.mu.Lock()
	oldConn := s.conn
	s.conn, s.stream = conn, stream
	s.mu.Unlock()
	if oldConn != nil {
		_ = oldConn.CloseWithError(0, "session reopened")
	}
	return nil
}

func (s *quicSession) Send(buf []byte) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return core.ErrSessionClosed
	}

	if err := stream.SetWriteDeadline(writeDeadline(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err := stream.Write(buf)
	return err
}

func (s *quicSession) Close() error {
	s.mu.Lock()
	conn, stream := s.conn, s.stream
	s.conn, s.stream = nil, nil
	s.mu.Unlock()

	var err error
	if stream != nil {
		err = multierr.Append(err, stream.Close())
	}
	if conn != nil {
		err = multierr.Append(err, conn.CloseWithError(0, "session closed"))
	}
	return err
}
