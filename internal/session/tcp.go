package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"firestige.xyz/tsgate/internal/core"
)

// tcpSession carries packets as a plain byte stream.
//
// In listener mode each Open listens and accepts exactly one receiver; Close
// drops both the peer and the listening socket so the next Open waits for a
// new receiver.
type tcpSession struct {
	mode Mode
	addr string
	cfg  Config

	mu   sync.Mutex
	ln   net.Listener
	conn net.Conn
}

func newTCPSession(mode Mode, addr string, cfg Config) *tcpSession {
	return &tcpSession{mode: mode, addr: addr, cfg: cfg}
}

func (s *tcpSession) String() string {
	return fmt.Sprintf("tcp://%s@%s", s.mode, s.addr)
}

func (s *tcpSession) Open(ctx context.Context) error {
	ctx, cancel := openContext(ctx, s.cfg.OpenTimeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if s.mode == ModeListener {
		conn, err = s.accept(ctx)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			err = fmt.Errorf("dial tcp %s: %w", s.addr, err)
		}
	}
	if err != nil {
		return err
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

func (s *tcpSession) accept(ctx context.Context) (net.Conn, error) {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	if ln == nil {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, "tcp", s.addr)
		if err != nil {
			return nil, fmt.Errorf("listen tcp %s: %w", s.addr, err)
		}
		s.mu.Lock()
		s.ln = l
		s.mu.Unlock()
		ln = l
	}

	tl, ok := ln.(*net.TCPListener)
	if ok {
		if dl, has := ctx.Deadline(); has {
			tl.SetDeadline(dl)
		} else {
			tl.SetDeadline(time.Time{})
		}
		// Unblock Accept when ctx is cancelled.
		stop := context.AfterFunc(ctx, func() { tl.SetDeadline(time.Unix(1, 0)) })
		defer stop()
	}

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("accept tcp %s: %w", s.addr, ctx.Err())
		}
		return nil, fmt.Errorf("accept tcp %s: %w", s.addr, err)
	}
	return conn, nil
}

// Addr returns the bound listen address in listener mode, or nil.
func (s *tcpSession) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *tcpSession) Send(buf []byte) error {
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

func (s *tcpSession) Close() error {
	s.mu.Lock()
	conn, ln := s.conn, s.ln
	s.conn, s.ln = nil, nil
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = multierr.Append(err, conn.Close())
	}
	if ln != nil {
		err = multierr.Append(err, ln.Close())
	}
	return err
}
