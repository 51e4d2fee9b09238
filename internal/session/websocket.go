package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"firestige.xyz/tsgate/internal/core"
)

// webSocketSession sends each buffer as one binary message.
type webSocketSession struct {
	url string
	cfg Config

	mu   sync.Mutex
	conn *websocket.Conn
}

func newWebSocketSession(addr string, cfg Config) *webSocketSession {
	url := addr
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + url
	}
	return &webSocketSession{url: url, cfg: cfg}
}

func (s *webSocketSession) String() string { return s.url }

func (s *webSocketSession) Open(ctx context.Context) error {
	ctx, cancel := openContext(ctx, s.cfg.OpenTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.OpenTimeout,
		WriteBufferSize:  core.PacketSize * 7,
	}
	conn, resp, err := dialer.DialContext(ctx, s.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial websocket %s: %w", s.url, err)
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

func (s *webSocketSession) Send(buf []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return core.ErrSessionClosed
	}

	if err := conn.SetWriteDeadline(writeDeadline(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, buf)
}

func (s *webSocketSession) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if err == websocket.ErrCloseSent {
		err = nil
	}
	return multierr.Append(err, conn.Close())
}
