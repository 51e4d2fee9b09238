package session

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tsgate/internal/core"
)

func testPacket(pid uint16) []byte {
	pkt := core.NullPacket()
	pkt.SetPID(pid)
	return pkt.Bytes()
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantMode Mode
		wantAddr string
		wantErr  bool
	}{
		{name: "Caller", cfg: Config{Caller: "10.0.0.1:4900"}, wantMode: ModeCaller, wantAddr: "10.0.0.1:4900"},
		{name: "Listener", cfg: Config{Listener: "0.0.0.0:4900"}, wantMode: ModeListener, wantAddr: "0.0.0.0:4900"},
		{name: "LegacyAddressIsListener", cfg: Config{Address: "4900"}, wantMode: ModeListener, wantAddr: ":4900"},
		{name: "LegacyRendezvousIsCaller", cfg: Config{Rendezvous: "10.0.0.2:4900"}, wantMode: ModeCaller, wantAddr: "10.0.0.2:4900"},
		{name: "SameCallerTwice", cfg: Config{Caller: "h:1", Rendezvous: "h:1"}, wantMode: ModeCaller, wantAddr: "h:1"},
		{name: "Both", cfg: Config{Caller: "h:1", Listener: ":2"}, wantErr: true},
		{name: "LegacyConflict", cfg: Config{Caller: "h:1", Rendezvous: "h:2"}, wantErr: true},
		{name: "Neither", cfg: Config{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, addr, err := tt.cfg.Endpoint()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, core.ErrConfigInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, mode)
			assert.Equal(t, tt.wantAddr, addr)
		})
	}
}

func TestNew(t *testing.T) {
	for _, transport := range []string{"", "tcp", "udp", "quic", "websocket", "TCP"} {
		s, err := New(Config{Transport: transport, Caller: "127.0.0.1:1"})
		require.NoError(t, err, transport)
		require.NotNil(t, s)
	}

	_, err := New(Config{Transport: "srt", Caller: "127.0.0.1:1"})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(Config{Transport: "udp", Listener: ":4900"})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestSendBeforeOpen(t *testing.T) {
	for _, transport := range []string{"tcp", "udp", "quic", "websocket"} {
		s, err := New(Config{Transport: transport, Caller: "127.0.0.1:1"})
		require.NoError(t, err)
		assert.ErrorIs(t, s.Send(testPacket(0x100)), core.ErrSessionClosed, transport)
		assert.NoError(t, s.Close(), transport)
	}
}

func TestTCPCaller(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, core.PacketSize)
		if _, err := io.ReadFull(conn, buf); err == nil {
			received <- buf
		}
	}()

	s, err := New(Config{Transport: "tcp", Caller: ln.Addr().String(), OpenTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	require.NoError(t, s.Send(testPacket(0x123)))

	select {
	case buf := <-received:
		pkt, err := core.DecodePacket(buf)
		require.NoError(t, err)
		assert.Equal(t, uint16(0x123), pkt.PID())
	case <-time.After(2 * time.Second):
		t.Fatal("receiver got nothing")
	}
}

func TestTCPCallerRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	s, err := New(Config{Transport: "tcp", Caller: addr, OpenTimeout: time.Second})
	require.NoError(t, err)
	assert.Error(t, s.Open(context.Background()))
}

func TestTCPListenerAcceptsOnePeerPerOpen(t *testing.T) {
	s := newTCPSession(ModeListener, "127.0.0.1:0", Config{})

	opened := make(chan error, 1)
	go func() { opened <- s.Open(context.Background()) }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, 2*time.Second, 5*time.Millisecond)

	peer, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer peer.Close()

	select {
	case err := <-opened:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not return after a peer connected")
	}

	require.NoError(t, s.Send(testPacket(0x42)))
	buf := make([]byte, core.PacketSize)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(peer, buf)
	require.NoError(t, err)
	assert.Equal(t, byte(core.SyncByte), buf[0])

	require.NoError(t, s.Close())
	assert.Nil(t, s.Addr())
	assert.ErrorIs(t, s.Send(testPacket(0x42)), core.ErrSessionClosed)
}

func TestTCPListenerOpenCancelled(t *testing.T) {
	s := newTCPSession(ModeListener, "127.0.0.1:0", Config{})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	opened := make(chan error, 1)
	go func() { opened <- s.Open(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-opened:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not observe cancellation")
	}
}

func TestUDPCaller(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	s, err := New(Config{Transport: "udp", Caller: pc.LocalAddr().String()})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	require.NoError(t, s.Send(testPacket(0x77)))

	buf := make([]byte, 2048)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, core.PacketSize, n)
}

func TestWebSocketCaller(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mt, data, err := conn.ReadMessage()
		if err == nil && mt == websocket.BinaryMessage {
			received <- data
		}
	}))
	defer srv.Close()

	s, err := New(Config{
		Transport:   "websocket",
		Caller:      strings.TrimPrefix(srv.URL, "http://") + "/ts",
		OpenTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.String(), "ws://"))

	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Send(testPacket(0x200)))

	select {
	case data := <-received:
		assert.Len(t, data, core.PacketSize)
	case <-time.After(2 * time.Second):
		t.Fatal("websocket server got nothing")
	}
	s.Close()
}

func TestQUICOpenFailsWithoutPeer(t *testing.T) {
	s, err := New(Config{
		Transport:   "quic",
		Caller:      "127.0.0.1:1",
		OpenTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "quic://127.0.0.1:1", s.String())
	assert.Error(t, s.Open(context.Background()))
	assert.ErrorIs(t, s.Send(testPacket(0x100)), core.ErrSessionClosed)
}
