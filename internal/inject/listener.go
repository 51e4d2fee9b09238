package inject

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/ipv4"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/internal/metrics"
)

// maxDatagramSize bounds a single receive. It is larger than one packet so
// oversized datagrams are seen whole and rejected rather than truncated.
const maxDatagramSize = 65535

const defaultPollInterval = 100 * time.Millisecond

// ListenerConfig configures the inbound datagram listener.
type ListenerConfig struct {
	BindAddress string
	// Port 0 binds an ephemeral port.
	Port int
	// MulticastInterface names the interface used to join the group when
	// BindAddress is a multicast address. Empty means the system default.
	MulticastInterface string
	// PollInterval is the read deadline used to observe Stop.
	PollInterval time.Duration
}

// ListenerStats is a snapshot of listener counters.
type ListenerStats struct {
	Received  uint64 `json:"received"`
	Accepted  uint64 `json:"accepted"`
	Malformed uint64 `json:"malformed"`
	Overflow  uint64 `json:"overflow"`
}

// Listener owns the injection UDP socket and its receive goroutine.
type Listener struct {
	cfg    ListenerConfig
	queue  *Queue
	logger *slog.Logger
	name   string

	conn    *net.UDPConn
	stopped atomic.Bool
	wg      sync.WaitGroup

	received  atomic.Uint64
	accepted  atomic.Uint64
	malformed atomic.Uint64
	overflow  atomic.Uint64

	acceptedTotal  prometheus.Counter
	malformedTotal prometheus.Counter
	overflowTotal  prometheus.Counter
	depth          prometheus.Gauge
}

// NewListener creates a listener feeding q. name labels its logs and metrics.
func NewListener(cfg ListenerConfig, q *Queue, name string, logger *slog.Logger) *Listener {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		cfg:            cfg,
		queue:          q,
		logger:         logger,
		name:           name,
		acceptedTotal:  metrics.InjectorDatagramsTotal.WithLabelValues(name, "accepted"),
		malformedTotal: metrics.InjectorDatagramsTotal.WithLabelValues(name, "malformed"),
		overflowTotal:  metrics.InjectorDatagramsTotal.WithLabelValues(name, "overflow"),
		depth:          metrics.InjectorQueueDepth.WithLabelValues(name),
	}
}

// Start binds the socket and launches the receive goroutine. A bind failure
// wraps core.ErrBindFailed and is not retried.
func (l *Listener) Start() error {
	if l.conn != nil {
		return fmt.Errorf("listener %s already started", l.name)
	}
	if l.stopped.Load() {
		return fmt.Errorf("listener %s already stopped", l.name)
	}

	conn, err := l.bind()
	if err != nil {
		return err
	}
	l.conn = conn

	l.logger.Info("injection listener started", "listener", l.name, "addr", conn.LocalAddr().String())

	l.wg.Add(1)
	go l.readLoop()
	return nil
}

func (l *Listener) bind() (*net.UDPConn, error) {
	addr := net.JoinHostPort(l.cfg.BindAddress, strconv.Itoa(l.cfg.Port))
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", core.ErrBindFailed, addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrBindFailed, addr, err)
	}

	if udpAddr.IP != nil && udpAddr.IP.IsMulticast() {
		if err := l.joinGroup(conn, udpAddr); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (l *Listener) joinGroup(conn *net.UDPConn, group *net.UDPAddr) error {
	var ifi *net.Interface
	if l.cfg.MulticastInterface != "" {
		var err error
		ifi, err = net.InterfaceByName(l.cfg.MulticastInterface)
		if err != nil {
			return fmt.Errorf("%w: multicast interface %q: %v", core.ErrBindFailed, l.cfg.MulticastInterface, err)
		}
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: group.IP}); err != nil {
		return fmt.Errorf("%w: join %s: %v", core.ErrBindFailed, group.IP, err)
	}
	l.logger.Info("joined multicast group", "listener", l.name, "group", group.IP.String(), "interface", l.cfg.MulticastInterface)
	return nil
}

func (l *Listener) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, maxDatagramSize)

	for !l.stopped.Load() {
		_ = l.conn.SetReadDeadline(time.Now().Add(l.cfg.PollInterval))
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if l.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("injection receive failed", "listener", l.name, "error", err)
			continue
		}

		l.received.Add(1)

		pkt, err := core.DecodePacket(buf[:n])
		if err != nil {
			l.malformed.Add(1)
			l.malformedTotal.Inc()
			l.logger.Warn("discarding injection datagram",
				"listener", l.name,
				"size", n,
				"expected", core.PacketSize,
				"from", src.String(),
			)
			continue
		}

		if l.queue.Push(pkt) {
			l.overflow.Add(1)
			l.overflowTotal.Inc()
		} else {
			l.accepted.Add(1)
			l.acceptedTotal.Inc()
		}
		l.depth.Set(float64(l.queue.Len()))
	}
}

// Stop ends the receive goroutine and waits for it. It is idempotent and
// safe to call before Start.
func (l *Listener) Stop() error {
	if !l.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if l.conn == nil {
		return nil
	}

	// Closing the socket unblocks a pending read immediately; the deadline
	// poll covers platforms where it does not.
	err := l.conn.Close()
	l.wg.Wait()

	st := l.Stats()
	l.logger.Info("injection listener stopped",
		"listener", l.name,
		"received", st.Received,
		"accepted", st.Accepted,
		"malformed", st.Malformed,
		"overflow", st.Overflow,
	)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the bound local address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Stats returns a snapshot of the listener counters.
func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		Received:  l.received.Load(),
		Accepted:  l.accepted.Load(),
		Malformed: l.malformed.Load(),
		Overflow:  l.overflow.Load(),
	}
}
