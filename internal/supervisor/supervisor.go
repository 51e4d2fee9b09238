// Package supervisor keeps an outbound packet stream alive across
// transport session drops.
//
// A Supervisor wraps one session.Session. Every Send either succeeds on the
// current session or walks the retry policy: close the session, pause for
// the restart delay, reopen, and try again. Callers only ever see success or
// a failure wrapping core.ErrSendFailed.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/internal/metrics"
	"firestige.xyz/tsgate/internal/session"
)

// Policy is the retry policy. It is fixed once the supervisor is created.
type Policy struct {
	// AllowMultipleSessions permits tearing down a failed session and
	// opening a new one. When false the first failure is final.
	AllowMultipleSessions bool
	// AutoReconnect keeps retrying when a reopen fails. When false a failed
	// reopen is final.
	AutoReconnect bool
	// RestartDelay is the pause between closing and reopening.
	RestartDelay time.Duration
}

// State is the supervised session state.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats is a snapshot of supervisor counters.
type Stats struct {
	State        string `json:"state"`
	Sent         uint64 `json:"sent"`
	Failures     uint64 `json:"failures"`
	Reconnects   uint64 `json:"reconnects"`
	OpenFailures uint64 `json:"open_failures"`
}

// Supervisor drives a session.Session under a Policy.
//
// Send runs on the caller's goroutine and calls must be serialized.
// Stop may be called from any goroutine.
type Supervisor struct {
	sess   session.Session
	policy Policy
	clock  clock.Clock
	logger *slog.Logger
	name   string

	state    atomic.Int32
	stopped  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	sent         atomic.Uint64
	failures     atomic.Uint64
	reconnects   atomic.Uint64
	openFailures atomic.Uint64
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock sets the clock used for the restart delay.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// New creates a supervisor for sess. The session is not opened until Start.
func New(sess session.Session, policy Policy, opts ...Option) *Supervisor {
	s := &Supervisor{
		sess:   sess,
		policy: policy,
		clock:  clock.New(),
		logger: slog.Default(),
		name:   sess.String(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setState(StateDisconnected)
	return s
}

// Start opens the session. A failure here is reported to the caller as is
// and is not retried.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.stopped.Load() {
		return core.ErrSupervisorStopped
	}
	s.logger.Debug("opening session", "session", s.name)
	if err := s.sess.Open(ctx); err != nil {
		return fmt.Errorf("open session %s: %w", s.name, err)
	}
	s.setState(StateConnected)
	return nil
}

// Stop closes the session and makes any in-flight or later Send fail.
// It is idempotent.
func (s *Supervisor) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.done)
		s.setState(StateTerminal)
		err = s.sess.Close()
		s.logger.Debug("supervisor stopped", "session", s.name)
	})
	return err
}

// Send delivers buf on the current session, reconnecting according to the
// policy on failure.
//
// With AutoReconnect and an unreachable peer Send keeps retrying at a
// constant RestartDelay until ctx is cancelled or Stop is called.
func (s *Supervisor) Send(ctx context.Context, buf []byte) error {
	for {
		if s.stopped.Load() {
			return s.fail(core.ErrSupervisorStopped)
		}
		if err := ctx.Err(); err != nil {
			return s.fail(err)
		}

		err := s.sess.Send(buf)
		if err == nil {
			s.sent.Add(1)
			metrics.SupervisorSendsTotal.WithLabelValues(s.name, "ok").Inc()
			return nil
		}
		if s.stopped.Load() {
			return s.fail(core.ErrSupervisorStopped)
		}

		// Transient I/O errors and clean disconnects are treated alike.
		s.setState(StateDisconnected)
		s.logger.Debug("receiver disconnected",
			"session", s.name,
			"error", err,
			"multiple", s.policy.AllowMultipleSessions,
		)

		if !s.policy.AllowMultipleSessions {
			s.logger.Debug("no multiple sessions, terminate here", "session", s.name)
			s.setState(StateTerminal)
			return s.fail(err)
		}

		if cerr := s.sess.Close(); cerr != nil {
			s.logger.Debug("close session failed", "session", s.name, "error", cerr)
		}

		if werr := s.wait(ctx); werr != nil {
			return s.fail(werr)
		}

		s.reconnects.Add(1)
		if oerr := s.sess.Open(ctx); oerr != nil {
			s.openFailures.Add(1)
			metrics.SupervisorReconnectsTotal.WithLabelValues(s.name, "failed").Inc()
			if !s.policy.AutoReconnect {
				s.logger.Debug("reconnect is disabled, terminate here", "session", s.name, "error", oerr)
				s.setState(StateTerminal)
				return s.fail(oerr)
			}
			s.logger.Debug("reopen failed, retrying", "session", s.name, "error", oerr)
			continue
		}

		// Stop may have raced with the reopen.
		if s.stopped.Load() {
			_ = s.sess.Close()
			return s.fail(core.ErrSupervisorStopped)
		}
		metrics.SupervisorReconnectsTotal.WithLabelValues(s.name, "ok").Inc()
		s.setState(StateConnected)
		s.logger.Debug("session reopened", "session", s.name)
	}
}

// wait pauses for the restart delay. It returns early with an error when
// ctx is cancelled or the supervisor is stopped.
func (s *Supervisor) wait(ctx context.Context) error {
	if s.policy.RestartDelay <= 0 {
		return nil
	}

	t := s.clock.Timer(s.policy.RestartDelay)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return core.ErrSupervisorStopped
	}
}

func (s *Supervisor) fail(cause error) error {
	s.failures.Add(1)
	metrics.SupervisorSendsTotal.WithLabelValues(s.name, "failed").Inc()
	return fmt.Errorf("%w: %w", core.ErrSendFailed, cause)
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	var v float64
	switch st {
	case StateConnected:
		v = metrics.SessionStateConnected
	case StateTerminal:
		v = metrics.SessionStateTerminal
	default:
		v = metrics.SessionStateDisconnected
	}
	metrics.SessionState.WithLabelValues(s.name).Set(v)
}

// State returns the current session state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the supervisor counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		State:        s.State().String(),
		Sent:         s.sent.Load(),
		Failures:     s.failures.Load(),
		Reconnects:   s.reconnects.Load(),
		OpenFailures: s.openFailures.Load(),
	}
}
