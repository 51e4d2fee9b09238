// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers match them with errors.Is.
var (
	// Packet errors
	ErrPacketSize = errors.New("tsgate: invalid packet size")

	// Session and supervisor errors
	ErrSendFailed        = errors.New("tsgate: send failed")
	ErrSessionClosed     = errors.New("tsgate: session closed")
	ErrSupervisorStopped = errors.New("tsgate: supervisor stopped")

	// Injector errors
	ErrBindFailed = errors.New("tsgate: bind failed")

	// Pipeline errors
	ErrPipelineStopped = errors.New("tsgate: pipeline stopped")

	// Plugin errors
	ErrPluginNotFound   = errors.New("tsgate: plugin not found")
	ErrPluginInitFailed = errors.New("tsgate: plugin init failed")

	// Configuration errors
	ErrConfigInvalid = errors.New("tsgate: invalid configuration")

	// Daemon errors
	ErrDaemonNotRunning = errors.New("tsgate: daemon not running")
)
