// Package command implements control plane command handling.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"firestige.xyz/tsgate/internal/pipeline"
	"firestige.xyz/tsgate/pkg/plugin"
)

// Pipeline is the running pipeline as seen by the control plane.
type Pipeline interface {
	ID() string
	RealTime() bool
	Done() <-chan struct{}
	Stats() pipeline.Stats
	PluginStats() map[string]any
}

// Info identifies the running daemon.
type Info struct {
	Version string
	RunID   string
}

// CommandHandler handles control plane commands.
type CommandHandler struct {
	pipeline     Pipeline
	info         Info
	shutdownFunc func() // Called by daemon_shutdown to trigger graceful stop
	startTime    time.Time
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(p Pipeline, info Info) *CommandHandler {
	return &CommandHandler{
		pipeline:  p,
		info:      info,
		startTime: time.Now(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "daemon_status", "pipeline_stats"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string     `json:"id"`               // matches request ID
	Result any        `json:"result,omitempty"` // success result
	Error  *ErrorInfo `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// Method names
const (
	MethodDaemonStatus   = "daemon_status"
	MethodDaemonShutdown = "daemon_shutdown"
	MethodPipelineStats  = "pipeline_stats"
	MethodPluginList     = "plugin_list"
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Debug("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case MethodDaemonStatus:
		return h.handleDaemonStatus(ctx, cmd)
	case MethodDaemonShutdown:
		return h.handleDaemonShutdown(ctx, cmd)
	case MethodPipelineStats:
		return h.handlePipelineStats(ctx, cmd)
	case MethodPluginList:
		return h.handlePluginList(ctx, cmd)
	default:
		return errorResponse(cmd.ID, ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", cmd.Method))
	}
}

func errorResponse(id string, code int, msg string) Response {
	return Response{
		ID:    id,
		Error: &ErrorInfo{Code: code, Message: msg},
	}
}

// StatusResult is the result of daemon_status.
type StatusResult struct {
	Version    string `json:"version"`
	RunID      string `json:"run_id"`
	PID        int    `json:"pid"`
	UptimeSec  int64  `json:"uptime_sec"`
	PipelineID string `json:"pipeline_id"`
	State      string `json:"state"` // running / finished
	RealTime   bool   `json:"real_time"`
}

// handleDaemonStatus returns daemon status information.
func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	result := StatusResult{
		Version:   h.info.Version,
		RunID:     h.info.RunID,
		PID:       os.Getpid(),
		UptimeSec: int64(time.Since(h.startTime).Seconds()),
	}
	if h.pipeline != nil {
		result.PipelineID = h.pipeline.ID()
		result.RealTime = h.pipeline.RealTime()
		result.State = "running"
		select {
		case <-h.pipeline.Done():
			result.State = "finished"
		default:
		}
	}
	return Response{ID: cmd.ID, Result: result}
}

// StatsResult is the result of pipeline_stats.
type StatsResult struct {
	PipelineID string         `json:"pipeline_id"`
	Pipeline   pipeline.Stats `json:"pipeline"`
	Plugins    map[string]any `json:"plugins,omitempty"`
}

// handlePipelineStats returns pipeline and plugin counters.
func (h *CommandHandler) handlePipelineStats(_ context.Context, cmd Command) Response {
	if h.pipeline == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "pipeline not running")
	}
	return Response{
		ID: cmd.ID,
		Result: StatsResult{
			PipelineID: h.pipeline.ID(),
			Pipeline:   h.pipeline.Stats(),
			Plugins:    h.pipeline.PluginStats(),
		},
	}
}

// handlePluginList returns the registered plugin names.
func (h *CommandHandler) handlePluginList(_ context.Context, cmd Command) Response {
	return Response{
		ID: cmd.ID,
		Result: map[string][]string{
			"inputs":     plugin.ListInputs(),
			"processors": plugin.ListProcessors(),
			"outputs":    plugin.ListOutputs(),
		},
	}
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered callback.
func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "shutdown handler not registered")
	}

	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID:     cmd.ID,
		Result: map[string]string{"status": "shutting_down"},
	}
}
