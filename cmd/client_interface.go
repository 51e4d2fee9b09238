package cmd

import (
	"context"

	"firestige.xyz/tsgate/internal/command"
)

// ControlClient is the daemon control API used by the client commands.
// *command.UDSClient implements it.
type ControlClient interface {
	DaemonStatus(ctx context.Context) (*command.StatusResult, error)
	PipelineStats(ctx context.Context) (*command.StatsResult, error)
	DaemonShutdown(ctx context.Context) error
}

var _ ControlClient = (*command.UDSClient)(nil)

// newClient is replaced in tests.
var newClient = func() ControlClient {
	return command.NewUDSClient(socketPath, clientTimeout)
}
