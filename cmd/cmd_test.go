package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tsgate/internal/command"
	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/internal/pipeline"
)

// MockClient implements ControlClient
type MockClient struct {
	mock.Mock
}

func (m *MockClient) DaemonStatus(ctx context.Context) (*command.StatusResult, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*command.StatusResult)
	return res, args.Error(1)
}

func (m *MockClient) PipelineStats(ctx context.Context) (*command.StatsResult, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*command.StatsResult)
	return res, args.Error(1)
}

func (m *MockClient) DaemonShutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestRunStatus_Success(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("DaemonStatus", mock.Anything).Return(&command.StatusResult{
		Version:    "0.1.0",
		RunID:      "0b7c",
		PID:        42,
		UptimeSec:  90,
		PipelineID: "main",
		State:      "running",
		RealTime:   true,
	}, nil)

	var buf bytes.Buffer
	err := runStatus(context.Background(), mockClient, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Pipeline:  main (running)")
	assert.Contains(t, buf.String(), "Uptime:    1m30s")
	mockClient.AssertExpectations(t)
}

func TestRunStatus_NotRunning(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("DaemonStatus", mock.Anything).Return(nil, core.ErrDaemonNotRunning)

	var buf bytes.Buffer
	err := runStatus(context.Background(), mockClient, &buf)

	assert.ErrorIs(t, err, core.ErrDaemonNotRunning)
	assert.Empty(t, buf.String())
	mockClient.AssertExpectations(t)
}

func TestRunStats_Success(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("PipelineStats", mock.Anything).Return(&command.StatsResult{
		PipelineID: "main",
		Pipeline:   pipeline.Stats{Received: 5, Sent: 3, Emptied: 2},
	}, nil)

	var buf bytes.Buffer
	err := runStats(context.Background(), mockClient, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), `"emptied": 2`)
	mockClient.AssertExpectations(t)
}

func TestRunStop_Success(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("DaemonShutdown", mock.Anything).Return(nil)

	var buf bytes.Buffer
	err := runStop(context.Background(), mockClient, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Daemon is shutting down")
	mockClient.AssertExpectations(t)
}

func TestRunStop_Failure(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("DaemonShutdown", mock.Anything).Return(errors.New("broken pipe"))

	var buf bytes.Buffer
	err := runStop(context.Background(), mockClient, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	mockClient.AssertExpectations(t)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunValidate(t *testing.T) {
	path := writeConfig(t, `
tsgate:
  pipeline:
    id: studio
    input:
      type: udp
      options:
        port: 5000
    processors:
      - type: udpinject
        options:
          udp_port: 9999
    output:
      type: session
      options:
        caller: "10.0.0.1:4900"
        multiple: true
`)

	var buf bytes.Buffer
	require.NoError(t, runValidate(path, true, &buf))
	assert.Contains(t, buf.String(), `VALID: pipeline "studio": udp -> 1 processor(s) -> session`)
	assert.Contains(t, buf.String(), "tsgate:")
	assert.Contains(t, buf.String(), "udp_port: 9999")
}

func TestRunValidate_BadOptions(t *testing.T) {
	path := writeConfig(t, `
tsgate:
  pipeline:
    input:
      type: "null"
    output:
      type: session
      options:
        transport: carrier-pigeon
        caller: "10.0.0.1:4900"
`)

	var buf bytes.Buffer
	err := runValidate(path, false, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID")
	assert.ErrorIs(t, err, core.ErrPluginInitFailed)
}

func TestRunValidate_UnknownPlugin(t *testing.T) {
	path := writeConfig(t, `
tsgate:
  pipeline:
    input:
      type: srt
    output:
      type: console
`)

	err := runValidate(path, false, &bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrPluginNotFound)
}

func TestRunPlugins(t *testing.T) {
	var buf bytes.Buffer
	runPlugins(&buf)
	assert.Contains(t, buf.String(), "inputs:     ")
	assert.Contains(t, buf.String(), "null, pcap, udp")
	assert.Contains(t, buf.String(), "processors: udpinject")
	assert.Contains(t, buf.String(), "outputs:    console, session")
}
