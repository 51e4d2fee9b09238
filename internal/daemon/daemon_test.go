package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/tsgate/internal/command"
	"firestige.xyz/tsgate/internal/core"
	_ "firestige.xyz/tsgate/plugins"
)

func writeDaemonConfig(t *testing.T, dir, level, pipeline string) string {
	t.Helper()
	configPath := filepath.Join(dir, "config.yml")
	content := `
tsgate:
  control:
    socket: ` + filepath.Join(dir, "tsgate.sock") + `
    pid_file: ` + filepath.Join(dir, "tsgate.pid") + `
  log:
    level: ` + level + `
    format: text
  metrics:
    enabled: false
  pipeline:
` + pipeline
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

const endlessPipeline = `    id: endless
    input:
      type: "null"
      options:
        rate: 100
    output:
      type: console
      options:
        skip_stuffing: true
`

func TestDaemon_StartStopIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeDaemonConfig(t, tmpDir, "debug", endlessPipeline)
	socketPath := filepath.Join(tmpDir, "tsgate.sock")
	pidFile := filepath.Join(tmpDir, "tsgate.pid")

	d, err := New(configPath, "")
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	if d.RunID() == "" {
		t.Error("run id is empty")
	}

	if err := d.Start(); err != nil {
		t.Fatalf("failed to start daemon: %v", err)
	}

	if pid, err := ReadPIDFile(pidFile); err != nil || pid != os.Getpid() {
		t.Errorf("PID file = %d, %v; want %d", pid, err, os.Getpid())
	}
	if _, err := os.Stat(socketPath); err != nil {
		t.Errorf("UDS socket was not created: %v", err)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run()
	}()

	client := command.NewUDSClient(socketPath, 2*time.Second)
	status, err := client.DaemonStatus(context.Background())
	if err != nil {
		t.Fatalf("DaemonStatus failed: %v", err)
	}
	if status.RunID != d.RunID() || status.PipelineID != "endless" || status.State != "running" {
		t.Errorf("unexpected status %+v", status)
	}

	if err := client.DaemonShutdown(context.Background()); err != nil {
		t.Fatalf("DaemonShutdown failed: %v", err)
	}

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("daemon.Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}

	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Errorf("PID file was not removed after shutdown: %s", pidFile)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("UDS socket was not removed after shutdown: %s", socketPath)
	}
}

func TestDaemon_ExitsWhenPipelineEnds(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeDaemonConfig(t, tmpDir, "info", `    id: finite
    input:
      type: "null"
      options:
        count: 50
    output:
      type: console
      options:
        skip_stuffing: true
`)

	d, err := New(configPath, "")
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("failed to start daemon: %v", err)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run()
	}()

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("daemon.Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		d.Stop()
		t.Fatal("daemon did not exit after the input ended")
	}
}

func TestDaemon_StartFailsWithoutReceiver(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	tmpDir := t.TempDir()
	configPath := writeDaemonConfig(t, tmpDir, "info", `    input:
      type: "null"
    output:
      type: session
      options:
        caller: "`+addr+`"
        open_timeout: 500ms
`)

	d, err := New(configPath, "")
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	if err := d.Start(); err == nil {
		d.Stop()
		t.Fatal("expected start to fail without a receiver")
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "tsgate.pid")); !os.IsNotExist(err) {
		t.Error("PID file left behind after failed start")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "tsgate.sock")); !os.IsNotExist(err) {
		t.Error("socket left behind after failed start")
	}
}

func TestDaemon_UnknownPlugin(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeDaemonConfig(t, tmpDir, "info", `    input:
      type: srt
    output:
      type: console
`)

	d, err := New(configPath, "")
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	err = d.Start()
	if !errors.Is(err, core.ErrPluginNotFound) {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestDaemon_ReloadLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeDaemonConfig(t, tmpDir, "info", endlessPipeline)

	d, err := New(configPath, "")
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	if d.config.Log.Level != "info" {
		t.Fatalf("expected initial level info, got %s", d.config.Log.Level)
	}

	writeDaemonConfig(t, tmpDir, "debug", endlessPipeline)
	if err := d.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if d.config.Log.Level != "debug" {
		t.Errorf("expected level debug after reload, got %s", d.config.Log.Level)
	}
}

func TestDaemon_ReloadInvalidConfigKeepsRunning(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeDaemonConfig(t, tmpDir, "info", endlessPipeline)

	d, err := New(configPath, "")
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	writeDaemonConfig(t, tmpDir, "verbose", endlessPipeline)
	if err := d.Reload(); err == nil {
		t.Error("expected reload error for invalid level")
	}
	if d.config.Log.Level != "info" {
		t.Errorf("level changed to %s after failed reload", d.config.Log.Level)
	}
}

func TestNew_SocketOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeDaemonConfig(t, tmpDir, "info", endlessPipeline)

	d, err := New(configPath, "/tmp/override.sock")
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if d.socketPath != "/tmp/override.sock" {
		t.Errorf("socket = %s, want override", d.socketPath)
	}
}
