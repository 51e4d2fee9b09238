package command

import (
	"context"
	"testing"
	"time"

	"firestige.xyz/tsgate/internal/pipeline"
)

// mockPipeline is a mock implementation of Pipeline.
type mockPipeline struct {
	done chan struct{}
}

func newMockPipeline() *mockPipeline {
	return &mockPipeline{done: make(chan struct{})}
}

func (m *mockPipeline) ID() string            { return "studio-a" }
func (m *mockPipeline) RealTime() bool        { return true }
func (m *mockPipeline) Done() <-chan struct{} { return m.done }
func (m *mockPipeline) Stats() pipeline.Stats {
	return pipeline.Stats{Received: 10, Sent: 7, Emptied: 3}
}
func (m *mockPipeline) PluginStats() map[string]any {
	return map[string]any{"output/session": map[string]any{"state": "connected"}}
}

func TestCommandHandler_DaemonStatus(t *testing.T) {
	mp := newMockPipeline()
	handler := NewCommandHandler(mp, Info{Version: "1.2.3", RunID: "run-1"})

	resp := handler.Handle(context.Background(), Command{Method: MethodDaemonStatus, ID: "req-1"})
	if resp.ID != "req-1" {
		t.Errorf("response ID = %s, want req-1", resp.ID)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	status, ok := resp.Result.(StatusResult)
	if !ok {
		t.Fatalf("result type = %T, want StatusResult", resp.Result)
	}
	if status.Version != "1.2.3" || status.RunID != "run-1" {
		t.Errorf("unexpected identity %+v", status)
	}
	if status.PipelineID != "studio-a" || !status.RealTime {
		t.Errorf("unexpected pipeline fields %+v", status)
	}
	if status.State != "running" {
		t.Errorf("state = %s, want running", status.State)
	}

	close(mp.done)
	resp = handler.Handle(context.Background(), Command{Method: MethodDaemonStatus, ID: "req-2"})
	if got := resp.Result.(StatusResult).State; got != "finished" {
		t.Errorf("state = %s, want finished", got)
	}
}

func TestCommandHandler_PipelineStats(t *testing.T) {
	handler := NewCommandHandler(newMockPipeline(), Info{})

	resp := handler.Handle(context.Background(), Command{Method: MethodPipelineStats, ID: "req-3"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	stats := resp.Result.(StatsResult)
	if stats.Pipeline.Received != 10 || stats.Pipeline.Sent != 7 || stats.Pipeline.Emptied != 3 {
		t.Errorf("unexpected stats %+v", stats.Pipeline)
	}
	if _, ok := stats.Plugins["output/session"]; !ok {
		t.Error("plugin stats missing output/session")
	}
}

func TestCommandHandler_PipelineStatsWithoutPipeline(t *testing.T) {
	handler := NewCommandHandler(nil, Info{})

	resp := handler.Handle(context.Background(), Command{Method: MethodPipelineStats, ID: "req-4"})
	if resp.Error == nil || resp.Error.Code != ErrCodeInternalError {
		t.Errorf("expected internal error, got %+v", resp)
	}
}

func TestCommandHandler_PluginList(t *testing.T) {
	handler := NewCommandHandler(nil, Info{})

	resp := handler.Handle(context.Background(), Command{Method: MethodPluginList, ID: "req-5"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	lists := resp.Result.(map[string][]string)
	for _, key := range []string{"inputs", "processors", "outputs"} {
		if _, ok := lists[key]; !ok {
			t.Errorf("result missing %q", key)
		}
	}
}

func TestCommandHandler_DaemonShutdown(t *testing.T) {
	handler := NewCommandHandler(nil, Info{})

	resp := handler.Handle(context.Background(), Command{Method: MethodDaemonShutdown, ID: "req-6"})
	if resp.Error == nil {
		t.Error("expected error without shutdown handler")
	}

	called := make(chan struct{})
	handler.SetShutdownFunc(func() { close(called) })

	resp = handler.Handle(context.Background(), Command{Method: MethodDaemonShutdown, ID: "req-7"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Error("shutdown func not called")
	}
}

func TestCommandHandler_UnknownMethod(t *testing.T) {
	handler := NewCommandHandler(nil, Info{})

	resp := handler.Handle(context.Background(), Command{Method: "task_create", ID: "req-8"})
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
	}
}
