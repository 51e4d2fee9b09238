// Package plugin defines the plugin lifecycle interface.
package plugin

import "context"

// Plugin is the base interface for all plugins.
type Plugin interface {
	Name() string
	Init(cfg map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RealTimer is an optional interface for plugins that must run on the
// pipeline's latency-sensitive path. When any plugin of a pipeline reports
// true, the processing goroutine is pinned to its OS thread.
type RealTimer interface {
	RealTime() bool
}

// IsRealTime reports whether p implements RealTimer and returns true.
func IsRealTime(p Plugin) bool {
	rt, ok := p.(RealTimer)
	return ok && rt.RealTime()
}

// StatsProvider is an optional interface for plugins exposing runtime
// counters to the control plane. The value must be JSON-encodable.
type StatsProvider interface {
	Stats() any
}
