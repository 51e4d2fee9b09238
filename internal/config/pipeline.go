// Package config handles configuration structures.
package config

import (
	"fmt"

	"firestige.xyz/tsgate/internal/core"
)

const defaultBufferSize = 1024

// PipelineConfig describes the single packet pipeline:
// one input, an ordered processor chain and one output.
type PipelineConfig struct {
	ID         string         `mapstructure:"id" yaml:"id"`
	BufferSize int            `mapstructure:"buffer_size" yaml:"buffer_size"` // input → processing channel capacity
	Input      PluginConfig   `mapstructure:"input" yaml:"input"`
	Processors []PluginConfig `mapstructure:"processors" yaml:"processors"`
	Output     PluginConfig   `mapstructure:"output" yaml:"output"`
}

// PluginConfig selects a registered plugin and carries its options.
// Options are decoded by the plugin itself in Init.
type PluginConfig struct {
	Type    string         `mapstructure:"type" yaml:"type"`
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// Validate validates pipeline configuration and applies defaults.
func (pc *PipelineConfig) Validate() error {
	if pc.ID == "" {
		pc.ID = "main"
	}
	if pc.BufferSize < 0 {
		return fmt.Errorf("%w: pipeline.buffer_size must be >= 0, got %d", core.ErrConfigInvalid, pc.BufferSize)
	}
	if pc.BufferSize == 0 {
		pc.BufferSize = defaultBufferSize
	}

	if pc.Input.Type == "" {
		return fmt.Errorf("%w: pipeline.input.type is required", core.ErrConfigInvalid)
	}
	if pc.Output.Type == "" {
		return fmt.Errorf("%w: pipeline.output.type is required", core.ErrConfigInvalid)
	}
	for i, p := range pc.Processors {
		if p.Type == "" {
			return fmt.Errorf("%w: pipeline.processors[%d].type is required", core.ErrConfigInvalid, i)
		}
	}

	return nil
}
