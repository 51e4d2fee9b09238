// Package pipeline implements pipeline construction.
package pipeline

import (
	"fmt"
	"log/slog"

	"firestige.xyz/tsgate/internal/config"
	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/pkg/plugin"
)

// Build creates plugin instances from the registry, initializes them with
// their options and assembles the pipeline.
func Build(cfg config.PipelineConfig, logger *slog.Logger) (*Pipeline, error) {
	input, err := buildInput(cfg.Input)
	if err != nil {
		return nil, err
	}

	processors := make([]plugin.Processor, 0, len(cfg.Processors))
	for i, pc := range cfg.Processors {
		proc, err := buildProcessor(pc)
		if err != nil {
			return nil, fmt.Errorf("processors[%d]: %w", i, err)
		}
		processors = append(processors, proc)
	}

	output, err := buildOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	return New(Config{
		ID:         cfg.ID,
		Input:      input,
		Processors: processors,
		Output:     output,
		BufferSize: cfg.BufferSize,
		Logger:     logger,
	})
}

func buildInput(pc config.PluginConfig) (plugin.Input, error) {
	factory, err := plugin.GetInputFactory(pc.Type)
	if err != nil {
		return nil, err
	}
	in := factory()
	if err := initPlugin(in, pc); err != nil {
		return nil, err
	}
	return in, nil
}

func buildProcessor(pc config.PluginConfig) (plugin.Processor, error) {
	factory, err := plugin.GetProcessorFactory(pc.Type)
	if err != nil {
		return nil, err
	}
	proc := factory()
	if err := initPlugin(proc, pc); err != nil {
		return nil, err
	}
	return proc, nil
}

func buildOutput(pc config.PluginConfig) (plugin.Output, error) {
	factory, err := plugin.GetOutputFactory(pc.Type)
	if err != nil {
		return nil, err
	}
	out := factory()
	if err := initPlugin(out, pc); err != nil {
		return nil, err
	}
	return out, nil
}

func initPlugin(p plugin.Plugin, pc config.PluginConfig) error {
	if err := p.Init(pc.Options); err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrPluginInitFailed, pc.Type, err)
	}
	return nil
}
