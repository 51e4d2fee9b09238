// Package pipeline implements the packet processing pipeline engine.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/pkg/plugin"
)

// Pipeline runs one input, an ordered processor chain and one output.
//
// The input runs on its own goroutine and feeds a bounded channel. A single
// processing goroutine takes each packet through the processors and, unless
// a processor empties the slot, hands it to the output.
type Pipeline struct {
	id         string
	input      plugin.Input
	processors []plugin.Processor
	output     plugin.Output
	metrics    *Metrics
	logger     *slog.Logger
	realTime   bool

	packets chan core.Packet

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	stopOnce sync.Once
	stopErr  error
}

// Config contains pipeline configuration.
type Config struct {
	ID         string
	Input      plugin.Input
	Processors []plugin.Processor
	Output     plugin.Output
	BufferSize int // input → processing channel capacity
	Logger     *slog.Logger
}

// New creates a new pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Input == nil {
		return nil, fmt.Errorf("%w: pipeline requires an input", core.ErrConfigInvalid)
	}
	if cfg.Output == nil {
		return nil, fmt.Errorf("%w: pipeline requires an output", core.ErrConfigInvalid)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.ID == "" {
		cfg.ID = "main"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	realTime := plugin.IsRealTime(cfg.Input) || plugin.IsRealTime(cfg.Output)
	for _, proc := range cfg.Processors {
		realTime = realTime || plugin.IsRealTime(proc)
	}

	return &Pipeline{
		id:         cfg.ID,
		input:      cfg.Input,
		processors: cfg.Processors,
		output:     cfg.Output,
		metrics:    NewMetrics(cfg.ID),
		logger:     cfg.Logger.With("pipeline_id", cfg.ID),
		realTime:   realTime,
		packets:    make(chan core.Packet, cfg.BufferSize),
		done:       make(chan struct{}),
	}, nil
}

// ID returns the pipeline id.
func (p *Pipeline) ID() string { return p.id }

// RealTime reports whether the processing goroutine is pinned to an OS thread.
func (p *Pipeline) RealTime() bool { return p.realTime }

// Start starts plugins (output, processors, input) and the pipeline
// goroutines. If a plugin fails to start, those already started are
// stopped in reverse order.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("pipeline %s already started", p.id)
	}

	p.logger.Info("pipeline starting", "real_time", p.realTime, "processors", len(p.processors))

	order := p.startOrder()
	for i, pl := range order {
		if err := pl.Start(ctx); err != nil {
			rollback := stopAll(context.Background(), reversed(order[:i]))
			return multierr.Append(fmt.Errorf("start %s: %w", pl.Name(), err), rollback)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return p.inputLoop(gctx) })
	g.Go(func() error { return p.processLoop(gctx) })

	p.cancel = cancel
	p.started = true

	go func() {
		p.err = g.Wait()
		cancel()
		if p.err != nil {
			p.logger.Error("pipeline terminated", "error", p.err)
		} else {
			p.logger.Info("pipeline finished")
		}
		close(p.done)
	}()

	return nil
}

// startOrder returns plugins in start order: output, processors, input.
func (p *Pipeline) startOrder() []plugin.Plugin {
	order := make([]plugin.Plugin, 0, len(p.processors)+2)
	order = append(order, p.output)
	for _, proc := range p.processors {
		order = append(order, proc)
	}
	return append(order, p.input)
}

// Stop cancels the pipeline, stops plugins in reverse start order and waits
// for the pipeline goroutines. It is idempotent.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}

	p.stopOnce.Do(func() {
		p.logger.Info("pipeline stopping")
		p.cancel()

		// Stopping the output before joining unblocks a send stuck in a
		// transport write.
		p.stopErr = stopAll(ctx, reversed(p.startOrder()))

		select {
		case <-p.done:
		case <-ctx.Done():
			p.stopErr = multierr.Append(p.stopErr, fmt.Errorf("pipeline %s stop: %w", p.id, ctx.Err()))
			return
		}

		st := p.Stats()
		p.logger.Info("pipeline stopped",
			"received", st.Received,
			"sent", st.Sent,
			"emptied", st.Emptied,
			"errors", st.Errors,
		)
	})
	return p.stopErr
}

// Wait blocks until the pipeline goroutines end and returns the error that
// ended them: nil on a clean stop or input end of stream. It must be called
// after a successful Start.
func (p *Pipeline) Wait() error {
	<-p.done
	return p.err
}

// Done is closed when the pipeline goroutines have ended.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// inputLoop runs the input until it returns, then closes the channel.
func (p *Pipeline) inputLoop(ctx context.Context) error {
	defer close(p.packets)

	if err := p.input.Receive(ctx, p.packets); err != nil && ctx.Err() == nil {
		return fmt.Errorf("input %s: %w", p.input.Name(), err)
	}
	return nil
}

// processLoop is the main processing loop.
func (p *Pipeline) processLoop(ctx context.Context) error {
	if p.realTime {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case pkt, ok := <-p.packets:
			if !ok {
				// Channel closed, input ended
				return nil
			}

			if err := p.processPacket(ctx, pkt); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// processPacket takes one packet through processors and output.
func (p *Pipeline) processPacket(ctx context.Context, pkt core.Packet) error {
	start := time.Now()
	p.metrics.onReceived()

	for _, proc := range p.processors {
		keep := proc.Process(&pkt)
		p.metrics.Processed.Add(1)
		if !keep {
			p.metrics.onEmptied()
			return nil
		}
	}

	if err := p.output.Send(ctx, &pkt); err != nil {
		p.metrics.onError()
		return fmt.Errorf("%w: output %s: %w", core.ErrPipelineStopped, p.output.Name(), err)
	}
	p.metrics.onSent(time.Since(start).Seconds())
	return nil
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return p.metrics.Snapshot()
}

// PluginStats returns counters of plugins implementing plugin.StatsProvider,
// keyed by role and name (e.g. "output/session").
func (p *Pipeline) PluginStats() map[string]any {
	out := make(map[string]any)
	add := func(role string, pl plugin.Plugin) {
		if sp, ok := pl.(plugin.StatsProvider); ok {
			out[role+"/"+pl.Name()] = sp.Stats()
		}
	}
	add("input", p.input)
	for _, proc := range p.processors {
		add("processor", proc)
	}
	add("output", p.output)
	return out
}

func stopAll(ctx context.Context, plugins []plugin.Plugin) error {
	var err error
	for _, pl := range plugins {
		if serr := pl.Stop(ctx); serr != nil {
			err = multierr.Append(err, fmt.Errorf("stop %s: %w", pl.Name(), serr))
		}
	}
	return err
}

func reversed(plugins []plugin.Plugin) []plugin.Plugin {
	out := make([]plugin.Plugin, len(plugins))
	for i, pl := range plugins {
		out[len(plugins)-1-i] = pl
	}
	return out
}
