package plugin

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/tsgate/internal/core"
)

// InputFactory creates a new Input instance.
type InputFactory func() Input

// ProcessorFactory creates a new Processor instance.
type ProcessorFactory func() Processor

// OutputFactory creates a new Output instance.
type OutputFactory func() Output

// registry is a name → factory table for one plugin kind.
type registry[F any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]F
}

func newRegistry[F any](kind string) *registry[F] {
	return &registry[F]{kind: kind, factories: make(map[string]F)}
}

// register panics on empty names, nil factories and duplicates:
// registration happens in init() and any of these is a programming error.
func (r *registry[F]) register(name string, factory F, isNil bool) {
	if name == "" {
		panic(fmt.Sprintf("plugin: %s registered with empty name", r.kind))
	}
	if isNil {
		panic(fmt.Sprintf("plugin: %s %q registered with nil factory", r.kind, name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("plugin: %s %q already registered", r.kind, name))
	}
	r.factories[name] = factory
}

func (r *registry[F]) get(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s %q", core.ErrPluginNotFound, r.kind, name)
	}
	return f, nil
}

func (r *registry[F]) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset removes all registrations. Intended for tests.
func (r *registry[F]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]F)
}

var (
	inputReg     = newRegistry[InputFactory]("input")
	processorReg = newRegistry[ProcessorFactory]("processor")
	outputReg    = newRegistry[OutputFactory]("output")
)

// RegisterInput registers an input factory under name.
func RegisterInput(name string, factory InputFactory) {
	inputReg.register(name, factory, factory == nil)
}

// RegisterProcessor registers a processor factory under name.
func RegisterProcessor(name string, factory ProcessorFactory) {
	processorReg.register(name, factory, factory == nil)
}

// RegisterOutput registers an output factory under name.
func RegisterOutput(name string, factory OutputFactory) {
	outputReg.register(name, factory, factory == nil)
}

// GetInputFactory returns the input factory registered under name.
func GetInputFactory(name string) (InputFactory, error) { return inputReg.get(name) }

// GetProcessorFactory returns the processor factory registered under name.
func GetProcessorFactory(name string) (ProcessorFactory, error) { return processorReg.get(name) }

// GetOutputFactory returns the output factory registered under name.
func GetOutputFactory(name string) (OutputFactory, error) { return outputReg.get(name) }

// ListInputs returns registered input names in sorted order.
func ListInputs() []string { return inputReg.list() }

// ListProcessors returns registered processor names in sorted order.
func ListProcessors() []string { return processorReg.list() }

// ListOutputs returns registered output names in sorted order.
func ListOutputs() []string { return outputReg.list() }
