package plugin

import (
	"errors"
	"testing"

	"firestige.xyz/tsgate/internal/core"
)

func resetAll() {
	inputReg.Reset()
	processorReg.Reset()
	outputReg.Reset()
}

func TestRegisterAndGetInput(t *testing.T) {
	resetAll()

	RegisterInput("test_in", func() Input {
		return &mockInput{mockPlugin: mockPlugin{name: "test_in"}}
	})

	factory, err := GetInputFactory("test_in")
	if err != nil {
		t.Fatalf("GetInputFactory failed: %v", err)
	}
	if instance := factory(); instance.Name() != "test_in" {
		t.Errorf("Expected name 'test_in', got %s", instance.Name())
	}
}

func TestRegisterAndGetProcessor(t *testing.T) {
	resetAll()

	RegisterProcessor("test_proc", func() Processor {
		return &mockProcessor{mockPlugin: mockPlugin{name: "test_proc"}}
	})

	factory, err := GetProcessorFactory("test_proc")
	if err != nil {
		t.Fatalf("GetProcessorFactory failed: %v", err)
	}
	if instance := factory(); instance.Name() != "test_proc" {
		t.Errorf("Expected name 'test_proc', got %s", instance.Name())
	}
}

func TestRegisterAndGetOutput(t *testing.T) {
	resetAll()

	RegisterOutput("test_out", func() Output {
		return &mockOutput{mockPlugin: mockPlugin{name: "test_out"}}
	})

	factory, err := GetOutputFactory("test_out")
	if err != nil {
		t.Fatalf("GetOutputFactory failed: %v", err)
	}
	if instance := factory(); instance.Name() != "test_out" {
		t.Errorf("Expected name 'test_out', got %s", instance.Name())
	}
}

func TestGetNotFoundReturnsError(t *testing.T) {
	resetAll()

	if _, err := GetInputFactory("nonexistent"); !errors.Is(err, core.ErrPluginNotFound) {
		t.Errorf("Expected ErrPluginNotFound for input, got %v", err)
	}
	if _, err := GetProcessorFactory("nonexistent"); !errors.Is(err, core.ErrPluginNotFound) {
		t.Errorf("Expected ErrPluginNotFound for processor, got %v", err)
	}
	if _, err := GetOutputFactory("nonexistent"); !errors.Is(err, core.ErrPluginNotFound) {
		t.Errorf("Expected ErrPluginNotFound for output, got %v", err)
	}
}

func expectPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for %s", what)
		}
	}()
	fn()
}

func TestRegisterPanics(t *testing.T) {
	resetAll()

	RegisterInput("dup", func() Input { return &mockInput{mockPlugin: mockPlugin{name: "dup"}} })

	expectPanic(t, "duplicate registration", func() {
		RegisterInput("dup", func() Input { return &mockInput{mockPlugin: mockPlugin{name: "dup"}} })
	})
	expectPanic(t, "empty name", func() {
		RegisterOutput("", func() Output { return &mockOutput{} })
	})
	expectPanic(t, "nil factory", func() {
		RegisterProcessor("test", nil)
	})
}

func TestList(t *testing.T) {
	resetAll()

	RegisterInput("in_c", func() Input { return &mockInput{} })
	RegisterInput("in_a", func() Input { return &mockInput{} })
	RegisterInput("in_b", func() Input { return &mockInput{} })
	RegisterOutput("out_z", func() Output { return &mockOutput{} })
	RegisterOutput("out_x", func() Output { return &mockOutput{} })

	inList := ListInputs()
	if len(inList) != 3 || inList[0] != "in_a" || inList[1] != "in_b" || inList[2] != "in_c" {
		t.Errorf("Expected sorted [in_a, in_b, in_c], got %v", inList)
	}

	outList := ListOutputs()
	if len(outList) != 2 || outList[0] != "out_x" || outList[1] != "out_z" {
		t.Errorf("Expected sorted [out_x, out_z], got %v", outList)
	}

	if procList := ListProcessors(); len(procList) != 0 {
		t.Errorf("Expected 0 processors, got %d", len(procList))
	}
}

func TestTypeSeparation(t *testing.T) {
	resetAll()

	// Same name, different kinds should not conflict
	name := "common_name"
	RegisterInput(name, func() Input { return &mockInput{mockPlugin: mockPlugin{name: "in"}} })
	RegisterProcessor(name, func() Processor { return &mockProcessor{mockPlugin: mockPlugin{name: "proc"}} })
	RegisterOutput(name, func() Output { return &mockOutput{mockPlugin: mockPlugin{name: "out"}} })

	inFactory, err := GetInputFactory(name)
	if err != nil || inFactory().Name() != "in" {
		t.Errorf("input lookup mismatch: %v", err)
	}
	procFactory, err := GetProcessorFactory(name)
	if err != nil || procFactory().Name() != "proc" {
		t.Errorf("processor lookup mismatch: %v", err)
	}
	outFactory, err := GetOutputFactory(name)
	if err != nil || outFactory().Name() != "out" {
		t.Errorf("output lookup mismatch: %v", err)
	}
}
