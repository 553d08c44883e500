// Package cpu implements the host kernels the planned transforms need
// around their vendor calls: strided copies, zeroing and scaling, plus a
// reference GEMM library built from plain loops.
package cpu

import "github.com/born-ml/xform/internal/parallel"

// CPUBackend runs host kernels over tensor views.
type CPUBackend struct {
	parallel parallel.Config
}

// New creates a CPU backend using the default parallel configuration.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{parallel: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Parallel returns the backend's parallel configuration.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.parallel
}
