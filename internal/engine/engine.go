// Package engine owns the process-wide state of the transform library: the
// allocator, the CPU kernels and one planner (with its plan caches) per
// transform family. An Engine is constructed explicitly and torn down with
// Close, so tests get fresh caches.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/backend/cpu"
	"github.com/born-ml/xform/internal/backend/gonumlib"
	"github.com/born-ml/xform/internal/fft"
	"github.com/born-ml/xform/internal/matmul"
	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/internal/parallel"
	"github.com/born-ml/xform/internal/plan"
	"github.com/born-ml/xform/internal/solver"
)

// Config controls an Engine.
type Config struct {
	Logger       *slog.Logger    // Plan creation and teardown; nil discards.
	Parallel     parallel.Config // Kernels and solver batches.
	Memory       memory.Config   // Allocator limit and pooling.
	ScratchSpace memory.Space    // Space of padding and transposition scratch.

	// Vendor libraries. Nil selects the gonum implementations.
	FFT    backend.FFTLibrary
	GEMM   map[matmul.Provider]backend.GEMMLibrary
	Solver backend.SolverLibrary
}

// DefaultConfig returns gonum vendors, parallel batches, a pooled
// allocator and stream-ordered scratch.
func DefaultConfig() Config {
	return Config{
		Parallel:     parallel.DefaultConfig(),
		Memory:       memory.DefaultConfig(),
		ScratchSpace: memory.AsyncDevice,
		FFT:          gonumlib.FFT{},
		GEMM:         matmul.DefaultLibraries(),
		Solver:       gonumlib.LAPACK{},
	}
}

// Engine is an explicitly constructed transform context.
type Engine struct {
	id     uuid.UUID
	logger *slog.Logger
	alloc  *memory.Allocator
	cpu    *cpu.CPUBackend

	fft    *fft.Planner
	matmul *matmul.Planner
	solver *solver.Planner

	closeOnce sync.Once
	closeErr  error
}

// New creates an Engine with empty plan caches.
func New(cfg Config) *Engine {
	id := uuid.New()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("engine", id.String())
	memCfg := cfg.Memory
	if memCfg.Logger == nil {
		memCfg.Logger = logger
	}

	e := &Engine{
		id:     id,
		logger: logger,
		alloc:  memory.NewAllocator(memCfg),
		cpu:    cpu.NewWithConfig(cfg.Parallel),
	}
	e.fft = fft.New(fft.Config{
		Library:      cfg.FFT,
		Allocator:    e.alloc,
		CPU:          e.cpu,
		ScratchSpace: cfg.ScratchSpace,
		Logger:       logger,
	})
	e.matmul = matmul.New(matmul.Config{
		Libraries: cfg.GEMM,
		Allocator: e.alloc,
		Logger:    logger,
	})
	e.solver = solver.New(solver.Config{
		Library:      cfg.Solver,
		Allocator:    e.alloc,
		CPU:          e.cpu,
		Parallel:     cfg.Parallel,
		ScratchSpace: cfg.ScratchSpace,
		Logger:       logger,
	})
	return e
}

// ID returns the identifier attached to the engine's log records.
func (e *Engine) ID() uuid.UUID { return e.id }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Allocator returns the allocator backing workspaces and scratch.
func (e *Engine) Allocator() *memory.Allocator { return e.alloc }

// CPU returns the elementwise kernels.
func (e *Engine) CPU() *cpu.CPUBackend { return e.cpu }

// FFT returns the FFT planner.
func (e *Engine) FFT() *fft.Planner { return e.fft }

// MatMul returns the GEMM planner.
func (e *Engine) MatMul() *matmul.Planner { return e.matmul }

// Solver returns the dense solver planner.
func (e *Engine) Solver() *solver.Planner { return e.solver }

// Stats is a snapshot of allocator and plan cache activity.
type Stats struct {
	Memory memory.Stats
	Plans  map[string]plan.Stats // Keyed by cache name.
}

// Stats returns a snapshot of every cache and the allocator.
func (e *Engine) Stats() Stats {
	st := Stats{
		Memory: e.alloc.Stats(),
		Plans:  make(map[string]plan.Stats),
	}
	for _, m := range []map[string]plan.Stats{e.fft.Stats(), e.matmul.Stats(), e.solver.Stats()} {
		maps.Copy(st.Plans, m)
	}
	return st
}

// String formats the statistics, one cache per line.
func (s Stats) String() string {
	var b strings.Builder
	b.WriteString(s.Memory.String())
	names := make([]string, 0, len(s.Plans))
	for name := range s.Plans {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := s.Plans[name]
		fmt.Fprintf(&b, "\nplans %-8s entries %d, hits %d, misses %d, builds %d, failed %d",
			name, c.Entries, c.Hits, c.Misses, c.Builds, c.Failed)
	}
	return b.String()
}

// Close releases every cached plan, then checks the allocator for leaks.
// Further calls return the first result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		err := errors.Join(e.fft.Close(), e.matmul.Close(), e.solver.Close())
		e.closeErr = errors.Join(err, e.alloc.Close())
		if e.closeErr != nil {
			e.logger.Warn("engine teardown", "error", e.closeErr)
		} else {
			e.logger.Debug("engine closed")
		}
	})
	return e.closeErr
}
