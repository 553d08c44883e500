// Package backendtest wraps vendor libraries with call counters so tests can
// assert how often plans reach the vendor.
package backendtest

import (
	"sync/atomic"

	"github.com/born-ml/xform/internal/backend"
)

// Counts records vendor calls across every handle a library created.
type Counts struct {
	Creates    atomic.Int64
	Queries    atomic.Int64
	Configures atomic.Int64
	Executes   atomic.Int64
	Destroys   atomic.Int64
}

// Vendor returns the number of calls of any kind.
func (c *Counts) Vendor() int64 {
	return c.Creates.Load() + c.Queries.Load() + c.Configures.Load() + c.Executes.Load() + c.Destroys.Load()
}

// Live returns created handles not yet destroyed.
func (c *Counts) Live() int64 {
	return c.Creates.Load() - c.Destroys.Load()
}

// FFT counts calls into an FFT library.
type FFT struct {
	Counts
	Lib backend.FFTLibrary

	// OnExecute, when set, sees every execution before the wrapped handle.
	OnExecute func(dir backend.Direction, in, out backend.Ptr)
}

// NewFFT wraps lib.
func NewFFT(lib backend.FFTLibrary) *FFT {
	return &FFT{Lib: lib}
}

// Name returns the wrapped library's name.
func (f *FFT) Name() string { return f.Lib.Name() }

// CreateFFT creates a counted handle.
func (f *FFT) CreateFFT() (backend.FFTHandle, error) {
	f.Creates.Add(1)
	h, err := f.Lib.CreateFFT()
	if err != nil {
		return nil, err
	}
	return &fftHandle{h: h, c: &f.Counts, lib: f}, nil
}

type fftHandle struct {
	h   backend.FFTHandle
	c   *Counts
	lib *FFT
}

func (h *fftHandle) WorkspaceSize(cfg backend.FFTConfig) (int, int, error) {
	h.c.Queries.Add(1)
	return h.h.WorkspaceSize(cfg)
}

func (h *fftHandle) Configure(cfg backend.FFTConfig, ws backend.Workspace) error {
	h.c.Configures.Add(1)
	return h.h.Configure(cfg, ws)
}

func (h *fftHandle) Execute(dir backend.Direction, in, out backend.Ptr) error {
	h.c.Executes.Add(1)
	if h.lib.OnExecute != nil {
		h.lib.OnExecute(dir, in, out)
	}
	return h.h.Execute(dir, in, out)
}

func (h *fftHandle) Destroy() error {
	h.c.Destroys.Add(1)
	return h.h.Destroy()
}

// GEMM counts calls into a GEMM library.
type GEMM struct {
	Counts
	Lib backend.GEMMLibrary
}

// NewGEMM wraps lib.
func NewGEMM(lib backend.GEMMLibrary) *GEMM {
	return &GEMM{Lib: lib}
}

// Name returns the wrapped library's name.
func (g *GEMM) Name() string { return g.Lib.Name() }

// CreateGEMM creates a counted handle.
func (g *GEMM) CreateGEMM() (backend.GEMMHandle, error) {
	g.Creates.Add(1)
	h, err := g.Lib.CreateGEMM()
	if err != nil {
		return nil, err
	}
	return &gemmHandle{h: h, c: &g.Counts}, nil
}

type gemmHandle struct {
	h backend.GEMMHandle
	c *Counts
}

func (h *gemmHandle) WorkspaceSize(cfg backend.GEMMConfig) (int, int, error) {
	h.c.Queries.Add(1)
	return h.h.WorkspaceSize(cfg)
}

func (h *gemmHandle) Configure(cfg backend.GEMMConfig, ws backend.Workspace) error {
	h.c.Configures.Add(1)
	return h.h.Configure(cfg, ws)
}

func (h *gemmHandle) Execute(alpha, beta complex128, a, b, c backend.Ptr) error {
	h.c.Executes.Add(1)
	return h.h.Execute(alpha, beta, a, b, c)
}

func (h *gemmHandle) Destroy() error {
	h.c.Destroys.Add(1)
	return h.h.Destroy()
}

// Solver counts calls into a solver library.
type Solver struct {
	Counts
	Lib backend.SolverLibrary
}

// NewSolver wraps lib.
func NewSolver(lib backend.SolverLibrary) *Solver {
	return &Solver{Lib: lib}
}

// Name returns the wrapped library's name.
func (s *Solver) Name() string { return s.Lib.Name() }

// CreateSolver creates a counted handle.
func (s *Solver) CreateSolver() (backend.SolverHandle, error) {
	s.Creates.Add(1)
	h, err := s.Lib.CreateSolver()
	if err != nil {
		return nil, err
	}
	return &solverHandle{h: h, c: &s.Counts}, nil
}

type solverHandle struct {
	h backend.SolverHandle
	c *Counts
}

func (h *solverHandle) WorkspaceSize(cfg backend.SolverConfig) (int, int, error) {
	h.c.Queries.Add(1)
	return h.h.WorkspaceSize(cfg)
}

func (h *solverHandle) Configure(cfg backend.SolverConfig) error {
	h.c.Configures.Add(1)
	return h.h.Configure(cfg)
}

func (h *solverHandle) Execute(args backend.SolverArgs, ws backend.Workspace) (int, error) {
	h.c.Executes.Add(1)
	return h.h.Execute(args, ws)
}

func (h *solverHandle) Destroy() error {
	h.c.Destroys.Add(1)
	return h.h.Destroy()
}
