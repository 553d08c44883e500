package fft

import (
	"errors"
	"io"
	"log/slog"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/backend/cpu"
	"github.com/born-ml/xform/internal/backend/gonumlib"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/internal/plan"
	"github.com/born-ml/xform/internal/stream"
	"github.com/born-ml/xform/internal/tensor"
)

// Config controls a Planner.
type Config struct {
	Library      backend.FFTLibrary // Vendor FFT; gonum when nil.
	Allocator    *memory.Allocator  // Workspace and scratch; a private allocator when nil.
	CPU          *cpu.CPUBackend    // Padding copies and inverse scaling.
	ScratchSpace memory.Space       // Space of padding and DCT scratch.
	Logger       *slog.Logger
}

// DefaultConfig returns the gonum library with stream-ordered scratch.
func DefaultConfig() Config {
	return Config{
		Library:      gonumlib.FFT{},
		ScratchSpace: memory.AsyncDevice,
	}
}

// Planner dispatches FFTs through per-rank plan caches.
type Planner struct {
	lib     backend.FFTLibrary
	alloc   *memory.Allocator
	cpu     *cpu.CPUBackend
	scratch memory.Space
	logger  *slog.Logger

	plans1D *plan.Cache[Params, *Plan]
	plans2D *plan.Cache[Params, *Plan]
}

// New creates a Planner with empty caches.
func New(cfg Config) *Planner {
	p := &Planner{
		lib:     cfg.Library,
		alloc:   cfg.Allocator,
		cpu:     cfg.CPU,
		scratch: cfg.ScratchSpace,
		logger:  cfg.Logger,
		plans1D: plan.New[Params, *Plan]("fft1d", Hash, Equal),
		plans2D: plan.New[Params, *Plan]("fft2d", Hash, Equal),
	}
	if p.lib == nil {
		p.lib = gonumlib.FFT{}
	}
	if p.alloc == nil {
		p.alloc = memory.NewAllocator(memory.DefaultConfig())
	}
	if p.cpu == nil {
		p.cpu = cpu.New()
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Plan1D returns the cached plan for a 1D transform of in into out on s,
// building it on first use. The stored lengths must already agree.
func (p *Planner) Plan1D(out, in *tensor.View, s *stream.Stream) (*Plan, error) {
	s = stream.Or(s)
	params, err := Deduce1D(out, in, s.ID())
	if err != nil {
		return nil, err
	}
	return p.lookup(p.plans1D, params, s)
}

// Plan2D is Plan1D for transforms over the last two dimensions.
func (p *Planner) Plan2D(out, in *tensor.View, s *stream.Stream) (*Plan, error) {
	s = stream.Or(s)
	params, err := Deduce2D(out, in, s.ID())
	if err != nil {
		return nil, err
	}
	return p.lookup(p.plans2D, params, s)
}

func (p *Planner) lookup(c *plan.Cache[Params, *Plan], params Params, s *stream.Stream) (*Plan, error) {
	return c.LookupOrCreate(params, func() (*Plan, error) {
		pl, err := NewPlan(p.lib, p.alloc, params, s)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("plan created", "cache", c.Name(), "params", params)
		return pl, nil
	})
}

// FFT runs the forward transform of in along its last dimension into out.
//
// The input is zero-padded or truncated along the last dimension to the
// length out implies: out's length for complex transforms, 2*(len(out)-1)
// for real-to-complex transforms unless len(in)/2+1 already matches.
func (p *Planner) FFT(out, in *tensor.View, s *stream.Stream) error {
	return p.run1D(backend.Forward, out, in, s)
}

// IFFT runs the inverse transform of in along its last dimension into out,
// scaled by 1/N. The input is padded or truncated as in FFT.
func (p *Planner) IFFT(out, in *tensor.View, s *stream.Stream) error {
	return p.run1D(backend.Inverse, out, in, s)
}

// FFT2 runs the forward transform over the last two dimensions. No padding
// is applied.
func (p *Planner) FFT2(out, in *tensor.View, s *stream.Stream) error {
	return p.run2D(backend.Forward, out, in, s)
}

// IFFT2 runs the inverse transform over the last two dimensions, scaled by
// 1/(N0*N1).
func (p *Planner) IFFT2(out, in *tensor.View, s *stream.Stream) error {
	return p.run2D(backend.Inverse, out, in, s)
}

func checkDirection(op string, dir backend.Direction, t backend.FFTType) error {
	switch {
	case dir == backend.Forward && t.IsComplexToReal():
		return errs.New(errs.KindInvalidType, op, "complex-to-real transforms run inverse only")
	case dir == backend.Inverse && t.IsRealToComplex():
		return errs.New(errs.KindInvalidType, op, "real-to-complex transforms run forward only")
	}
	return nil
}

func (p *Planner) run1D(dir backend.Direction, out, in *tensor.View, s *stream.Stream) error {
	s = stream.Or(s)
	t, err := checkTypes("fft", out, in)
	if err != nil {
		return err
	}
	if err := checkDirection("fft", dir, t); err != nil {
		return err
	}
	if err := checkOuter("fft", out, in, 1); err != nil {
		return err
	}

	src, scr, err := p.fit(in, inputLength(t, in.Lsize(), out.Lsize()), s)
	if err != nil {
		return err
	}
	defer func() { _ = scr.ReleaseAfter(s) }()

	pl, err := p.Plan1D(out, src, s)
	if err != nil {
		return err
	}
	return p.submit(pl, dir, out, src, s)
}

func (p *Planner) run2D(dir backend.Direction, out, in *tensor.View, s *stream.Stream) error {
	s = stream.Or(s)
	t, err := checkTypes("fft2", out, in)
	if err != nil {
		return err
	}
	if err := checkDirection("fft2", dir, t); err != nil {
		return err
	}
	pl, err := p.Plan2D(out, in, s)
	if err != nil {
		return err
	}
	return p.submit(pl, dir, out, in, s)
}

// submit queues execution and, for inverse transforms, the 1/N scaling.
func (p *Planner) submit(pl *Plan, dir backend.Direction, out, in *tensor.View, s *stream.Stream) error {
	return s.Submit(func() error {
		if err := pl.Execute(dir, out, in); err != nil {
			return err
		}
		if dir == backend.Inverse {
			return p.cpu.Scale(out, 1/float64(pl.Params().Elements()))
		}
		return nil
	})
}

// inputLength returns the stored input length a transform into outL expects.
func inputLength(t backend.FFTType, inL, outL int) int {
	switch {
	case t.IsComplexToComplex():
		return outL
	case t.IsRealToComplex():
		if inL/2+1 == outL {
			return inL
		}
		return 2 * (outL - 1)
	default:
		return outL/2 + 1
	}
}

// fit returns in resized along its last dimension to n. Longer inputs are
// sliced without copying; shorter ones are copied into zero-padded scratch
// on s. The returned scratch is nil unless padding was needed.
func (p *Planner) fit(in *tensor.View, n int, s *stream.Stream) (*tensor.View, *memory.Scratch, error) {
	l, r := in.Lsize(), in.Rank()
	if n <= 0 {
		return nil, nil, errs.New(errs.KindInvalidSize, "fft", "transform length %d", n)
	}
	if l == n {
		return in, nil, nil
	}

	starts, ends := make([]int, r), make([]int, r)
	for i := range ends {
		ends[i] = tensor.End
	}
	if l > n {
		ends[r-1] = n
		v, err := in.Slice(starts, ends)
		return v, nil, err
	}

	shape := in.Shape().Clone()
	shape[r-1] = n
	scr, err := p.alloc.Scratch(p.scratch, shape.NumElements()*in.DType().Size(), s)
	if err != nil {
		return nil, nil, err
	}
	padded, head, tail, err := padViews(scr.Block(), shape, in.DType(), l)
	if err != nil {
		_ = scr.Release()
		return nil, nil, err
	}
	err = s.Submit(func() error {
		p.cpu.Zero(tail)
		return p.cpu.Copy(head, in)
	})
	if err != nil {
		_ = scr.Release()
		return nil, nil, err
	}
	return padded, scr, nil
}

// padViews lays a view of shape over b and splits its last dimension at l.
func padViews(b *memory.Block, shape tensor.Shape, dt tensor.DataType, l int) (padded, head, tail *tensor.View, err error) {
	if padded, err = tensor.NewView(b, shape, dt); err != nil {
		return nil, nil, nil, err
	}
	r := len(shape)
	starts, ends := make([]int, r), make([]int, r)
	for i := range ends {
		ends[i] = tensor.End
	}
	ends[r-1] = l
	if head, err = padded.Slice(starts, ends); err != nil {
		return nil, nil, nil, err
	}
	starts[r-1], ends[r-1] = l, tensor.End
	if tail, err = padded.Slice(starts, ends); err != nil {
		return nil, nil, nil, err
	}
	return padded, head, tail, nil
}

// Stats returns the statistics of both plan caches.
func (p *Planner) Stats() map[string]plan.Stats {
	return map[string]plan.Stats{
		p.plans1D.Name(): p.plans1D.Stats(),
		p.plans2D.Name(): p.plans2D.Stats(),
	}
}

// Close releases every cached plan.
func (p *Planner) Close() error {
	err := errors.Join(p.plans1D.Close(), p.plans2D.Close())
	if err != nil {
		p.logger.Warn("fft plans failed to release", "error", err)
	}
	return err
}
