package solver

import (
	"errors"
	"io"
	"log/slog"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/backend/cpu"
	"github.com/born-ml/xform/internal/backend/gonumlib"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/internal/parallel"
	"github.com/born-ml/xform/internal/plan"
	"github.com/born-ml/xform/internal/stream"
	"github.com/born-ml/xform/internal/tensor"
)

// Config controls a Planner.
type Config struct {
	Library      backend.SolverLibrary // Vendor solver; gonum when nil.
	Allocator    *memory.Allocator     // Workspace and scratch; a private allocator when nil.
	CPU          *cpu.CPUBackend       // Transposing copies.
	Parallel     parallel.Config       // Batch fan-out inside a plan.
	ScratchSpace memory.Space          // Space of the column-major scratch.
	Logger       *slog.Logger
}

// DefaultConfig returns the gonum library with parallel batches and
// stream-ordered scratch.
func DefaultConfig() Config {
	return Config{
		Library:      gonumlib.LAPACK{},
		Parallel:     parallel.DefaultConfig(),
		ScratchSpace: memory.AsyncDevice,
	}
}

// Planner dispatches factorizations through one plan cache per family.
type Planner struct {
	lib     backend.SolverLibrary
	alloc   *memory.Allocator
	cpu     *cpu.CPUBackend
	par     parallel.Config
	scratch memory.Space
	logger  *slog.Logger

	plans [numKinds]*plan.Cache[Params, *Plan]
}

// New creates a Planner with empty caches.
func New(cfg Config) *Planner {
	p := &Planner{
		lib:     cfg.Library,
		alloc:   cfg.Allocator,
		cpu:     cfg.CPU,
		par:     cfg.Parallel,
		scratch: cfg.ScratchSpace,
		logger:  cfg.Logger,
	}
	for k := range p.plans {
		p.plans[k] = plan.New[Params, *Plan](backend.SolverKind(k).String(), Hash, Equal)
	}
	if p.lib == nil {
		p.lib = gonumlib.LAPACK{}
	}
	if p.alloc == nil {
		p.alloc = memory.NewAllocator(memory.DefaultConfig())
	}
	if p.cpu == nil {
		p.cpu = cpu.NewWithConfig(cfg.Parallel)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Plan returns the cached plan for params, building it on first use. s is
// the stream the workspace is associated with.
func (p *Planner) Plan(params Params, s *stream.Stream) (*Plan, error) {
	if int(params.Kind) < 0 || int(params.Kind) >= numKinds {
		return nil, errs.New(errs.KindInvalidParameter, "solver", "unknown factorization %d", int(params.Kind))
	}
	c := p.plans[params.Kind]
	return c.LookupOrCreate(params, func() (*Plan, error) {
		pl, err := NewPlan(p.lib, p.alloc, params, p.par, stream.Or(s))
		if err != nil {
			return nil, err
		}
		p.logger.Debug("plan created", "cache", c.Name(), "library", p.lib.Name(), "params", params)
		return pl, nil
	})
}

// call tracks the scratch of one dispatch and the work that follows the
// factorization.
type call struct {
	p        *Planner
	s        *stream.Stream
	scratch  []*memory.Scratch
	after    []func() error
	tolerate bool // Non-zero info is a result, not an error.
}

func (c *call) alloc(storage tensor.Shape, dt tensor.DataType) (*tensor.View, error) {
	scr, err := c.p.alloc.Scratch(c.p.scratch, storage.NumElements()*dt.Size(), c.s)
	if err != nil {
		return nil, err
	}
	c.scratch = append(c.scratch, scr)
	return tensor.NewView(scr.Block(), storage, dt)
}

// matrix returns column-major scratch with the logical shape given.
func (c *call) matrix(shape tensor.Shape, dt tensor.DataType) (*tensor.View, error) {
	storage := shape.Clone()
	r := len(storage)
	storage[r-1], storage[r-2] = storage[r-2], storage[r-1]
	v, err := c.alloc(storage, dt)
	if err != nil {
		return nil, err
	}
	return v.PermuteMatrix(), nil
}

// vector returns contiguous scratch.
func (c *call) vector(shape tensor.Shape, dt tensor.DataType) (*tensor.View, error) {
	return c.alloc(shape, dt)
}

// copyBack schedules a copy of src into dst after the factorization.
func (c *call) copyBack(dst, src *tensor.View) {
	c.after = append(c.after, func() error {
		return c.p.cpu.Copy(dst, src)
	})
}

func (c *call) release() {
	for _, scr := range c.scratch {
		_ = scr.ReleaseAfter(c.s)
	}
}

// run transposes in into column-major scratch, factors it and queues the
// follow-up work. setup receives the scratch matrix and returns the
// remaining operands.
//
// The factorization is the one blocking point: its info values are read
// back before run returns.
func (p *Planner) run(params Params, in *tensor.View, s *stream.Stream, setup func(c *call, a *tensor.View) (Operands, error)) error {
	pl, err := p.Plan(params, s)
	if err != nil {
		return err
	}

	c := &call{p: p, s: s}
	defer c.release()

	a, err := c.matrix(in.Shape(), in.DType())
	if err != nil {
		return err
	}
	ops, err := setup(c, a)
	if err != nil {
		return err
	}
	ops.A = a

	if err := s.Submit(func() error { return p.cpu.Copy(a, in) }); err != nil {
		return err
	}
	err = s.Do(func() error {
		infos, err := pl.Execute(ops)
		if err != nil {
			return err
		}
		if c.tolerate {
			return nil
		}
		for i, info := range infos {
			if info != 0 {
				return errs.New(errs.KindVendor, params.Kind.String(), "matrix %d: info %d", i, info)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, fn := range c.after {
		if err := s.Submit(fn); err != nil {
			return err
		}
	}
	return nil
}

// batchShape returns the batch dimensions of in followed by dims.
func batchShape(in *tensor.View, dims ...int) tensor.Shape {
	r := in.Rank()
	return append(in.Shape()[:r-2:r-2].Clone(), dims...)
}

func checkView(op, name string, v *tensor.View, dt tensor.DataType, shape tensor.Shape) error {
	if v == nil {
		return errs.New(errs.KindInvalidParameter, op, "missing %s", name)
	}
	if v.DType() != dt {
		return errs.New(errs.KindInvalidType, op, "%s is %s, want %s", name, v.DType(), dt)
	}
	if !v.Shape().Equal(shape) {
		return errs.New(errs.KindInvalidSize, op, "%s shape %v, want %v", name, v.Shape(), shape)
	}
	return nil
}

// Cholesky factors the symmetric positive definite matrices of in into out.
// The triangle selected by uplo receives the factor; the other triangle of
// out holds the input's values. out may be in.
func (p *Planner) Cholesky(out, in *tensor.View, uplo backend.Uplo, s *stream.Stream) error {
	s = stream.Or(s)
	params, err := DeduceCholesky(in, uplo, s.ID())
	if err != nil {
		return err
	}
	if err := checkView("cholesky", "output", out, in.DType(), in.Shape()); err != nil {
		return err
	}
	return p.run(params, in, s, func(c *call, a *tensor.View) (Operands, error) {
		c.copyBack(out, a)
		return Operands{}, nil
	})
}

// LU factors in = P*L*U with partial pivoting. out receives L below the
// diagonal (unit diagonal implied) and U on and above it; piv receives the
// 1-based row interchanges as int64.
func (p *Planner) LU(out, piv, in *tensor.View, s *stream.Stream) error {
	s = stream.Or(s)
	params, err := DeduceLU(in, s.ID())
	if err != nil {
		return err
	}
	if err := checkView("lu", "output", out, in.DType(), in.Shape()); err != nil {
		return err
	}
	if err := checkView("lu", "pivots", piv, tensor.Int64, batchShape(in, params.K())); err != nil {
		return err
	}
	return p.run(params, in, s, func(c *call, a *tensor.View) (Operands, error) {
		ipiv, err := c.vector(piv.Shape(), tensor.Int64)
		if err != nil {
			return Operands{}, err
		}
		c.copyBack(out, a)
		c.copyBack(piv, ipiv)
		return Operands{Ipiv: ipiv}, nil
	})
}

// QR factors in = Q*R. out receives R on and above the diagonal and the
// Householder vectors below it; tau receives their scalars.
func (p *Planner) QR(out, tau, in *tensor.View, s *stream.Stream) error {
	s = stream.Or(s)
	params, err := DeduceQR(in, s.ID())
	if err != nil {
		return err
	}
	if err := checkView("qr", "output", out, in.DType(), in.Shape()); err != nil {
		return err
	}
	if err := checkView("qr", "tau", tau, in.DType(), batchShape(in, params.K())); err != nil {
		return err
	}
	return p.run(params, in, s, func(c *call, a *tensor.View) (Operands, error) {
		t, err := c.vector(tau.Shape(), in.DType())
		if err != nil {
			return Operands{}, err
		}
		c.copyBack(out, a)
		c.copyBack(tau, t)
		return Operands{Tau: t}, nil
	})
}

// SVD computes in = U*diag(S)*VT. jobU and jobVT select all, the leading
// min(m, n) or none of the singular vectors; u and vt may be nil when their
// job is SVDNone. in is left unchanged.
func (p *Planner) SVD(u, sv, vt, in *tensor.View, jobU, jobVT backend.SVDJob, s *stream.Stream) error {
	s = stream.Or(s)
	params, err := DeduceSVD(in, jobU, jobVT, s.ID())
	if err != nil {
		return err
	}
	dt := in.DType()
	if err := checkView("svd", "S", sv, dt.Real(), batchShape(in, params.K())); err != nil {
		return err
	}
	uCols, vtRows := params.UCols(), params.VTRows()
	if uCols > 0 {
		if err := checkView("svd", "U", u, dt, batchShape(in, params.M, uCols)); err != nil {
			return err
		}
	}
	if vtRows > 0 {
		if err := checkView("svd", "VT", vt, dt, batchShape(in, vtRows, params.N)); err != nil {
			return err
		}
	}

	return p.run(params, in, s, func(c *call, _ *tensor.View) (Operands, error) {
		var ops Operands
		var err error
		if ops.S, err = c.vector(sv.Shape(), dt.Real()); err != nil {
			return ops, err
		}
		c.copyBack(sv, ops.S)
		if uCols > 0 {
			if ops.U, err = c.matrix(u.Shape(), dt); err != nil {
				return ops, err
			}
			c.copyBack(u, ops.U)
		}
		if vtRows > 0 {
			if ops.VT, err = c.matrix(vt.Shape(), dt); err != nil {
				return ops, err
			}
			c.copyBack(vt, ops.VT)
		}
		return ops, nil
	})
}

// Eig computes the eigenvalues of the symmetric matrices of in, reading
// the triangle selected by uplo. w receives them in ascending order. With
// EigVectors the columns of out receive the eigenvectors; with
// EigValuesOnly out may be nil.
func (p *Planner) Eig(out, w, in *tensor.View, jobZ backend.EigJob, uplo backend.Uplo, s *stream.Stream) error {
	s = stream.Or(s)
	params, err := DeduceEig(in, jobZ, uplo, s.ID())
	if err != nil {
		return err
	}
	if err := checkView("eig", "W", w, in.DType().Real(), batchShape(in, params.N)); err != nil {
		return err
	}
	if jobZ == backend.EigVectors {
		if err := checkView("eig", "vectors", out, in.DType(), in.Shape()); err != nil {
			return err
		}
	}
	return p.run(params, in, s, func(c *call, a *tensor.View) (Operands, error) {
		vals, err := c.vector(w.Shape(), in.DType().Real())
		if err != nil {
			return Operands{}, err
		}
		c.copyBack(w, vals)
		if jobZ == backend.EigVectors {
			c.copyBack(out, a)
		}
		return Operands{W: vals}, nil
	})
}

// Det writes the determinant of every square matrix of in to out, whose
// shape is the batch dimensions of in (any single-element view for one
// matrix). Singular matrices give 0.
func (p *Planner) Det(out, in *tensor.View, s *stream.Stream) error {
	s = stream.Or(s)
	params, err := DeduceLU(in, s.ID())
	if err != nil {
		return err
	}
	if err := checkSquare(params); err != nil {
		return err
	}
	switch in.DType() {
	case tensor.Float32, tensor.Float64:
	default:
		return errs.New(errs.KindNotSupported, "det", "%s determinant", in.DType())
	}
	if out == nil || out.DType() != in.DType() {
		return errs.New(errs.KindInvalidType, "det", "output must be %s", in.DType())
	}
	if want := batchShape(in); out.NumElements() != params.Batch || (len(want) > 0 && !out.Shape().Equal(want)) {
		return errs.New(errs.KindInvalidSize, "det", "output shape %v for %d matrices", out.Shape(), params.Batch)
	}

	return p.run(params, in, s, func(c *call, a *tensor.View) (Operands, error) {
		ipiv, err := c.vector(batchShape(in, params.N), tensor.Int64)
		if err != nil {
			return Operands{}, err
		}
		c.tolerate = true
		c.after = append(c.after, func() error {
			if in.DType() == tensor.Float32 {
				determinants[float32](out, a, ipiv, params.N)
			} else {
				determinants[float64](out, a, ipiv, params.N)
			}
			return nil
		})
		return Operands{Ipiv: ipiv}, nil
	})
}

// determinants multiplies the diagonals of the column-major LU factors in
// a, flipping the sign once per row interchange.
func determinants[T tensor.Float](out, a, ipiv *tensor.View, n int) {
	r := a.Rank()
	data, piv := tensor.Data[T](a), tensor.Data[int64](ipiv)
	aOff, pOff := a.OuterOffsets(r-2), ipiv.OuterOffsets(r-2)
	diag := a.Stride(r-2) + a.Stride(r-1)

	dst := tensor.Data[T](out)
	i := 0
	tensor.ForEachOffset(out, func(off int) {
		det := T(1)
		for j := 0; j < n; j++ {
			det *= data[aOff[i]+j*diag]
			if piv[pOff[i]+j] != int64(j+1) {
				det = -det
			}
		}
		dst[off] = det
		i++
	})
}

// Stats returns the statistics of every plan cache.
func (p *Planner) Stats() map[string]plan.Stats {
	out := make(map[string]plan.Stats, numKinds)
	for _, c := range p.plans {
		out[c.Name()] = c.Stats()
	}
	return out
}

// Close releases every cached plan.
func (p *Planner) Close() error {
	errList := make([]error, 0, numKinds)
	for _, c := range p.plans {
		errList = append(errList, c.Close())
	}
	err := errors.Join(errList...)
	if err != nil {
		p.logger.Warn("solver plans failed to release", "error", err)
	}
	return err
}
