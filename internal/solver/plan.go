package solver

import (
	"context"
	"errors"
	"sync"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/internal/parallel"
	"github.com/born-ml/xform/internal/plan"
	"github.com/born-ml/xform/internal/stream"
	"github.com/born-ml/xform/internal/tensor"
)

// Operands are the column-major buffers of one batched factorization. A,
// U and VT have column-major matrices in their last two dimensions; the
// vector operands are contiguous in their last dimension. Operands a
// family does not use are nil.
type Operands struct {
	A    *tensor.View
	Ipiv *tensor.View // int64, 1-based.
	Tau  *tensor.View
	S    *tensor.View
	U    *tensor.View
	VT   *tensor.View
	W    *tensor.View
}

// Plan is a configured vendor solver for one Params value. The workspace
// holds one slice per batch entry so the batch runs in parallel.
type Plan struct {
	params    Params
	alloc     *memory.Allocator
	handle    backend.SolverHandle
	par       parallel.Config
	host      *memory.Block
	device    *memory.Block
	hostPer   int
	devicePer int

	life plan.Lifecycle
	mu   sync.Mutex
}

// NewPlan creates and configures a solver handle from lib for p and sizes
// its workspace for p.Batch matrices.
func NewPlan(lib backend.SolverLibrary, alloc *memory.Allocator, p Params, par parallel.Config, s *stream.Stream) (_ *Plan, err error) {
	op := p.Kind.String() + " plan"
	if err := p.validate(op); err != nil {
		return nil, err
	}

	pl := &Plan{params: p, alloc: alloc, par: par}
	defer func() {
		if err != nil {
			_ = pl.Release()
		}
	}()

	if pl.handle, err = lib.CreateSolver(); err != nil {
		return nil, errs.Wrap(errs.KindVendor, op, err)
	}
	cfg := p.Config()
	if pl.hostPer, pl.devicePer, err = pl.handle.WorkspaceSize(cfg); err != nil {
		return nil, err
	}
	if pl.hostPer > 0 {
		if pl.host, err = alloc.Alloc(memory.Host, pl.hostPer*p.Batch, s); err != nil {
			return nil, err
		}
	}
	if pl.devicePer > 0 {
		if pl.device, err = alloc.Alloc(memory.Device, pl.devicePer*p.Batch, s); err != nil {
			return nil, err
		}
	}
	if err := pl.handle.Configure(cfg); err != nil {
		return nil, err
	}

	pl.life.Advance(plan.Uninitialized, plan.Configured)
	pl.life.Advance(plan.Configured, plan.Ready)
	return pl, nil
}

// Params returns the plan's parameters.
func (p *Plan) Params() Params {
	return p.params
}

// State returns the plan's lifecycle state.
func (p *Plan) State() plan.State {
	return p.life.State()
}

func (p *Plan) workspace() backend.Workspace {
	var ws backend.Workspace
	if p.host != nil {
		ws.Host = p.host.Bytes()
	}
	if p.device != nil {
		ws.Device = p.device.Bytes()
	}
	return ws
}

// batchArgs holds the per-matrix element offsets of every operand.
type batchArgs struct {
	a, ipiv, tau, s, u, vt, w []int
}

func (p *Plan) check(ops Operands) (batchArgs, error) {
	prm := p.params
	op := prm.Kind.String() + " exec"
	var (
		b   batchArgs
		err error
	)
	if b.a, err = checkMatrix(op, "A", ops.A, prm.M, prm.N, prm.LDA, prm.Batch, prm.DType); err != nil {
		return b, err
	}
	rdt := prm.DType.Real()
	switch prm.Kind {
	case backend.LU:
		b.ipiv, err = checkVector(op, "ipiv", ops.Ipiv, prm.K(), prm.Batch, tensor.Int64)
	case backend.QR:
		b.tau, err = checkVector(op, "tau", ops.Tau, prm.K(), prm.Batch, prm.DType)
	case backend.SVD:
		if b.s, err = checkVector(op, "S", ops.S, prm.K(), prm.Batch, rdt); err != nil {
			return b, err
		}
		if c := prm.UCols(); c > 0 {
			if b.u, err = checkMatrix(op, "U", ops.U, prm.M, c, max(1, prm.M), prm.Batch, prm.DType); err != nil {
				return b, err
			}
		}
		if r := prm.VTRows(); r > 0 {
			b.vt, err = checkMatrix(op, "VT", ops.VT, r, prm.N, max(1, r), prm.Batch, prm.DType)
		}
	case backend.Eig:
		b.w, err = checkVector(op, "W", ops.W, prm.N, prm.Batch, rdt)
	}
	return b, err
}

func checkMatrix(op, name string, v *tensor.View, rows, cols, ld, batch int, dt tensor.DataType) ([]int, error) {
	if v == nil {
		return nil, errs.New(errs.KindInvalidParameter, op, "missing %s", name)
	}
	if v.DType() != dt {
		return nil, errs.New(errs.KindInvalidType, op, "%s is %s, want %s", name, v.DType(), dt)
	}
	r := v.Rank()
	if r < 2 || v.Size(r-2) != rows || v.Size(r-1) != cols {
		return nil, errs.New(errs.KindInvalidSize, op, "%s shape %v, want %dx%d matrices", name, v.Shape(), rows, cols)
	}
	if (rows > 1 && v.Stride(r-2) != 1) || (cols > 1 && v.Stride(r-1) != ld) {
		return nil, errs.New(errs.KindNotSupported, op, "%s strides %v are not column-major with ld %d", name, v.Strides(), ld)
	}
	offs := v.OuterOffsets(r - 2)
	if len(offs) != batch {
		return nil, errs.New(errs.KindInvalidSize, op, "%s holds %d matrices, want %d", name, len(offs), batch)
	}
	return offs, nil
}

func checkVector(op, name string, v *tensor.View, n, batch int, dt tensor.DataType) ([]int, error) {
	if v == nil {
		return nil, errs.New(errs.KindInvalidParameter, op, "missing %s", name)
	}
	if v.DType() != dt {
		return nil, errs.New(errs.KindInvalidType, op, "%s is %s, want %s", name, v.DType(), dt)
	}
	r := v.Rank()
	if r < 1 || v.Size(r-1) != n {
		return nil, errs.New(errs.KindInvalidSize, op, "%s shape %v, want length %d", name, v.Shape(), n)
	}
	if n > 1 && v.Stride(r-1) != 1 {
		return nil, errs.New(errs.KindNotSupported, op, "%s is not contiguous", name)
	}
	offs := v.OuterOffsets(r - 1)
	if len(offs) != batch {
		return nil, errs.New(errs.KindInvalidSize, op, "%s holds %d vectors, want %d", name, len(offs), batch)
	}
	return offs, nil
}

func ptrAt(v *tensor.View, offs []int, i int) backend.Ptr {
	if offs == nil {
		return backend.Ptr{}
	}
	p := backend.PtrOf(v, 0)
	p.Off = offs[i]
	return p
}

// Execute factors every matrix of the batch and returns the vendor info of
// each. A non-zero info is not an error here; callers decide.
func (p *Plan) Execute(ops Operands) ([]int, error) {
	op := p.params.Kind.String() + " exec"
	if err := p.life.CheckReady(op); err != nil {
		return nil, err
	}
	b, err := p.check(ops)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ws := p.workspace()
	infos := make([]int, p.params.Batch)
	err = parallel.ForErr(context.Background(), p.params.Batch, func(_ context.Context, i int) error {
		args := backend.SolverArgs{
			A:    ptrAt(ops.A, b.a, i),
			Ipiv: ptrAt(ops.Ipiv, b.ipiv, i),
			Tau:  ptrAt(ops.Tau, b.tau, i),
			S:    ptrAt(ops.S, b.s, i),
			U:    ptrAt(ops.U, b.u, i),
			VT:   ptrAt(ops.VT, b.vt, i),
			W:    ptrAt(ops.W, b.w, i),
		}
		info, err := p.handle.Execute(args, ws.Batch(i, p.hostPer, p.devicePer))
		if err != nil {
			return errs.Wrap(errs.KindVendor, op, err)
		}
		infos[i] = info
		return nil
	}, p.par)
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// Release destroys the handle and frees the workspace. Only the first call
// has an effect.
func (p *Plan) Release() error {
	if !p.life.Release() {
		return nil
	}

	var errList []error
	if p.handle != nil {
		if err := p.handle.Destroy(); err != nil {
			errList = append(errList, errs.Wrap(errs.KindVendor, p.params.Kind.String()+" release", err))
		}
	}
	for _, b := range []*memory.Block{p.host, p.device} {
		if b != nil {
			if err := p.alloc.Free(b); err != nil {
				errList = append(errList, err)
			}
		}
	}
	return errors.Join(errList...)
}
