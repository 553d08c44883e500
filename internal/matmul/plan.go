package matmul

import (
	"errors"
	"sync"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/internal/plan"
	"github.com/born-ml/xform/internal/stream"
	"github.com/born-ml/xform/internal/tensor"
)

// Plan is a configured vendor GEMM for one Params value.
type Plan struct {
	params Params
	alloc  *memory.Allocator
	handle backend.GEMMHandle
	host   *memory.Block
	device *memory.Block

	life plan.Lifecycle
	mu   sync.Mutex
}

// NewPlan creates and configures a GEMM handle from lib for p.
func NewPlan(lib backend.GEMMLibrary, alloc *memory.Allocator, p Params, s *stream.Stream) (_ *Plan, err error) {
	if err := p.validate("matmul plan"); err != nil {
		return nil, err
	}
	cfg := p.Config()

	pl := &Plan{params: p, alloc: alloc}
	defer func() {
		if err != nil {
			_ = pl.Release()
		}
	}()

	if pl.handle, err = lib.CreateGEMM(); err != nil {
		return nil, errs.Wrap(errs.KindVendor, "matmul plan", err)
	}
	hostBytes, deviceBytes, err := pl.handle.WorkspaceSize(cfg)
	if err != nil {
		return nil, err
	}
	var ws backend.Workspace
	if hostBytes > 0 {
		if pl.host, err = alloc.Alloc(memory.Host, hostBytes, s); err != nil {
			return nil, err
		}
		ws.Host = pl.host.Bytes()
	}
	if deviceBytes > 0 {
		if pl.device, err = alloc.Alloc(memory.Device, deviceBytes, s); err != nil {
			return nil, err
		}
		ws.Device = pl.device.Bytes()
	}
	if err := pl.handle.Configure(cfg, ws); err != nil {
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

// Execute computes C = alpha*A*B + beta*C for every batch entry. The views
// must match the layout the plan was built for.
func (p *Plan) Execute(c, a, b *tensor.View, alpha, beta complex128) error {
	if err := p.life.CheckReady("matmul exec"); err != nil {
		return err
	}
	got, err := Deduce(c, a, b, p.params.Provider, p.params.Stream)
	if err != nil {
		return err
	}
	if got != p.params {
		return errs.New(errs.KindInvalidSize, "matmul exec", "views do not match the plan layout")
	}

	o := orient(c, a, b)
	outer := o.c.Rank() - 2
	aOff, bOff, cOff := o.a.OuterOffsets(outer), o.b.OuterOffsets(outer), o.c.OuterOffsets(outer)
	aPtr, bPtr, cPtr := backend.PtrOf(o.a, 0), backend.PtrOf(o.b, 0), backend.PtrOf(o.c, 0)

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range cOff {
		aPtr.Off, bPtr.Off, cPtr.Off = aOff[i], bOff[i], cOff[i]
		if err := p.handle.Execute(alpha, beta, aPtr, bPtr, cPtr); err != nil {
			return errs.Wrap(errs.KindVendor, "matmul exec", err)
		}
	}
	return nil
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
			errList = append(errList, errs.Wrap(errs.KindVendor, "matmul release", err))
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
