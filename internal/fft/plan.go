package fft

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

// Plan is a configured vendor FFT for one Params value.
type Plan struct {
	params Params
	alloc  *memory.Allocator
	handle backend.FFTHandle
	host   *memory.Block
	device *memory.Block

	life plan.Lifecycle
	mu   sync.Mutex // Serializes Execute: the handle owns mutable scratch.
}

// NewPlan creates a vendor handle for p, allocates the workspace it asks for
// from alloc and configures it.
func NewPlan(lib backend.FFTLibrary, alloc *memory.Allocator, p Params, s *stream.Stream) (_ *Plan, err error) {
	if err := p.validate("fft plan"); err != nil {
		return nil, err
	}

	pl := &Plan{params: p, alloc: alloc}
	defer func() {
		if err != nil {
			_ = pl.Release()
		}
	}()

	if pl.handle, err = lib.CreateFFT(); err != nil {
		return nil, errs.Wrap(errs.KindVendor, "fft plan", err)
	}
	cfg := p.Config()
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

// Forward runs the forward transform of in into out.
func (p *Plan) Forward(out, in *tensor.View) error {
	return p.Execute(backend.Forward, out, in)
}

// Inverse runs the unnormalized inverse transform of in into out.
func (p *Plan) Inverse(out, in *tensor.View) error {
	return p.Execute(backend.Inverse, out, in)
}

// Execute runs the transform on views whose layout matches the plan. The
// views may differ from the ones the plan was built for.
func (p *Plan) Execute(dir backend.Direction, out, in *tensor.View) error {
	if err := p.life.CheckReady("fft exec"); err != nil {
		return err
	}
	if err := p.matches(out, in); err != nil {
		return err
	}

	core := p.params.Rank
	outer := outerDims(in.Rank(), core)
	inOff := in.OuterOffsets(outer)
	outOff := out.OuterOffsets(outer)
	inPtr, outPtr := backend.PtrOf(in, 0), backend.PtrOf(out, 0)

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range inOff {
		inPtr.Off, outPtr.Off = inOff[i], outOff[i]
		if err := p.handle.Execute(dir, inPtr, outPtr); err != nil {
			return errs.Wrap(errs.KindVendor, "fft exec", err)
		}
	}
	return nil
}

func (p *Plan) matches(out, in *tensor.View) error {
	deduce := Deduce1D
	if p.params.Rank == 2 {
		deduce = Deduce2D
	}
	got, err := deduce(out, in, p.params.Stream)
	if err != nil {
		return err
	}
	if got != p.params {
		return errs.New(errs.KindInvalidSize, "fft exec", "views do not match the plan layout")
	}
	return nil
}

// Release destroys the vendor handle and frees the workspace. Only the
// first call has an effect.
func (p *Plan) Release() error {
	if !p.life.Release() {
		return nil
	}

	var errList []error
	if p.handle != nil {
		if err := p.handle.Destroy(); err != nil {
			errList = append(errList, errs.Wrap(errs.KindVendor, "fft release", err))
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
