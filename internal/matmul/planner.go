package matmul

import (
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
	// Libraries maps providers to GEMM implementations. Providers without
	// an entry are reported as not supported.
	Libraries map[Provider]backend.GEMMLibrary
	Allocator *memory.Allocator
	Logger    *slog.Logger
}

// DefaultLibraries returns gonum BLAS and the reference loops.
func DefaultLibraries() map[Provider]backend.GEMMLibrary {
	return map[Provider]backend.GEMMLibrary{
		BLAS:      gonumlib.BLAS{},
		Reference: cpu.Reference{Parallel: parallel.DefaultConfig()},
	}
}

// DefaultConfig returns a configuration with the default libraries.
func DefaultConfig() Config {
	return Config{Libraries: DefaultLibraries()}
}

// Planner dispatches matrix multiplications through a plan cache.
type Planner struct {
	libs   [numProviders]backend.GEMMLibrary
	alloc  *memory.Allocator
	logger *slog.Logger
	plans  *plan.Cache[Params, *Plan]
}

// New creates a Planner with an empty cache.
func New(cfg Config) *Planner {
	p := &Planner{
		alloc:  cfg.Allocator,
		logger: cfg.Logger,
		plans:  plan.New[Params, *Plan]("gemm", Hash, Equal),
	}
	libs := cfg.Libraries
	if libs == nil {
		libs = DefaultLibraries()
	}
	for prov, lib := range libs {
		if prov > Auto && prov < numProviders {
			p.libs[prov] = lib
		}
	}
	if p.alloc == nil {
		p.alloc = memory.NewAllocator(memory.DefaultConfig())
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Option configures a single MatMul call.
type Option func(*options)

type options struct {
	alpha    complex128
	beta     complex128
	provider Provider
}

// WithAlpha scales the product. The default is 1.
func WithAlpha(alpha complex128) Option {
	return func(o *options) {
		o.alpha = alpha
	}
}

// WithBeta accumulates beta*C into the result. The default is 0, in which
// case C is not read.
func WithBeta(beta complex128) Option {
	return func(o *options) {
		o.beta = beta
	}
}

// WithProvider selects the GEMM implementation.
func WithProvider(p Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

func (p *Planner) resolve(prov Provider) (Provider, backend.GEMMLibrary, error) {
	if prov < Auto || prov >= numProviders {
		return 0, nil, errs.New(errs.KindInvalidParameter, "matmul", "unknown provider %d", int(prov))
	}
	if prov == Auto {
		prov = BLAS
		if p.libs[BLAS] == nil {
			prov = Reference
		}
	}
	lib := p.libs[prov]
	if lib == nil {
		return 0, nil, errs.New(errs.KindNotSupported, "matmul", "provider %s is not available", prov)
	}
	return prov, lib, nil
}

// Plan returns the cached plan for C = A*B with the given provider on s,
// building it on first use.
func (p *Planner) Plan(c, a, b *tensor.View, prov Provider, s *stream.Stream) (*Plan, error) {
	s = stream.Or(s)
	prov, lib, err := p.resolve(prov)
	if err != nil {
		return nil, err
	}
	params, err := Deduce(c, a, b, prov, s.ID())
	if err != nil {
		return nil, err
	}
	return p.plans.LookupOrCreate(params, func() (*Plan, error) {
		pl, err := NewPlan(lib, p.alloc, params, s)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("plan created", "cache", p.plans.Name(), "library", lib.Name(), "params", params)
		return pl, nil
	})
}

// MatMul computes C = alpha*A*B + beta*C on s. Shapes are validated before
// any vendor call.
func (p *Planner) MatMul(c, a, b *tensor.View, s *stream.Stream, opts ...Option) error {
	o := options{alpha: 1}
	for _, opt := range opts {
		opt(&o)
	}
	s = stream.Or(s)

	pl, err := p.Plan(c, a, b, o.provider, s)
	if err != nil {
		return err
	}
	return s.Submit(func() error {
		return pl.Execute(c, a, b, o.alpha, o.beta)
	})
}

// Stats returns the plan cache statistics.
func (p *Planner) Stats() map[string]plan.Stats {
	return map[string]plan.Stats{p.plans.Name(): p.plans.Stats()}
}

// Close releases every cached plan.
func (p *Planner) Close() error {
	err := p.plans.Close()
	if err != nil {
		p.logger.Warn("gemm plans failed to release", "error", err)
	}
	return err
}
