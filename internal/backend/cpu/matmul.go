package cpu

import (
	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/parallel"
	"github.com/born-ml/xform/internal/tensor"
)

// Reference is a GEMM library built from the naive O(n³) loop. It accepts
// the same row-major configurations as the BLAS library and serves as the
// baseline its results are checked against.
type Reference struct {
	Parallel parallel.Config // Rows of C are split across workers.
}

var _ backend.GEMMLibrary = Reference{}

// Name returns the library name.
func (Reference) Name() string {
	return "reference"
}

// CreateGEMM creates an unconfigured handle.
func (r Reference) CreateGEMM() (backend.GEMMHandle, error) {
	return &refHandle{par: r.Parallel}, nil
}

type refHandle struct {
	cfg        backend.GEMMConfig
	par        parallel.Config
	configured bool
}

func (h *refHandle) WorkspaceSize(cfg backend.GEMMConfig) (host, device int, err error) {
	return 0, 0, checkReference(cfg)
}

func (h *refHandle) Configure(cfg backend.GEMMConfig, _ backend.Workspace) error {
	if err := checkReference(cfg); err != nil {
		return err
	}
	h.cfg = cfg
	h.configured = true
	return nil
}

func checkReference(cfg backend.GEMMConfig) error {
	if err := cfg.Validate("reference gemm"); err != nil {
		return err
	}
	if cfg.OpA == backend.ConjTrans || cfg.OpB == backend.ConjTrans {
		return errs.New(errs.KindNotSupported, "reference gemm", "conjugate transpose")
	}
	return nil
}

func (h *refHandle) Execute(alpha, beta complex128, a, b, c backend.Ptr) (err error) {
	defer errs.Recover("reference gemm", &err)

	if !h.configured {
		return errs.New(errs.KindInvalidParameter, "reference gemm", "handle not configured")
	}
	switch h.cfg.DType {
	case tensor.Float32:
		return matmul(h.cfg, h.par, float32(real(alpha)), float32(real(beta)), a, b, c)
	case tensor.Float64:
		return matmul(h.cfg, h.par, real(alpha), real(beta), a, b, c)
	case tensor.Complex64:
		return matmul(h.cfg, h.par, complex64(alpha), complex64(beta), a, b, c)
	default:
		return matmul(h.cfg, h.par, alpha, beta, a, b, c)
	}
}

func (h *refHandle) Destroy() error {
	h.configured = false
	return nil
}

type number interface {
	tensor.Float | tensor.Complex
}

// matmul computes C = alpha*op(A)*op(B) + beta*C. C is not read when beta
// is zero.
func matmul[T number](cfg backend.GEMMConfig, par parallel.Config, alpha, beta T, a, b, c backend.Ptr) error {
	as, err := backend.Slice[T]("reference gemm", a)
	if err != nil {
		return err
	}
	bs, err := backend.Slice[T]("reference gemm", b)
	if err != nil {
		return err
	}
	cs, err := backend.Slice[T]("reference gemm", c)
	if err != nil {
		return err
	}

	// Element steps of op(A) along i and k, and of op(B) along k and j.
	ai, ak := cfg.LDA, 1
	if cfg.OpA != backend.NoTrans {
		ai, ak = 1, cfg.LDA
	}
	bk, bj := cfg.LDB, 1
	if cfg.OpB != backend.NoTrans {
		bk, bj = 1, cfg.LDB
	}

	parallel.For(cfg.M, func(i int) {
		for j := 0; j < cfg.N; j++ {
			var sum T
			for k := 0; k < cfg.K; k++ {
				sum += as[i*ai+k*ak] * bs[k*bk+j*bj]
			}
			idx := i*cfg.LDC + j
			if beta == 0 {
				cs[idx] = alpha * sum
			} else {
				cs[idx] = alpha*sum + beta*cs[idx]
			}
		}
	}, par)
	return nil
}
