package gonumlib

import (
	"gonum.org/v1/gonum/blas"
	blasgonum "gonum.org/v1/gonum/blas/gonum"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/tensor"
)

// BLAS is the gonum GEMM library.
type BLAS struct{}

var _ backend.GEMMLibrary = BLAS{}

// Name returns the library name.
func (BLAS) Name() string {
	return "gonum/blas"
}

// CreateGEMM creates an unconfigured handle.
func (BLAS) CreateGEMM() (backend.GEMMHandle, error) {
	return &gemmHandle{}, nil
}

type gemmHandle struct {
	impl       blasgonum.Implementation
	cfg        backend.GEMMConfig
	tA, tB     blas.Transpose
	configured bool
}

func (h *gemmHandle) WorkspaceSize(cfg backend.GEMMConfig) (host, device int, err error) {
	return 0, 0, cfg.Validate("blas")
}

func (h *gemmHandle) Configure(cfg backend.GEMMConfig, _ backend.Workspace) error {
	if err := cfg.Validate("blas"); err != nil {
		return err
	}
	h.cfg = cfg
	h.tA = transpose(cfg.OpA)
	h.tB = transpose(cfg.OpB)
	h.configured = true
	return nil
}

func transpose(op backend.Op) blas.Transpose {
	switch op {
	case backend.Trans:
		return blas.Trans
	case backend.ConjTrans:
		return blas.ConjTrans
	default:
		return blas.NoTrans
	}
}

func (h *gemmHandle) Execute(alpha, beta complex128, a, b, c backend.Ptr) (err error) {
	defer errs.Recover("blas", &err)

	if !h.configured {
		return errs.New(errs.KindInvalidParameter, "blas", "handle not configured")
	}
	cfg := h.cfg

	switch cfg.DType {
	case tensor.Float32:
		as, bs, cs, err := operands[float32](a, b, c)
		if err != nil {
			return err
		}
		h.impl.Sgemm(h.tA, h.tB, cfg.M, cfg.N, cfg.K, float32(real(alpha)), as, cfg.LDA,
			bs, cfg.LDB, float32(real(beta)), cs, cfg.LDC)
	case tensor.Float64:
		as, bs, cs, err := operands[float64](a, b, c)
		if err != nil {
			return err
		}
		h.impl.Dgemm(h.tA, h.tB, cfg.M, cfg.N, cfg.K, real(alpha), as, cfg.LDA,
			bs, cfg.LDB, real(beta), cs, cfg.LDC)
	case tensor.Complex64:
		as, bs, cs, err := operands[complex64](a, b, c)
		if err != nil {
			return err
		}
		h.impl.Cgemm(h.tA, h.tB, cfg.M, cfg.N, cfg.K, complex64(alpha), as, cfg.LDA,
			bs, cfg.LDB, complex64(beta), cs, cfg.LDC)
	case tensor.Complex128:
		as, bs, cs, err := operands[complex128](a, b, c)
		if err != nil {
			return err
		}
		h.impl.Zgemm(h.tA, h.tB, cfg.M, cfg.N, cfg.K, alpha, as, cfg.LDA,
			bs, cfg.LDB, beta, cs, cfg.LDC)
	}
	return nil
}

func operands[T any](a, b, c backend.Ptr) (as, bs, cs []T, err error) {
	if as, err = backend.Slice[T]("blas", a); err != nil {
		return nil, nil, nil, err
	}
	if bs, err = backend.Slice[T]("blas", b); err != nil {
		return nil, nil, nil, err
	}
	if cs, err = backend.Slice[T]("blas", c); err != nil {
		return nil, nil, nil, err
	}
	return as, bs, cs, nil
}

func (h *gemmHandle) Destroy() error {
	h.configured = false
	return nil
}
