package backend

import (
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/tensor"
)

// Op is the operation applied to a GEMM operand.
type Op int

// Operand operations.
const (
	NoTrans Op = iota
	Trans
	ConjTrans
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case NoTrans:
		return "N"
	case Trans:
		return "T"
	case ConjTrans:
		return "C"
	default:
		return "?"
	}
}

// GEMMConfig describes C = alpha*op(A)*op(B) + beta*C for row-major
// operands. op(A) is M x K, op(B) is K x N and C is M x N. Leading
// dimensions are row strides of the stored (untransposed) matrices.
type GEMMConfig struct {
	DType tensor.DataType
	OpA   Op
	OpB   Op
	M     int
	N     int
	K     int
	LDA   int
	LDB   int
	LDC   int
}

// Validate checks the element type, the extents and the leading dimensions.
// op names the caller in the returned error.
func (cfg GEMMConfig) Validate(op string) error {
	switch cfg.DType {
	case tensor.Float32, tensor.Float64, tensor.Complex64, tensor.Complex128:
	default:
		return errs.New(errs.KindInvalidType, op, "gemm on %s", cfg.DType)
	}
	if cfg.M <= 0 || cfg.N <= 0 || cfg.K <= 0 {
		return errs.New(errs.KindInvalidSize, op, "m=%d n=%d k=%d", cfg.M, cfg.N, cfg.K)
	}
	aCols, bCols := cfg.K, cfg.N
	if cfg.OpA != NoTrans {
		aCols = cfg.M
	}
	if cfg.OpB != NoTrans {
		bCols = cfg.K
	}
	if cfg.LDA < aCols || cfg.LDB < bCols || cfg.LDC < cfg.N {
		return errs.New(errs.KindInvalidParameter, op,
			"leading dimensions lda=%d ldb=%d ldc=%d too small", cfg.LDA, cfg.LDB, cfg.LDC)
	}
	return nil
}

// GEMMLibrary creates GEMM handles.
type GEMMLibrary interface {
	Name() string
	CreateGEMM() (GEMMHandle, error)
}

// GEMMHandle is a configured vendor GEMM.
type GEMMHandle interface {
	WorkspaceSize(cfg GEMMConfig) (host, device int, err error)
	Configure(cfg GEMMConfig, ws Workspace) error
	// Execute runs one multiplication. alpha and beta are converted to the
	// configured element type.
	Execute(alpha, beta complex128, a, b, c Ptr) error
	Destroy() error
}
