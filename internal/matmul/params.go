// Package matmul plans and runs batched matrix multiplications
// C = alpha*A*B + beta*C over tensor views.
//
// The last two dimensions of each view are the matrices; a third dimension
// is the batch and a fourth is looped. Operands may be row-major or
// transposed views; a column-major C is handled by computing Cᵀ = Bᵀ*Aᵀ.
package matmul

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/plan"
	"github.com/born-ml/xform/internal/stream"
	"github.com/born-ml/xform/internal/tensor"
)

// Provider selects the GEMM implementation.
type Provider int

// Providers. Auto resolves to BLAS when it is registered, otherwise to
// Reference.
const (
	Auto Provider = iota
	BLAS
	Reference
	numProviders
)

// String returns the provider name.
func (p Provider) String() string {
	switch p {
	case Auto:
		return "auto"
	case BLAS:
		return "blas"
	case Reference:
		return "reference"
	default:
		return fmt.Sprintf("provider(%d)", int(p))
	}
}

// Params fully determines a GEMM plan.
type Params struct {
	ARows, ACols int
	BRows, BCols int
	CRows, CCols int
	M, N, K      int
	LDA          int
	LDB          int
	LDC          int
	StrideA      int // Batch strides.
	StrideB      int
	StrideC      int
	Batch        int
	OuterBatch   int
	OpA          backend.Op
	OpB          backend.Op
	Swapped      bool // A and B exchanged to produce a column-major C.
	Provider     Provider
	DType        tensor.DataType
	Stream       stream.ID
}

// Hash combines dimensions, batch, provider and stream.
func Hash(p Params) uint64 {
	return plan.NewHasher().
		Ints(p.M, p.N, p.K, p.Batch, int(p.Provider)).
		Uint64(uint64(p.Stream)).
		Sum()
}

// Equal compares every field.
func Equal(a, b Params) bool {
	return a == b
}

// Config converts the parameters to the vendor configuration.
func (p Params) Config() backend.GEMMConfig {
	return backend.GEMMConfig{
		DType: p.DType,
		OpA:   p.OpA,
		OpB:   p.OpB,
		M:     p.M,
		N:     p.N,
		K:     p.K,
		LDA:   p.LDA,
		LDB:   p.LDB,
		LDC:   p.LDC,
	}
}

// validate checks that the descriptor is self-consistent: the operand
// extents agree with M, N and K given Swapped, and the batch is non-empty.
func (p Params) validate(op string) error {
	if p.ARows <= 0 || p.ACols <= 0 || p.BRows <= 0 || p.BCols <= 0 || p.CRows <= 0 || p.CCols <= 0 {
		return errs.New(errs.KindInvalidSize, op, "a=%dx%d b=%dx%d c=%dx%d",
			p.ARows, p.ACols, p.BRows, p.BCols, p.CRows, p.CCols)
	}
	if p.ACols != p.BRows {
		return errs.New(errs.KindInvalidSize, op, "inner dimensions %d and %d differ", p.ACols, p.BRows)
	}
	if p.CRows != p.ARows || p.CCols != p.BCols {
		return errs.New(errs.KindInvalidSize, op, "output %dx%d for a %dx%d product",
			p.CRows, p.CCols, p.ARows, p.BCols)
	}
	m, n := p.CRows, p.CCols
	if p.Swapped {
		m, n = n, m
	}
	if p.M != m || p.N != n || p.K != p.ACols {
		return errs.New(errs.KindInvalidSize, op, "m=%d n=%d k=%d for a %dx%d by %dx%d product",
			p.M, p.N, p.K, p.ARows, p.ACols, p.BRows, p.BCols)
	}
	if p.Batch <= 0 || p.OuterBatch <= 0 {
		return errs.New(errs.KindInvalidSize, op, "batch %dx%d", p.OuterBatch, p.Batch)
	}
	return p.Config().Validate(op)
}

// LogValue implements slog.LogValuer.
func (p Params) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("op", p.OpA.String()+p.OpB.String()),
		slog.Int("m", p.M),
		slog.Int("n", p.N),
		slog.Int("k", p.K),
		slog.Int("batch", p.Batch*p.OuterBatch),
		slog.String("provider", p.Provider.String()),
		slog.String("dtype", p.DType.String()),
		slog.Uint64("stream", uint64(p.Stream)),
	)
}

// operands holds the three views as the vendor sees them.
type operands struct {
	c, a, b *tensor.View
	swapped bool
}

// orient exchanges and transposes the operands when C is column-major.
func orient(c, a, b *tensor.View) operands {
	r := c.Rank()
	if c.Stride(r-2) == 1 && c.Size(r-1) != 1 {
		return operands{c: c.PermuteMatrix(), a: b.PermuteMatrix(), b: a.PermuteMatrix(), swapped: true}
	}
	return operands{c: c, a: a, b: b}
}

// layout returns how a row-major GEMM reads the matrix in the last two
// dimensions of v.
func layout(name string, v *tensor.View) (op backend.Op, ld int, err error) {
	r := v.Rank()
	rows, cols := v.Size(r-2), v.Size(r-1)
	switch {
	case v.Stride(r-1) == 1 || cols == 1:
		ld = v.Stride(r - 2)
		if rows == 1 {
			ld = max(ld, cols)
		}
		return backend.NoTrans, ld, nil
	case v.Stride(r-2) == 1 || rows == 1:
		ld = v.Stride(r - 1)
		if cols == 1 {
			ld = max(ld, rows)
		}
		return backend.Trans, ld, nil
	default:
		return 0, 0, errs.New(errs.KindNotSupported, "matmul",
			"%s has no unit stride in its last two dimensions (strides %v)", name, v.Strides())
	}
}

func checkShapes(c, a, b *tensor.View) error {
	r := c.Rank()
	if a.Rank() != r || b.Rank() != r {
		return errs.New(errs.KindInvalidSize, "matmul", "ranks a=%d b=%d c=%d", a.Rank(), b.Rank(), r)
	}
	if r < 2 || r > tensor.MaxRank {
		return errs.New(errs.KindInvalidSize, "matmul", "rank %d views", r)
	}
	if a.DType() != b.DType() || a.DType() != c.DType() {
		return errs.New(errs.KindInvalidType, "matmul", "types a=%s b=%s c=%s", a.DType(), b.DType(), c.DType())
	}
	if !c.DType().IsFloat() {
		return errs.New(errs.KindInvalidType, "matmul", "%s operands", c.DType())
	}

	m, k, n := a.Size(r-2), a.Size(r-1), b.Size(r-1)
	if b.Size(r-2) != k {
		return errs.New(errs.KindInvalidSize, "matmul", "inner dimensions %d and %d differ", k, b.Size(r-2))
	}
	if c.Size(r-2) != m || c.Size(r-1) != n {
		return errs.New(errs.KindInvalidSize, "matmul", "output %dx%d for a %dx%d product",
			c.Size(r-2), c.Size(r-1), m, n)
	}
	for d := 0; d < r-2; d++ {
		if a.Size(d) != c.Size(d) || b.Size(d) != c.Size(d) {
			return errs.New(errs.KindInvalidSize, "matmul", "batch dim %d: a=%d b=%d c=%d",
				d, a.Size(d), b.Size(d), c.Size(d))
		}
	}
	return nil
}

// Deduce derives the parameters of C = A*B. provider must already be
// resolved.
func Deduce(c, a, b *tensor.View, provider Provider, id stream.ID) (Params, error) {
	if err := checkShapes(c, a, b); err != nil {
		return Params{}, err
	}

	o := orient(c, a, b)
	opA, lda, err := layout("A", o.a)
	if err != nil {
		return Params{}, err
	}
	opB, ldb, err := layout("B", o.b)
	if err != nil {
		return Params{}, err
	}
	opC, ldc, err := layout("C", o.c)
	if err != nil {
		return Params{}, err
	}
	if opC != backend.NoTrans {
		return Params{}, errs.New(errs.KindNotSupported, "matmul", "output strides %v", c.Strides())
	}

	r := c.Rank()
	p := Params{
		ARows: a.Size(r - 2), ACols: a.Size(r - 1),
		BRows: b.Size(r - 2), BCols: b.Size(r - 1),
		CRows: c.Size(r - 2), CCols: c.Size(r - 1),
		M: o.c.Size(r - 2), N: o.c.Size(r - 1), K: o.a.Size(r - 1),
		LDA: lda, LDB: ldb, LDC: ldc,
		Batch: 1, OuterBatch: 1,
		OpA: opA, OpB: opB,
		Swapped:  o.swapped,
		Provider: provider,
		DType:    c.DType(),
		Stream:   id,
	}
	if r >= 3 {
		p.Batch = c.Size(r - 3)
		p.StrideA = o.a.Stride(r - 3)
		p.StrideB = o.b.Stride(r - 3)
		p.StrideC = o.c.Stride(r - 3)
	}
	if r == 4 {
		p.OuterBatch = c.Size(0)
	}
	return p, nil
}
