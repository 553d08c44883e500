// Package fft plans and runs batched 1D and 2D Fourier transforms over
// tensor views.
//
// The last dimension (1D) or last two dimensions (2D) are transformed; the
// dimension above them becomes the vendor batch and any remaining outer
// dimensions are looped. Plans are cached per Params value, so repeated calls
// with views of the same layout on the same stream reuse one vendor handle.
package fft

import (
	"log/slog"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/plan"
	"github.com/born-ml/xform/internal/stream"
	"github.com/born-ml/xform/internal/tensor"
)

// Params fully determines an FFT plan. Lengths and embeddings are listed
// fastest dimension first.
type Params struct {
	Rank     int // 1 or 2 transformed dimensions.
	N        [2]int
	Batch    int
	InEmbed  [2]int
	OutEmbed [2]int
	IStride  int
	OStride  int
	IDist    int
	ODist    int
	Type     backend.FFTType
	InType   tensor.DataType
	OutType  tensor.DataType
	Stream   stream.ID
}

// Hash combines the fields that vary most between plans.
func Hash(p Params) uint64 {
	return plan.NewHasher().
		Ints(p.N[0], p.N[1], p.Rank, int(p.Type), p.Batch, p.IStride).
		Uint64(uint64(p.Stream)).
		Sum()
}

// Equal compares every field.
func Equal(a, b Params) bool {
	return a == b
}

// Config converts the parameters to the vendor configuration.
func (p Params) Config() backend.FFTConfig {
	return backend.FFTConfig{
		Rank:     p.Rank,
		N:        p.N,
		Batch:    p.Batch,
		InEmbed:  p.InEmbed,
		OutEmbed: p.OutEmbed,
		IStride:  p.IStride,
		OStride:  p.OStride,
		IDist:    p.IDist,
		ODist:    p.ODist,
		Type:     p.Type,
	}
}

// Elements returns the number of points in one transform.
func (p Params) Elements() int {
	if p.Rank == 2 {
		return p.N[0] * p.N[1]
	}
	return p.N[0]
}

// LogValue implements slog.LogValuer.
func (p Params) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("rank", p.Rank),
		slog.Any("n", p.N[:p.Rank]),
		slog.Int("batch", p.Batch),
		slog.String("type", p.Type.String()),
		slog.Uint64("stream", uint64(p.Stream)),
	)
}

func (p Params) validate(op string) error {
	if p.Rank != 1 && p.Rank != 2 {
		return errs.New(errs.KindInvalidParameter, op, "rank %d transform", p.Rank)
	}
	if p.Type == backend.InvalidFFT || backend.FFTTypeOf(p.InType, p.OutType) != p.Type {
		return errs.New(errs.KindInvalidType, op, "%s to %s as %s", p.InType, p.OutType, p.Type)
	}
	for i := 0; i < p.Rank; i++ {
		if p.N[i] <= 0 {
			return errs.New(errs.KindInvalidSize, op, "length %d in dim %d", p.N[i], i)
		}
	}
	if p.Batch <= 0 || p.IStride <= 0 || p.OStride <= 0 {
		return errs.New(errs.KindInvalidSize, op, "batch=%d istride=%d ostride=%d", p.Batch, p.IStride, p.OStride)
	}
	return nil
}

// lastLengths checks the transformed lengths of the fastest dimension:
// n is the logical transform size, inL and outL the stored lengths.
func lastLengths(op string, t backend.FFTType, inL, outL int) (n int, err error) {
	switch {
	case t.IsComplexToComplex():
		if inL != outL {
			return 0, errs.New(errs.KindInvalidSize, op, "complex transform of %d into %d", inL, outL)
		}
		return inL, nil
	case t.IsRealToComplex():
		if inL/2+1 != outL {
			return 0, errs.New(errs.KindInvalidSize, op, "real input of %d needs %d outputs, got %d", inL, inL/2+1, outL)
		}
		return inL, nil
	default:
		if outL/2+1 != inL {
			return 0, errs.New(errs.KindInvalidSize, op, "real output of %d needs %d inputs, got %d", outL, outL/2+1, inL)
		}
		return outL, nil
	}
}

func checkTypes(op string, out, in *tensor.View) (backend.FFTType, error) {
	t := backend.FFTTypeOf(in.DType(), out.DType())
	if t == backend.InvalidFFT {
		return t, errs.New(errs.KindInvalidType, op, "no transform from %s to %s", in.DType(), out.DType())
	}
	return t, nil
}

func checkOuter(op string, out, in *tensor.View, core int) error {
	if in.Rank() != out.Rank() {
		return errs.New(errs.KindInvalidSize, op, "input rank %d, output rank %d", in.Rank(), out.Rank())
	}
	if r := in.Rank(); r < core || r > tensor.MaxRank {
		return errs.New(errs.KindInvalidSize, op, "rank %d views for a %dD transform", r, core)
	}
	for d := 0; d < in.Rank()-1; d++ {
		if in.Size(d) != out.Size(d) {
			return errs.New(errs.KindInvalidSize, op, "dim %d: input %d, output %d", d, in.Size(d), out.Size(d))
		}
	}
	return nil
}

// Deduce1D derives the parameters of a transform along the last dimension.
// The stored lengths must already agree: see lastLengths.
func Deduce1D(out, in *tensor.View, id stream.ID) (Params, error) {
	const op = "fft"
	t, err := checkTypes(op, out, in)
	if err != nil {
		return Params{}, err
	}
	if err := checkOuter(op, out, in, 1); err != nil {
		return Params{}, err
	}
	n, err := lastLengths(op, t, in.Lsize(), out.Lsize())
	if err != nil {
		return Params{}, err
	}

	r := in.Rank()
	p := Params{
		Rank:     1,
		N:        [2]int{n, 0},
		Batch:    1,
		InEmbed:  [2]int{in.Lsize(), 0},
		OutEmbed: [2]int{out.Lsize(), 0},
		IStride:  in.Stride(r - 1),
		OStride:  out.Stride(r - 1),
		IDist:    in.Lsize(),
		ODist:    out.Lsize(),
		Type:     t,
		InType:   in.DType(),
		OutType:  out.DType(),
		Stream:   id,
	}
	if r >= 2 {
		p.Batch = in.Size(r - 2)
		p.IDist = in.Stride(r - 2)
		p.ODist = out.Stride(r - 2)
	}
	return p, p.validate(op)
}

// Deduce2D derives the parameters of a transform over the last two
// dimensions. Rows must be evenly spaced in whole elements.
func Deduce2D(out, in *tensor.View, id stream.ID) (Params, error) {
	const op = "fft2"
	t, err := checkTypes(op, out, in)
	if err != nil {
		return Params{}, err
	}
	if err := checkOuter(op, out, in, 2); err != nil {
		return Params{}, err
	}
	nx, err := lastLengths(op, t, in.Lsize(), out.Lsize())
	if err != nil {
		return Params{}, err
	}

	r := in.Rank()
	ny := in.Size(r - 2)
	inEmbed, err := embed(op, in)
	if err != nil {
		return Params{}, err
	}
	outEmbed, err := embed(op, out)
	if err != nil {
		return Params{}, err
	}

	p := Params{
		Rank:     2,
		N:        [2]int{nx, ny},
		Batch:    1,
		InEmbed:  [2]int{inEmbed, ny},
		OutEmbed: [2]int{outEmbed, ny},
		IStride:  in.Stride(r - 1),
		OStride:  out.Stride(r - 1),
		IDist:    ny * in.Stride(r-2),
		ODist:    ny * out.Stride(r-2),
		Type:     t,
		InType:   in.DType(),
		OutType:  out.DType(),
		Stream:   id,
	}
	if r >= 3 {
		p.Batch = in.Size(r - 3)
		p.IDist = in.Stride(r - 3)
		p.ODist = out.Stride(r - 3)
	}
	return p, p.validate(op)
}

// embed returns the row pitch of v in units of its element stride.
func embed(op string, v *tensor.View) (int, error) {
	r := v.Rank()
	row, col := v.Stride(r-2), v.Stride(r-1)
	if col <= 0 || row%col != 0 || row/col < v.Lsize() {
		return 0, errs.New(errs.KindNotSupported, op, "row stride %d is not a multiple of element stride %d", row, col)
	}
	return row / col, nil
}

// outerDims returns how many dimensions are looped outside the vendor batch.
func outerDims(rank, core int) int {
	return max(rank-core-1, 0)
}
