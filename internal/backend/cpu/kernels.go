package cpu

import (
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/parallel"
	"github.com/born-ml/xform/internal/tensor"
)

// Copy copies src into dst element by element. Both views must have the
// same shape and type; their strides may differ, so Copy also materializes
// transposes and gathers slices into dense scratch.
func (cpu *CPUBackend) Copy(dst, src *tensor.View) error {
	if dst.DType() != src.DType() {
		return errs.New(errs.KindInvalidType, "copy", "%s into %s", src.DType(), dst.DType())
	}
	if !dst.Shape().Equal(src.Shape()) {
		return errs.New(errs.KindInvalidSize, "copy", "shape %v into %v", src.Shape(), dst.Shape())
	}

	switch dst.DType() {
	case tensor.Float32:
		copyRows[float32](dst, src, cpu.parallel)
	case tensor.Float64:
		copyRows[float64](dst, src, cpu.parallel)
	case tensor.Complex64:
		copyRows[complex64](dst, src, cpu.parallel)
	case tensor.Complex128:
		copyRows[complex128](dst, src, cpu.parallel)
	case tensor.Int32:
		copyRows[int32](dst, src, cpu.parallel)
	case tensor.Int64:
		copyRows[int64](dst, src, cpu.parallel)
	default:
		return errs.New(errs.KindInvalidType, "copy", "unsupported dtype %s", dst.DType())
	}
	return nil
}

// Zero sets every element of v to zero.
func (cpu *CPUBackend) Zero(v *tensor.View) {
	switch v.DType() {
	case tensor.Float32:
		fillRows[float32](v, 0, cpu.parallel)
	case tensor.Float64:
		fillRows[float64](v, 0, cpu.parallel)
	case tensor.Complex64:
		fillRows[complex64](v, 0, cpu.parallel)
	case tensor.Complex128:
		fillRows[complex128](v, 0, cpu.parallel)
	case tensor.Int32:
		fillRows[int32](v, 0, cpu.parallel)
	case tensor.Int64:
		fillRows[int64](v, 0, cpu.parallel)
	}
}

// Scale multiplies every element of v by factor in place.
func (cpu *CPUBackend) Scale(v *tensor.View, factor float64) error {
	switch v.DType() {
	case tensor.Float32:
		scaleReal[float32](v, factor, cpu.parallel)
	case tensor.Float64:
		scaleReal[float64](v, factor, cpu.parallel)
	case tensor.Complex64:
		scaleComplex[complex64](v, factor, cpu.parallel)
	case tensor.Complex128:
		scaleComplex[complex128](v, factor, cpu.parallel)
	default:
		return errs.New(errs.KindInvalidType, "scale", "unsupported dtype %s", v.DType())
	}
	return nil
}

// rowsOf returns the offset of every innermost row of v, its length and its
// element stride.
func rowsOf(v *tensor.View) (rows []int, n, stride int) {
	r := v.Rank()
	if r == 0 {
		return []int{v.Offset()}, 1, 1
	}
	return v.OuterOffsets(r - 1), v.Size(r - 1), v.Stride(r - 1)
}

func copyRows[T tensor.DType](dst, src *tensor.View, cfg parallel.Config) {
	d, s := tensor.Data[T](dst), tensor.Data[T](src)
	dRows, n, ds := rowsOf(dst)
	sRows, _, ss := rowsOf(src)

	parallel.For(len(dRows), func(i int) {
		do, so := dRows[i], sRows[i]
		for j := 0; j < n; j++ {
			d[do+j*ds] = s[so+j*ss]
		}
	}, cfg)
}

func fillRows[T tensor.DType](v *tensor.View, val T, cfg parallel.Config) {
	d := tensor.Data[T](v)
	rows, n, stride := rowsOf(v)

	parallel.For(len(rows), func(i int) {
		off := rows[i]
		for j := 0; j < n; j++ {
			d[off+j*stride] = val
		}
	}, cfg)
}

func scaleReal[T tensor.Float](v *tensor.View, factor float64, cfg parallel.Config) {
	scaleRows(v, T(factor), cfg)
}

func scaleComplex[T tensor.Complex](v *tensor.View, factor float64, cfg parallel.Config) {
	scaleRows(v, T(complex(factor, 0)), cfg)
}

func scaleRows[T tensor.Float | tensor.Complex](v *tensor.View, f T, cfg parallel.Config) {
	d := tensor.Data[T](v)
	rows, n, stride := rowsOf(v)

	parallel.For(len(rows), func(i int) {
		off := rows[i]
		for j := 0; j < n; j++ {
			d[off+j*stride] *= f
		}
	}, cfg)
}
