package fft

import (
	"math"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/stream"
	"github.com/born-ml/xform/internal/tensor"
)

// DCT computes the unnormalized DCT-II of in along its last dimension:
//
//	out[k] = 2 * sum(in[n] * cos(pi*k*(2n+1)/(2N)))
//
// It runs an N+1 point real-to-complex FFT of the input zero-padded to 2N
// and rotates each coefficient by exp(-j*pi*k/(2N)).
func (p *Planner) DCT(out, in *tensor.View, s *stream.Stream) error {
	const op = "dct"
	s = stream.Or(s)
	if dt := in.DType(); (dt != tensor.Float32 && dt != tensor.Float64) || dt != out.DType() {
		return errs.New(errs.KindInvalidType, op, "%s to %s", in.DType(), out.DType())
	}
	if !in.Shape().Equal(out.Shape()) {
		return errs.New(errs.KindInvalidSize, op, "input %v, output %v", in.Shape(), out.Shape())
	}

	n := in.Lsize()
	shape := in.Shape().Clone()
	shape[len(shape)-1] = n + 1
	ct := in.DType().Complex()

	scr, err := p.alloc.Scratch(p.scratch, shape.NumElements()*ct.Size(), s)
	if err != nil {
		return err
	}
	defer func() { _ = scr.ReleaseAfter(s) }()
	spectrum, err := tensor.NewView(scr.Block(), shape, ct)
	if err != nil {
		return err
	}

	if err := p.run1D(backend.Forward, spectrum, in, s); err != nil {
		return err
	}
	return s.Submit(func() error {
		rotate(out, spectrum, n)
		return nil
	})
}

// rotate writes 2*Re(x[k]*exp(-j*pi*k/(2n))) into out[k] for k < n.
func rotate(out, x *tensor.View, n int) {
	r := out.Rank()
	outRows, xRows := out.OuterOffsets(r-1), x.OuterOffsets(r-1)
	ostr, xstr := out.Stride(r-1), x.Stride(r-1)
	load, store := accessors(out, x)

	for k := 0; k < n; k++ {
		theta := math.Pi * float64(k) / float64(2*n)
		c, sn := 2*math.Cos(theta), 2*math.Sin(theta)
		for i := range outRows {
			v := load(xRows[i] + k*xstr)
			store(outRows[i]+k*ostr, real(v)*c+imag(v)*sn)
		}
	}
}

func accessors(out, x *tensor.View) (load func(int) complex128, store func(int, float64)) {
	if out.DType() == tensor.Float32 {
		o, c := tensor.Data[float32](out), tensor.Data[complex64](x)
		return func(i int) complex128 { return complex128(c[i]) },
			func(i int, v float64) { o[i] = float32(v) }
	}
	o, c := tensor.Data[float64](out), tensor.Data[complex128](x)
	return func(i int) complex128 { return c[i] },
		func(i int, v float64) { o[i] = v }
}
