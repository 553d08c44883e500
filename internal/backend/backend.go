// Package backend defines the vendor library contracts the transform plans
// call through.
//
// Every family follows the same protocol: a Library creates a Handle, the
// handle reports the host and device workspace a configuration needs, is
// configured once, executes any number of times and is finally destroyed.
// Data is passed as Ptr values: a typed slice over a whole block plus the
// element offset of the first element.
package backend

import (
	"fmt"

	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/tensor"
)

// Ptr addresses data inside a block.
type Ptr struct {
	Data any // []float32, []float64, []complex64, []complex128 or []int64.
	Off  int // Element offset.
}

// PtrOf returns a Ptr to the first element of v, offset by extra elements.
func PtrOf(v *tensor.View, extra int) Ptr {
	var data any
	switch v.DType() {
	case tensor.Float32:
		data = tensor.Data[float32](v)
	case tensor.Float64:
		data = tensor.Data[float64](v)
	case tensor.Complex64:
		data = tensor.Data[complex64](v)
	case tensor.Complex128:
		data = tensor.Data[complex128](v)
	case tensor.Int32:
		data = tensor.Data[int32](v)
	case tensor.Int64:
		data = tensor.Data[int64](v)
	default:
		panic(fmt.Sprintf("backend: unsupported dtype %s", v.DType()))
	}
	return Ptr{Data: data, Off: v.Offset() + extra}
}

// Slice returns p's data as []T starting at the offset.
func Slice[T any](op string, p Ptr) ([]T, error) {
	s, ok := p.Data.([]T)
	if !ok {
		var zero T
		return nil, errs.New(errs.KindInvalidType, op, "buffer holds %T, want []%T", p.Data, zero)
	}
	if p.Off < 0 || p.Off > len(s) {
		return nil, errs.New(errs.KindInvalidSize, op, "offset %d outside buffer of %d", p.Off, len(s))
	}
	return s[p.Off:], nil
}

// Workspace is scratch memory handed to a handle.
type Workspace struct {
	Host   []byte
	Device []byte
}

// Batch returns the i-th of equally sized per-batch workspaces.
func (w Workspace) Batch(i, hostPer, devicePer int) Workspace {
	var out Workspace
	if hostPer > 0 {
		out.Host = w.Host[i*hostPer : (i+1)*hostPer]
	}
	if devicePer > 0 {
		out.Device = w.Device[i*devicePer : (i+1)*devicePer]
	}
	return out
}
