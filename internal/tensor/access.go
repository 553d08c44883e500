package tensor

import (
	"fmt"

	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/memory"
)

// Data returns the whole backing block typed as T. Index it with View.Index.
// Panics if T does not match the view's element type.
func Data[T DType](v *View) []T {
	if dt := TypeOf[T](); dt != v.dtype {
		panic(fmt.Sprintf("view: data requested as %s, view holds %s", dt, v.dtype))
	}
	return memory.Typed[T](v.block)
}

// At returns the element at idx.
func At[T DType](v *View, idx ...int) T {
	return Data[T](v)[v.Index(idx...)]
}

// Set stores val at idx.
func Set[T DType](v *View, val T, idx ...int) {
	Data[T](v)[v.Index(idx...)] = val
}

// ToSlice gathers the view's elements in row-major order into a new slice.
func ToSlice[T DType](v *View) []T {
	data := Data[T](v)
	out := make([]T, 0, v.NumElements())
	forEach(v, func(off int) {
		out = append(out, data[off])
	})
	return out
}

// FromSlice copies data into a new owning host view with the given shape.
// An empty shape means a rank-1 view of len(data).
func FromSlice[T DType](data []T, shape ...int) (*View, error) {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	v, err := Zeros(Shape(shape), TypeOf[T]())
	if err != nil {
		return nil, err
	}
	if n := v.NumElements(); n != len(data) {
		return nil, errs.New(errs.KindInvalidSize, "from slice", "%d values for shape %v (%d elements)", len(data), shape, n)
	}
	copy(Data[T](v), data)
	return v, nil
}

// Fill copies data into v in row-major order. len(data) must equal v.NumElements().
func Fill[T DType](v *View, data []T) {
	if len(data) != v.NumElements() {
		panic(fmt.Sprintf("view: fill with %d values, view has %d elements", len(data), v.NumElements()))
	}
	dst := Data[T](v)
	i := 0
	forEach(v, func(off int) {
		dst[off] = data[i]
		i++
	})
}

// ForEachOffset calls fn with the block offset of every element in row-major order.
func ForEachOffset(v *View, fn func(off int)) {
	forEach(v, fn)
}

func forEach(v *View, fn func(off int)) {
	r := len(v.shape)
	if r == 0 {
		fn(v.offset)
		return
	}
	idx := make([]int, r)
	off := v.offset
	n := v.NumElements()
	for k := 0; k < n; k++ {
		fn(off)
		for d := r - 1; d >= 0; d-- {
			idx[d]++
			off += v.stride[d]
			if idx[d] < v.shape[d] {
				break
			}
			off -= idx[d] * v.stride[d]
			idx[d] = 0
		}
	}
}
