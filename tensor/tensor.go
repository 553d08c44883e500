// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/internal/stream"
	"github.com/born-ml/xform/internal/tensor"
)

// Type aliases for public API

// DType is a constraint for view element types.
// Supported types: float32, float64, complex64, complex128, int32, int64.
type DType = tensor.DType

// DataType represents the element type of a view at runtime.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32    DataType = tensor.Float32
	Float64    DataType = tensor.Float64
	Complex64  DataType = tensor.Complex64
	Complex128 DataType = tensor.Complex128
	Int32      DataType = tensor.Int32
	Int64      DataType = tensor.Int64
)

// Shape represents the dimensions of a view.
// Example: Shape{2, 3, 4} is a batch of two 3x4 matrices.
type Shape = tensor.Shape

// View is a strided window onto a memory block.
type View = tensor.View

// MaxRank is the highest rank any transform accepts.
const MaxRank = tensor.MaxRank

// End selects through the last element of a dimension in View.Slice.
const End = tensor.End

// Creation functions

// Zeros creates a zero-filled view in host memory.
//
// Example:
//
//	x, err := tensor.Zeros(tensor.Shape{4, 16}, tensor.Complex64)
func Zeros(shape Shape, dtype DataType) (*View, error) {
	return tensor.Zeros(shape, dtype)
}

// FromSlice copies data into a new view with the given shape. An empty
// shape means a rank-1 view of len(data).
//
// Example:
//
//	a, err := tensor.FromSlice([]float32{1, 2, 3, 4}, 2, 2)
func FromSlice[T DType](data []T, shape ...int) (*View, error) {
	return tensor.FromSlice(data, shape...)
}

// Alloc allocates a view from a, associated with stream s for ordered
// frees. Release it with View.Free.
func Alloc(a *memory.Allocator, space memory.Space, shape Shape, dtype DataType, s *stream.Stream) (*View, error) {
	return tensor.Alloc(a, space, shape, dtype, s)
}

// NewStrided creates a view over block with explicit strides and offset.
func NewStrided(block *memory.Block, shape Shape, stride []int, offset int, dtype DataType) (*View, error) {
	return tensor.NewStrided(block, shape, stride, offset, dtype)
}

// Element access

// At returns the element at idx. Panics if T is not the view's type.
func At[T DType](v *View, idx ...int) T {
	return tensor.At[T](v, idx...)
}

// Set stores val at idx.
func Set[T DType](v *View, val T, idx ...int) {
	tensor.Set(v, val, idx...)
}

// ToSlice gathers the view's elements in row-major order.
func ToSlice[T DType](v *View) []T {
	return tensor.ToSlice[T](v)
}

// Fill copies data into v in row-major order.
func Fill[T DType](v *View, data []T) {
	tensor.Fill(v, data)
}
