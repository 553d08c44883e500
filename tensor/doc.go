// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the strided views the transforms read and write.
//
// # Overview
//
// A View is a window onto a block of memory: a shape, per-dimension strides
// and an element offset, all counted in elements. Views alias their block,
// so slicing and permuting never copy:
//
//	x, _ := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
//	xt := x.PermuteMatrix()                       // 3x2, strides (1, 3)
//	row, _ := x.Slice([]int{1, 0}, []int{2, tensor.End})
//
// # Supported Data Types
//
//   - float32, float64 (real transforms, GEMM, factorizations)
//   - complex64, complex128 (complex FFTs, GEMM)
//   - int32, int64 (pivot indices)
//
// # Batching
//
// Transforms act on the last one or two dimensions of a view (the last two
// for matrices). Leading dimensions, up to MaxRank in total, are batches of
// independent problems.
package tensor
