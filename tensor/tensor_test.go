// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/xform/tensor"
)

func TestViewAPI(t *testing.T) {
	x, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	assert.True(t, x.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, tensor.Float64, x.DType())
	assert.Equal(t, 6, x.NumElements())

	xt := x.PermuteMatrix()
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, tensor.ToSlice[float64](xt))
	assert.Equal(t, 5.0, tensor.At[float64](xt, 1, 1))

	row, err := x.Slice([]int{1, 0}, []int{2, tensor.End})
	require.NoError(t, err)
	tensor.Fill(row, []float64{7, 8, 9})
	assert.Equal(t, []float64{1, 2, 3, 7, 8, 9}, tensor.ToSlice[float64](x))
}

func TestZeros(t *testing.T) {
	z, err := tensor.Zeros(tensor.Shape{2, 2}, tensor.Complex64)
	require.NoError(t, err)
	tensor.Set(z, complex64(1i), 1, 0)
	assert.Equal(t, []complex64{0, 0, 1i, 0}, tensor.ToSlice[complex64](z))

	_, err = tensor.Zeros(tensor.Shape{1, 2, 3, 4, 5}, tensor.Float32)
	assert.Error(t, err)
}
