package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/parallel"
	"github.com/born-ml/xform/internal/tensor"
)

func TestCPUBackend_New(t *testing.T) {
	backend := New()
	require.NotNil(t, backend)
	assert.Equal(t, "CPU", backend.Name())

	seq := NewWithConfig(parallel.Sequential())
	assert.False(t, seq.Parallel().Enabled)
}

func TestCopy_Transpose(t *testing.T) {
	cpu := New()
	src, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	dst, err := tensor.Zeros(tensor.Shape{3, 2}, tensor.Float64)
	require.NoError(t, err)

	require.NoError(t, cpu.Copy(dst, src.PermuteMatrix()))
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, tensor.ToSlice[float64](dst))
}

func TestCopy_IntoStridedView(t *testing.T) {
	cpu := NewWithConfig(parallel.Sequential())
	dst, err := tensor.Zeros(tensor.Shape{4, 4}, tensor.Complex64)
	require.NoError(t, err)
	src, err := tensor.FromSlice([]complex64{1, 2i, 3, 4i}, 2, 2)
	require.NoError(t, err)

	corner, err := dst.Slice([]int{1, 1}, []int{3, 3})
	require.NoError(t, err)
	require.NoError(t, cpu.Copy(corner, src))

	got := tensor.ToSlice[complex64](dst)
	assert.Equal(t, complex64(1), got[5])
	assert.Equal(t, complex64(2i), got[6])
	assert.Equal(t, complex64(3), got[9])
	assert.Equal(t, complex64(4i), got[10])
	assert.Equal(t, complex64(0), got[0])
	assert.Equal(t, complex64(0), got[15])
}

func TestCopy_ManyRows(t *testing.T) {
	cpu := New()

	// Enough rows to cross the parallel threshold.
	n := 256
	data := make([]int64, n*3)
	for i := range data {
		data[i] = int64(i)
	}
	src, err := tensor.FromSlice(data, n, 3)
	require.NoError(t, err)
	dst, err := tensor.Zeros(tensor.Shape{n, 3}, tensor.Int64)
	require.NoError(t, err)
	require.NoError(t, cpu.Copy(dst, src))
	assert.Equal(t, data, tensor.ToSlice[int64](dst))
}

func TestCopy_Mismatch(t *testing.T) {
	cpu := New()
	a, err := tensor.Zeros(tensor.Shape{2, 3}, tensor.Float32)
	require.NoError(t, err)
	b, err := tensor.Zeros(tensor.Shape{3, 2}, tensor.Float32)
	require.NoError(t, err)
	c, err := tensor.Zeros(tensor.Shape{2, 3}, tensor.Float64)
	require.NoError(t, err)

	assert.ErrorIs(t, cpu.Copy(a, b), errs.ErrInvalidSize)
	assert.ErrorIs(t, cpu.Copy(a, c), errs.ErrInvalidType)
}

func TestZero(t *testing.T) {
	cpu := New()
	v, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)

	col, err := v.Slice([]int{0, 1}, []int{2, 2})
	require.NoError(t, err)
	cpu.Zero(col)
	assert.Equal(t, []float32{1, 0, 3, 4, 0, 6}, tensor.ToSlice[float32](v))

	cpu.Zero(v)
	assert.Equal(t, make([]float32, 6), tensor.ToSlice[float32](v))
}

func TestScale(t *testing.T) {
	cpu := New()

	t.Run("Real", func(t *testing.T) {
		v, err := tensor.FromSlice([]float64{2, 4, 8})
		require.NoError(t, err)
		require.NoError(t, cpu.Scale(v, 0.5))
		assert.Equal(t, []float64{1, 2, 4}, tensor.ToSlice[float64](v))
	})

	t.Run("Complex", func(t *testing.T) {
		v, err := tensor.FromSlice([]complex128{2 + 4i, -8i})
		require.NoError(t, err)
		require.NoError(t, cpu.Scale(v, 0.25))
		assert.Equal(t, []complex128{0.5 + 1i, -2i}, tensor.ToSlice[complex128](v))
	})

	t.Run("Int", func(t *testing.T) {
		v, err := tensor.FromSlice([]int32{1, 2})
		require.NoError(t, err)
		assert.ErrorIs(t, cpu.Scale(v, 2), errs.ErrInvalidType)
	})
}
